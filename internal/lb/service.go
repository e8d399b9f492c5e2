package lb

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DimaJoyti/contractfabric/pkg/clock"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

// Config controls a Service's runtime behavior.
type Config struct {
	Algorithm           AlgorithmName
	SessionTTL          time.Duration
	HealthCheckInterval time.Duration
	UnhealthyThreshold  int32
}

// DefaultConfig returns the gateway's development defaults.
func DefaultConfig() Config {
	return Config{
		Algorithm:           AlgorithmRoundRobin,
		SessionTTL:          300 * time.Second,
		HealthCheckInterval: 10 * time.Second,
		UnhealthyThreshold:  3,
	}
}

// Service is the dynamic load balancer: instance registry, pluggable
// routing, session affinity, and health-driven eviction.
type Service struct {
	cfg Config

	mu         sync.RWMutex
	byID       map[string]*Instance
	byContract map[string][]*Instance
	nextSeq    int64

	algo     atomic.Pointer[Algorithm]
	sessions SessionStore
	clock    clock.Clock
	log      *logger.Logger
	health   *healthLoop
	metrics  *Metrics
}

// SetMetrics attaches a Metrics collector. Routes and rejections recorded
// after this call are reflected in the Prometheus surface.
func (s *Service) SetMetrics(m *Metrics) { s.metrics = m }

// NewService constructs a Service. If sessions is nil, an in-memory
// SessionStore is used. If probe is nil, a TCP-dial prober against
// Instance.Endpoint is used.
func NewService(cfg Config, log *logger.Logger, c clock.Clock, sessions SessionStore, probe Prober) *Service {
	if c == nil {
		c = clock.Real{}
	}
	if sessions == nil {
		sessions = NewMemorySessionStore(c)
	}
	if probe == nil {
		probe = dialProber
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 10 * time.Second
	}
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = 3
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 300 * time.Second
	}

	svc := &Service{
		cfg:        cfg,
		byID:       make(map[string]*Instance),
		byContract: make(map[string][]*Instance),
		sessions:   sessions,
		clock:      c,
		log:        log.Named("lb"),
	}
	algo := NewAlgorithm(cfg.Algorithm)
	svc.algo.Store(&algo)
	svc.health = newHealthLoop(svc, cfg.HealthCheckInterval, cfg.UnhealthyThreshold, probe, log, c)
	return svc
}

func dialProber(ctx context.Context, inst *Instance) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", inst.Endpoint)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Start begins the background health-check and session-purge loop.
func (s *Service) Start() { s.health.start() }

// Stop halts the background loop and blocks until it exits.
func (s *Service) Stop() { s.health.stop() }

// RegisterInstance adds an instance to the routing pool for contractID.
// Registration is idempotent on id: re-registering an existing id returns
// the existing instance untouched, so health and connection counters
// survive a duplicate announce.
func (s *Service) RegisterInstance(id, contractID, endpoint, region string, weight int) *Instance {
	if weight <= 0 {
		weight = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[id]; ok {
		return existing
	}
	s.nextSeq++
	inst := newInstance(id, contractID, endpoint, region, weight, s.nextSeq)
	s.byID[id] = inst
	s.byContract[contractID] = append(s.byContract[contractID], inst)
	s.log.Info("instance registered", zap.String("instance_id", id), zap.String("contract_id", contractID), zap.String("region", region))
	return inst
}

// RemoveInstance evicts an instance from the registry.
func (s *Service) RemoveInstance(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.byID[id]
	if !ok {
		return ErrInstanceNotFound
	}
	delete(s.byID, id)
	list := s.byContract[inst.ContractID]
	for i, c := range list {
		if c.ID == id {
			s.byContract[inst.ContractID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(s.byContract[inst.ContractID]) == 0 {
		delete(s.byContract, inst.ContractID)
	}
	s.log.Info("instance removed", zap.String("instance_id", id))

	if _, err := s.sessions.DeleteByInstance(context.Background(), id); err != nil {
		s.log.Warn("failed to evict sessions for removed instance", zap.String("instance_id", id), zap.Error(err))
	}
	return nil
}

// allInstances returns a stable snapshot slice of every registered
// instance, used by the health loop.
func (s *Service) allInstances() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Instance, 0, len(s.byID))
	for _, inst := range s.byID {
		out = append(out, inst)
	}
	return out
}

func (s *Service) instancesForContract(contractID string) []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byContract[contractID]
	out := make([]*Instance, len(list))
	copy(out, list)
	return out
}

// Route selects an instance for contractID using the active algorithm,
// honoring session affinity when sessionKey is non-empty.
func (s *Service) Route(ctx context.Context, contractID, sessionKey, regionHint string) (RouteResult, error) {
	algo := *s.algo.Load()

	if sessionKey != "" {
		if sess, ok, err := s.sessions.Get(ctx, sessionKey); err == nil && ok && sess.ContractID == contractID {
			s.mu.RLock()
			inst, exists := s.byID[sess.InstanceID]
			s.mu.RUnlock()
			if exists && inst.Health() != Unhealthy {
				inst.activeConnections.Add(1)
				inst.totalRequests.Add(1)
				return RouteResult{
					InstanceID: inst.ID, ContractID: inst.ContractID, RPCEndpoint: inst.Endpoint,
					AlgorithmUsed: string(algo.Name()), SessionAffinity: true,
				}, nil
			}
			// pinned instance is Unhealthy or gone: evict and fall through
			// to a fresh route.
			_ = s.sessions.Delete(ctx, sessionKey)
		}
	}

	candidates := healthyOrDegraded(s.instancesForContract(contractID))
	if len(candidates) == 0 {
		if s.metrics != nil {
			s.metrics.RecordNoHealthy()
		}
		return RouteResult{}, ErrNoHealthyInstances
	}

	inst := algo.Select(candidates, regionHint)
	if inst == nil {
		if s.metrics != nil {
			s.metrics.RecordNoHealthy()
		}
		return RouteResult{}, ErrNoHealthyInstances
	}
	if s.metrics != nil {
		s.metrics.RecordRoute(inst.ID, inst.ContractID, string(algo.Name()))
	}

	inst.activeConnections.Add(1)
	inst.totalRequests.Add(1)

	if sessionKey != "" {
		_ = s.sessions.Put(ctx, Session{
			Key: sessionKey, InstanceID: inst.ID, ContractID: contractID,
			ExpiresAt: s.clock.Now().Add(s.cfg.SessionTTL),
		})
	}

	return RouteResult{
		InstanceID: inst.ID, ContractID: inst.ContractID, RPCEndpoint: inst.Endpoint,
		AlgorithmUsed: string(algo.Name()), SessionAffinity: false,
	}, nil
}

// RecordResult reports the outcome of a routed request so active_connections
// and the latency window stay accurate, and tracks
// consecutive failures toward the Unhealthy transition.
func (s *Service) RecordResult(instanceID string, success bool, responseMs float64) error {
	s.mu.RLock()
	inst, ok := s.byID[instanceID]
	s.mu.RUnlock()
	if !ok {
		return ErrInstanceNotFound
	}

	if cur := inst.activeConnections.Add(-1); cur < 0 {
		inst.activeConnections.Store(0)
	}
	inst.recordLatency(responseMs)

	if success {
		inst.consecutiveFails.Store(0)
		return nil
	}

	fails := inst.consecutiveFails.Add(1)
	if fails >= s.cfg.UnhealthyThreshold && inst.Health() != Unhealthy {
		inst.health.Store(int32(Unhealthy))
		s.log.Warn("instance marked unhealthy from request failures",
			zap.String("instance_id", inst.ID), zap.Int32("consecutive_fails", fails))
		if _, err := s.sessions.DeleteByInstance(context.Background(), inst.ID); err != nil {
			s.log.Warn("failed to evict sessions for unhealthy instance", zap.String("instance_id", inst.ID), zap.Error(err))
		}
	}
	return nil
}

// SetAlgorithm hot-swaps the active routing algorithm without interrupting
// in-flight routes.
func (s *Service) SetAlgorithm(name AlgorithmName) error {
	switch name {
	case AlgorithmRoundRobin, AlgorithmLeastLoaded, AlgorithmGeographic:
		algo := NewAlgorithm(name)
		s.algo.Store(&algo)
		s.log.Info("algorithm switched", zap.String("algorithm", string(name)))
		return nil
	default:
		return ErrUnknownAlgorithm
	}
}

// CurrentAlgorithm returns the name of the active routing algorithm.
func (s *Service) CurrentAlgorithm() AlgorithmName {
	return (*s.algo.Load()).Name()
}

// Snapshot returns a race-free view of every registered instance.
func (s *Service) Snapshot() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.byID))
	for _, inst := range s.byID {
		out = append(out, inst.snapshot())
	}
	return out
}
