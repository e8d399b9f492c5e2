package idx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DimaJoyti/contractfabric/pkg/clock"
	"github.com/DimaJoyti/contractfabric/pkg/errs"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

// Store persists indexer state and discovered deployments. Satisfied by
// internal/store's Postgres implementation; defined here so idx does not
// import store (store imports idx's types instead).
type Store interface {
	GetState(ctx context.Context, network Network) (State, error)
	SaveState(ctx context.Context, state State) error
	// UpsertDeployment persists d, absorbing duplicates on
	// (contract_id, network). inserted is false for an absorbed duplicate.
	UpsertDeployment(ctx context.Context, d Deployment) (inserted bool, err error)
	UpsertPublisher(ctx context.Context, network Network, address string) error
}

// Publisher is an optional sink for newly discovered deployments, fed to
// Kafka in cmd/indexer's wiring.
type Publisher interface {
	PublishDeployment(ctx context.Context, d Deployment) error
}

// Config controls a single network's poll cycle.
type Config struct {
	Network         Network
	PollInterval    time.Duration
	BatchMax        int64
	CheckpointDepth int64
	AntiReorgGap    int64
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	MaxAttempts     int
}

// DefaultConfig returns the indexer's development defaults.
func DefaultConfig(network Network) Config {
	return Config{
		Network: network, PollInterval: 30 * time.Second,
		BatchMax: 50, CheckpointDepth: 10, AntiReorgGap: 100,
		BackoffBase: 2 * time.Second, BackoffMax: 60 * time.Second,
		MaxAttempts: 5,
	}
}

// Indexer runs the poll loop for a single network.
type Indexer struct {
	cfg   Config
	rpc   *RPCClient
	store Store
	pub   Publisher
	clock clock.Clock
	log   *logger.Logger

	mu      sync.Mutex // guards running: one cycle at a time per network
	running bool

	metrics *Metrics
}

// SetMetrics attaches a Prometheus collector. Cycles recorded after this
// call are reflected in the indexer's metrics surface.
func (ix *Indexer) SetMetrics(m *Metrics) { ix.metrics = m }

// New constructs an Indexer. pub may be nil to disable deployment
// publishing.
func New(cfg Config, rpc *RPCClient, store Store, pub Publisher, c clock.Clock, log *logger.Logger) *Indexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 50
	}
	if cfg.CheckpointDepth <= 0 {
		cfg.CheckpointDepth = 10
	}
	if cfg.AntiReorgGap <= 0 {
		cfg.AntiReorgGap = 100
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Indexer{cfg: cfg, rpc: rpc, store: store, pub: pub, clock: c, log: log.Named("idx").Named(string(cfg.Network))}
}

// Run polls until ctx is cancelled. Returns nil on a clean cancellation.
func (ix *Indexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(ix.cfg.PollInterval)
	defer ticker.Stop()

	ix.runCycleWithBackoff(ctx)
	for {
		select {
		case <-ctx.Done():
			ix.log.Info("indexer stopping", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
			ix.runCycleWithBackoff(ctx)
		}
	}
}

// runCycleWithBackoff retries a single cycle attempt up to MaxAttempts
// times with exponential backoff. After exhausting attempts it records the
// error to persisted state and returns, letting the next tick try again.
func (ix *Indexer) runCycleWithBackoff(ctx context.Context) {
	var lastErr error
	for attempt := 1; attempt <= ix.cfg.MaxAttempts; attempt++ {
		err := ix.runCycle(ctx)
		if err == nil {
			return
		}
		lastErr = err
		ix.log.Warn("cycle attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt == ix.cfg.MaxAttempts {
			break
		}
		wait := backoffDuration(ix.cfg.BackoffBase, ix.cfg.BackoffMax, attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	state, getErr := ix.store.GetState(ctx, ix.cfg.Network)
	if getErr != nil {
		state = State{Network: ix.cfg.Network}
	}
	state.ConsecutiveFailures++
	state.ErrorMessage = lastErr.Error()
	if saveErr := ix.store.SaveState(ctx, state); saveErr != nil {
		ix.log.Error("failed to persist cycle failure", zap.Error(saveErr))
	}
}

func backoffDuration(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// runCycle executes a single pass: reorg check, batch processing,
// extraction, persistence, checkpoint advance.
func (ix *Indexer) runCycle(ctx context.Context) error {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return nil // concurrent cycles on the same network are disallowed
	}
	ix.running = true
	ix.mu.Unlock()
	defer func() {
		ix.mu.Lock()
		ix.running = false
		ix.mu.Unlock()
	}()

	state, err := ix.store.GetState(ctx, ix.cfg.Network)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return fmt.Errorf("load indexer state: %w", err)
	}
	if state.Network == "" {
		state = State{Network: ix.cfg.Network}
	}

	latest, err := ix.rpc.GetLatestLedger(ctx)
	if err != nil {
		return fmt.Errorf("get latest ledger: %w", err)
	}

	// The gap heuristic only applies once the network has been indexed;
	// a zero LastIndexedLedger means a fresh or externally reseeded state.
	// The rollback is persisted immediately, then the same cycle resumes
	// indexing from the checkpoint so progress ratchets forward even while
	// the gap to the tip stays wide.
	if state.LastIndexedLedger > 0 && latest.Sequence-state.LastIndexedLedger > ix.cfg.AntiReorgGap {
		ix.log.Warn("reorg suspected, rolling back to checkpoint",
			zap.Int64("latest", latest.Sequence), zap.Int64("last_indexed", state.LastIndexedLedger),
			zap.Int64("checkpoint", state.LastCheckpointLedger))
		state.LastIndexedLedger = state.LastCheckpointLedger
		state.IndexedAt = ix.clock.Now()
		if err := ix.store.SaveState(ctx, state); err != nil {
			return fmt.Errorf("persist reorg rollback: %w", err)
		}
		if ix.metrics != nil {
			ix.metrics.ReorgsTotal.WithLabelValues(string(ix.cfg.Network)).Inc()
		}
	}

	upper := latest.Sequence
	if upper > state.LastIndexedLedger+ix.cfg.BatchMax {
		upper = state.LastIndexedLedger + ix.cfg.BatchMax
	}

	for seq := state.LastIndexedLedger + 1; seq <= upper; seq++ {
		if err := ix.processLedger(ctx, seq); err != nil {
			return fmt.Errorf("process ledger %d: %w", seq, err)
		}
		state.LastIndexedLedger = seq
	}

	state.ConsecutiveFailures = 0
	state.ErrorMessage = ""
	state.IndexedAt = ix.clock.Now()

	if state.LastIndexedLedger-state.LastCheckpointLedger >= ix.cfg.CheckpointDepth {
		state.LastCheckpointLedger = state.LastIndexedLedger
		state.CheckpointAt = ix.clock.Now()
	}

	if err := ix.store.SaveState(ctx, state); err != nil {
		return fmt.Errorf("persist indexer state: %w", err)
	}
	if ix.metrics != nil {
		ix.metrics.LastIndexedLedger.WithLabelValues(string(ix.cfg.Network)).Set(float64(state.LastIndexedLedger))
	}
	return nil
}

// processLedger fetches and extracts operations for a single ledger.
// Malformed operations are skipped, never abort the cycle.
func (ix *Indexer) processLedger(ctx context.Context, seq int64) error {
	ops, err := ix.rpc.GetLedgerOperations(ctx, seq)
	if err != nil {
		return err
	}

	skipped := 0
	written := 0
	duplicates := 0
	for _, op := range ops {
		d, ok := extractDeployment(op, ix.cfg.Network)
		if !ok {
			if op.TypeCode == contractCreateTypeCode {
				skipped++
				if ix.metrics != nil {
					ix.metrics.OperationsSkipped.WithLabelValues(string(ix.cfg.Network), "malformed_contract_id").Inc()
				}
			}
			continue
		}
		d.LedgerSequence = seq

		// Batch writes are best-effort per deployment: one insert
		// failure does not abort the batch.
		inserted, err := ix.store.UpsertDeployment(ctx, d)
		if err != nil {
			ix.log.Warn("deployment upsert failed", zap.String("contract_id", d.ContractID), zap.Error(err))
			continue
		}
		if !inserted {
			duplicates++
			continue
		}
		if d.Deployer != "" {
			if err := ix.store.UpsertPublisher(ctx, ix.cfg.Network, d.Deployer); err != nil {
				ix.log.Warn("publisher upsert failed", zap.String("deployer", d.Deployer), zap.Error(err))
			}
		}
		if ix.pub != nil {
			if err := ix.pub.PublishDeployment(ctx, d); err != nil {
				ix.log.Warn("deployment event publish failed", zap.String("contract_id", d.ContractID), zap.Error(err))
			}
		}
		if ix.metrics != nil {
			ix.metrics.DeploymentsTotal.WithLabelValues(string(ix.cfg.Network)).Inc()
		}
		written++
	}

	ix.log.Info("ledger processed",
		zap.Int64("sequence", seq), zap.Int("operations", len(ops)),
		zap.Int("deployments_written", written), zap.Int("duplicates_absorbed", duplicates),
		zap.Int("malformed_skipped", skipped))
	return nil
}
