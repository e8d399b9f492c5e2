package lb

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DimaJoyti/contractfabric/pkg/clock"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

// Prober checks whether an instance is reachable. The Service supplies one
// at construction time; the default dials the instance's Endpoint over TCP.
type Prober func(ctx context.Context, inst *Instance) error

// healthLoop ticks on a fixed interval, probing every registered instance
// and sweeping expired sessions, using the same ticker-driven
// consecutive-failure pattern as a regional failover watchdog, applied here
// per instance instead of per region.
type healthLoop struct {
	svc       *Service
	interval  time.Duration
	threshold int32
	probe     Prober
	log       *logger.Logger
	clock     clock.Clock

	stopCh chan struct{}
	doneCh chan struct{}
}

func newHealthLoop(svc *Service, interval time.Duration, threshold int32, probe Prober, log *logger.Logger, c clock.Clock) *healthLoop {
	return &healthLoop{
		svc: svc, interval: interval, threshold: threshold, probe: probe,
		log: log.Named("health"), clock: c,
		stopCh: make(chan struct{}), doneCh: make(chan struct{}),
	}
}

func (h *healthLoop) start() {
	go h.run()
}

func (h *healthLoop) stop() {
	close(h.stopCh)
	<-h.doneCh
}

func (h *healthLoop) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.tick()
		case <-h.stopCh:
			return
		}
	}
}

func (h *healthLoop) tick() {
	for _, inst := range h.svc.allInstances() {
		h.checkInstance(inst)
	}

	if h.svc.metrics != nil {
		h.svc.metrics.Observe(h.svc.Snapshot())
	}

	removed, err := h.svc.sessions.Purge(context.Background(), h.clock.Now())
	if err != nil {
		h.log.Warn("session purge failed", zap.Error(err))
	} else if removed > 0 {
		h.log.Debug("purged expired sessions", zap.Int("count", removed))
	}
}

func (h *healthLoop) checkInstance(inst *Instance) {
	ctx, cancel := context.WithTimeout(context.Background(), h.interval/2)
	defer cancel()

	err := h.probe(ctx, inst)

	if err != nil {
		fails := inst.consecutiveFails.Add(1)
		if fails >= h.threshold && inst.Health() != Unhealthy {
			inst.health.Store(int32(Unhealthy))
			h.log.Warn("instance marked unhealthy",
				zap.String("instance_id", inst.ID), zap.String("contract_id", inst.ContractID),
				zap.Int32("consecutive_fails", fails))
			if _, err := h.svc.sessions.DeleteByInstance(context.Background(), inst.ID); err != nil {
				h.log.Warn("failed to evict sessions for unhealthy instance", zap.String("instance_id", inst.ID), zap.Error(err))
			}
		}
		return
	}

	inst.consecutiveFails.Store(0)
	if inst.Health() == Unhealthy {
		inst.health.Store(int32(Healthy))
		h.log.Info("instance recovered",
			zap.String("instance_id", inst.ID), zap.String("contract_id", inst.ContractID))
	}
}
