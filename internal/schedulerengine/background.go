package schedulerengine

import (
	"context"
	"sync"
	"time"

	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/core/ports/primary"
)

// StaleExpirer fails operations that stopped reporting
type StaleExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Purger drops finished operation records
type Purger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int, error)
}

// SweepEngine periodically expires stale operations and purges old finished ones
type SweepEngine struct {
	SweepCfg *config.SweepConfig
	expirer  StaleExpirer
	purger   Purger
	logger   primary.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewSweepEngine(
	sweepCfg *config.SweepConfig,
	expirer StaleExpirer,
	purger Purger,
	logger primary.Logger,
) *SweepEngine {
	return &SweepEngine{
		SweepCfg: sweepCfg,
		expirer:  expirer,
		purger:   purger,
		logger:   logger,
	}
}

// Start runs sweeps until ctx is done or Stop is called. A zero interval leaves the engine idle.
func (s *SweepEngine) Start(ctx context.Context) bool {
	if s.SweepCfg.Interval <= 0 {
		s.logger.Info("Sweep engine disabled")
		return false
	}

	ctx, s.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(s.SweepCfg.Interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
	s.logger.Info("Sweep engine started", "interval", s.SweepCfg.Interval.String())
	return true
}

func (s *SweepEngine) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep runs one pass. Failures are logged and retried on the next tick.
func (s *SweepEngine) Sweep(ctx context.Context) {
	expired, err := s.expirer.ExpireStale(ctx, s.SweepCfg.StaleAfter)
	if err != nil {
		s.logger.Error("Failed to expire stale operations", "error", err)
	} else if expired > 0 {
		s.logger.Info("Expired stale operations", "count", expired)
	}

	if s.SweepCfg.PurgeAfter <= 0 {
		return
	}
	if _, err := s.purger.Purge(ctx, s.SweepCfg.PurgeAfter); err != nil {
		s.logger.Error("Failed to purge finished operations", "error", err)
	}
}
