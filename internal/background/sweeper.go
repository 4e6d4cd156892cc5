package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmercer-dev/authgate/internal/services"
)

// LimiterJanitor is implemented by limiter backends that hold their counters
// in process memory and need periodic pruning. The redis backend expires
// keys on its own and plugs in a no-op.
type LimiterJanitor interface {
	Cleanup() int
}

// Sweeper periodically removes expired session rows and prunes the
// in-memory tracking state of the monitor and limiters.
type Sweeper struct {
	sessions *services.SessionService
	monitor  *services.SecurityMonitor
	janitors []LimiterJanitor
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSweeper creates a new sweeper
func NewSweeper(
	sessions *services.SessionService,
	monitor *services.SecurityMonitor,
	janitors []LimiterJanitor,
	logger *slog.Logger,
	interval time.Duration,
) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		monitor:  monitor,
		janitors: janitors,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep task
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopCh:
			s.logger.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled")
			return
		}
	}
}

func (s *Sweeper) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := s.sessions.RemoveExpired(sweepCtx)
	if err != nil {
		s.logger.Error("failed to sweep expired sessions", slog.Any("error", err))
	}

	keysDropped := s.monitor.Sweep()

	recordsPruned := 0
	for _, janitor := range s.janitors {
		recordsPruned += janitor.Cleanup()
	}

	if removed > 0 || keysDropped > 0 || recordsPruned > 0 {
		s.logger.Info("sweep completed",
			slog.Int64("sessions_removed", removed),
			slog.Int("monitor_keys_dropped", keysDropped),
			slog.Int("limiter_records_pruned", recordsPruned),
		)
	}
}

// Stop signals the sweeper to stop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
