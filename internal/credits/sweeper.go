package credits

import (
	"context"
	"time"

	"github.com/wolfman30/wellness-booking/pkg/logging"
)

type expirer interface {
	ExpireOldCredits(ctx context.Context) (int, error)
}

// Sweeper runs the expiry sweep on a fixed interval.
type Sweeper struct {
	service  expirer
	logger   *logging.Logger
	interval time.Duration
}

func NewSweeper(service *Service, interval time.Duration, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{service: service, logger: logger, interval: interval}
}

// Start sweeps once immediately, then on every tick until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("credit expiry sweeper started", "interval", s.interval.String())
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("credit expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.service.ExpireOldCredits(ctx)
	if err != nil {
		s.logger.Error("credit expiry sweep failed", "expired", n, "error", err)
		return
	}
	s.logger.Debug("credit expiry sweep finished", "expired", n)
}
