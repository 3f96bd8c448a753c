package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionSweeper periodically destroys sessions older than the TTL. It
// implements suture.Service.
type SessionSweeper struct {
	expirer  SessionExpirer
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewSessionSweeper(expirer SessionExpirer, ttl, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionSweeper{expirer: expirer, ttl: ttl, interval: interval, logger: logger, now: time.Now}
}

// Sweep runs one pass and returns how many sessions were removed.
func (s *SessionSweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.expirer.DestroyExpired(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		SessionsSweptTotal.Add(float64(n))
		s.logger.Info("expired sessions removed", zap.Int("count", n))
	}
	return n, nil
}

// Serve sweeps every interval until ctx is cancelled. Sweep failures are
// logged and retried on the next tick.
func (s *SessionSweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("session sweeper started", zap.Duration("ttl", s.ttl), zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("session sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *SessionSweeper) String() string {
	return "session sweeper"
}
