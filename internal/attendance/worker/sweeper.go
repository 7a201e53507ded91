package worker

import (
	"context"
	"log/slog"
	"time"

	"rollcall/internal/attendance/metrics"
)

// ExpiredTokenStore removes QR tokens whose expiry is before cutoff.
type ExpiredTokenStore interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenSweeper periodically deletes QR tokens that expired more than the
// retention window ago. Recently expired tokens are kept so validation can
// still answer "expired" instead of "unknown".
type TokenSweeper struct {
	store     ExpiredTokenStore
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

type Option func(*TokenSweeper)

func WithInterval(d time.Duration) Option {
	return func(w *TokenSweeper) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithRetention(d time.Duration) Option {
	return func(w *TokenSweeper) {
		if d >= 0 {
			w.retention = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *TokenSweeper) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *TokenSweeper) {
		w.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(w *TokenSweeper) {
		w.clock = clock
	}
}

func NewTokenSweeper(store ExpiredTokenStore, opts ...Option) *TokenSweeper {
	w := &TokenSweeper{
		store:     store,
		interval:  10 * time.Minute,
		retention: 24 * time.Hour,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Sweep failures are logged and retried on the next tick.
func (w *TokenSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Sweep runs a single pass and returns the number of tokens removed.
func (w *TokenSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := w.clock().Add(-w.retention)
	n, err := w.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if w.metrics != nil {
		w.metrics.AddTokensSwept(n)
	}
	return n, nil
}

func (w *TokenSweeper) sweep(ctx context.Context) {
	n, err := w.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil && w.logger != nil {
			w.logger.ErrorContext(ctx, "failed to sweep expired qr tokens", "error", err)
		}
		return
	}
	if n > 0 && w.logger != nil {
		w.logger.InfoContext(ctx, "swept expired qr tokens", "count", n)
	}
}
