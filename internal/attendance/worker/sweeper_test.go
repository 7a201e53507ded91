package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance/metrics"
)

type recordingStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	removed int64
	err     error
}

func (s *recordingStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, cutoff)
	return s.removed, s.err
}

func (s *recordingStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cutoffs)
}

func TestSweepUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store := &recordingStore{removed: 4}
	m := metrics.New(prometheus.NewRegistry())
	w := NewTokenSweeper(store,
		WithRetention(2*time.Hour),
		WithMetrics(m),
		WithClock(func() time.Time { return now }),
	)

	n, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.Len(t, store.cutoffs, 1)
	assert.Equal(t, now.Add(-2*time.Hour), store.cutoffs[0])
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TokensSwept))
}

func TestSweepPropagatesStoreError(t *testing.T) {
	store := &recordingStore{err: errors.New("connection reset")}
	w := NewTokenSweeper(store)

	_, err := w.Sweep(context.Background())
	assert.EqualError(t, err, "connection reset")
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &recordingStore{err: errors.New("unavailable")}
	w := NewTokenSweeper(store, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return store.calls() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
