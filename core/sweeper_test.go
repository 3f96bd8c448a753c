package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSessionSweeperSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	reg := NewMemorySessionRegistry(testSessionIDs(t), time.Hour)
	reg.now = func() time.Time { return now }

	old, err := reg.Create(ctx, adminPrincipal)
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	fresh, err := reg.Create(ctx, plainPrincipal)
	require.NoError(t, err)

	sweeper := NewSessionSweeper(reg, time.Hour, time.Minute, zap.NewNop())
	sweeper.now = func() time.Time { return now }

	before := testutil.ToFloat64(SessionsSweptTotal)
	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, before+1, testutil.ToFloat64(SessionsSweptTotal))

	_, err = reg.Lookup(ctx, old.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = reg.Lookup(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestSessionSweeperServeStopsOnCancel(t *testing.T) {
	reg := NewMemorySessionRegistry(testSessionIDs(t), time.Millisecond)
	_, err := reg.Create(context.Background(), adminPrincipal)
	require.NoError(t, err)

	sweeper := NewSessionSweeper(reg, time.Millisecond, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Serve(ctx) }()

	require.Eventually(t, func() bool {
		n, _ := reg.Count(context.Background())
		return n == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
