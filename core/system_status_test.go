package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uncountedRegistry hides Count from CollectSystemStatus.
type uncountedRegistry struct {
	SessionRegistry
}

func TestCollectSystemStatus(t *testing.T) {
	ctx := context.Background()
	reg := NewMemorySessionRegistry(testSessionIDs(t), 0)
	_, err := reg.Create(ctx, adminPrincipal)
	require.NoError(t, err)

	st := CollectSystemStatus(ctx, BackendMemory, reg, 3, time.Now().Add(-time.Minute))
	assert.Equal(t, BackendMemory, st.Sessions.Backend)
	assert.Equal(t, 1, st.Sessions.Active)
	assert.Equal(t, 3, st.Principals)
	assert.GreaterOrEqual(t, st.UptimeSeconds, int64(59))

	st = CollectSystemStatus(ctx, "custom", uncountedRegistry{reg}, 1, time.Time{})
	assert.Equal(t, -1, st.Sessions.Active)
	assert.Zero(t, st.UptimeSeconds)
}

func TestParseKiBLine(t *testing.T) {
	assert.Equal(t, uint64(16318480), parseKiBLine("MemTotal:       16318480 kB"))
	assert.Zero(t, parseKiBLine("MemTotal:"))
	assert.Zero(t, parseKiBLine("MemTotal: lots kB"))
}
