package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIDsRoundTrip(t *testing.T) {
	ids, err := NewSessionIDs([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	id, err := ids.New()
	require.NoError(t, err)
	assert.Len(t, string(id), sessionIDLength)
	assert.True(t, ids.Check(id))

	other, err := ids.New()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestSessionIDsRejectForeignAndTampered(t *testing.T) {
	ids, err := NewSessionIDs([]byte("key-one"))
	require.NoError(t, err)
	foreign, err := NewSessionIDs([]byte("key-two"))
	require.NoError(t, err)

	id, err := foreign.New()
	require.NoError(t, err)
	assert.False(t, ids.Check(id), "id signed with another key")

	own, err := ids.New()
	require.NoError(t, err)
	flipped := []byte(own)
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}
	assert.False(t, ids.Check(SessionID(flipped)), "tampered id")

	assert.False(t, ids.Check(NoSessionID))
	assert.False(t, ids.Check(SessionID(strings.Repeat("a", sessionIDLength))))
	assert.False(t, ids.Check(SessionID(strings.Repeat("!", sessionIDLength))))
	assert.False(t, ids.Check(own[:len(own)-1]))
}

func TestSessionIDsRandomKeyPerInstance(t *testing.T) {
	a, err := NewSessionIDs(nil)
	require.NoError(t, err)
	b, err := NewSessionIDs(nil)
	require.NoError(t, err)

	id, err := a.New()
	require.NoError(t, err)
	assert.True(t, a.Check(id))
	assert.False(t, b.Check(id))
}
