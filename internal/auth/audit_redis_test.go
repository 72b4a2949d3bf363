package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLoggerRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	audit := NewAuditLogger(client)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, event := range []string{AuditSignup, AuditLogin, AuditLogout} {
		require.NoError(t, audit.Log(ctx, AuditEvent{
			EventType: event, UserID: "u1", IP: "192.0.2.1", Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	assert.Equal(t, defaultAuditRetention, mr.TTL("audit:u1"))

	events, err := audit.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, AuditLogout, events[0].EventType)
	assert.Equal(t, AuditSignup, events[2].EventType)
	assert.True(t, events[0].Timestamp.Equal(base.Add(2*time.Minute)))

	events, err = audit.Recent(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, AuditLogin, events[1].EventType)

	events, err = audit.Recent(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAuditLoggerTrimsToMaxLen(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	audit := NewAuditLogger(client)
	audit.MaxLen = 3

	for i := 0; i < 5; i++ {
		require.NoError(t, audit.Log(ctx, AuditEvent{EventType: AuditLogin, UserID: "u1", Meta: map[string]any{"n": i}}))
	}
	raw, err := mr.List("audit:u1")
	require.NoError(t, err)
	assert.Len(t, raw, 3)

	events, err := audit.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.EqualValues(t, 4, events[0].Meta["n"])
	assert.EqualValues(t, 2, events[2].Meta["n"])
}

func TestAuditLoggerAnonymousEvents(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	audit := NewAuditLogger(client)

	require.NoError(t, audit.Log(ctx, AuditEvent{EventType: AuditLoginFailed, IP: "198.51.100.7"}))
	assert.True(t, mr.Exists("audit:anonymous"))

	raw, err := mr.List("audit:anonymous")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Contains(t, raw[0], `"eventType":"login_failed"`)
	assert.Contains(t, raw[0], `"timestamp"`)

	events, err := audit.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAuditLoggerSkipsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	audit := NewAuditLogger(client)

	_, err := mr.Push("audit:u1", "not json")
	require.NoError(t, err)
	require.NoError(t, audit.Log(ctx, AuditEvent{EventType: AuditLogin, UserID: "u1"}))

	events, err := audit.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, AuditLogin, events[0].EventType)
}
