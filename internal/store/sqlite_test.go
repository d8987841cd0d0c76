package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crateside/sleeve/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RecordAndList(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(ctx, model.SessionEvent{
		SessionID: "sess-1",
		Kind:      model.EventIdentityResolved,
		State:     model.StateIdentified,
		At:        base,
	}))
	require.NoError(t, s.Record(ctx, model.SessionEvent{
		SessionID: "sess-1",
		Kind:      model.EventEnrichmentResolved,
		State:     model.StateComplete,
		Detail:    "cache hit",
		At:        base.Add(2 * time.Second),
	}))
	require.NoError(t, s.Record(ctx, model.SessionEvent{
		SessionID: "sess-2",
		Kind:      model.EventFailed,
		State:     model.StateIdentificationFailed,
		Detail:    "no text found",
		At:        base.Add(time.Second),
	}))

	events, err := s.ListEvents(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Most recent first.
	assert.Equal(t, model.EventEnrichmentResolved, events[0].Kind)
	assert.Equal(t, "cache hit", events[0].Detail)
	assert.Equal(t, model.EventIdentityResolved, events[1].Kind)

	all, err := s.ListEvents(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteStore_ListEvents_Limit(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, model.SessionEvent{
			SessionID: "sess-1",
			Kind:      model.EventIdentityResolved,
			State:     model.StateIdentified,
			At:        base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := s.ListEvents(ctx, "sess-1", 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestSQLiteStore_Record_DefaultsTimestamp(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, s.Record(ctx, model.SessionEvent{
		SessionID: "sess-1",
		Kind:      model.EventIdentityResolved,
		State:     model.StateIdentified,
	}))

	events, err := s.ListEvents(ctx, "sess-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].At.Before(before))
}
