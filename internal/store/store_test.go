package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/microfactory-run/microfactory/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions.sqlite3")
	s, err := Open(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	summary := ports.SessionSummary{Status: "running", UpdatedAt: 1000, Provider: "openai", Model: "gpt-5", Domain: "coding"}
	require.NoError(t, s.Save(ctx, "sess-1", []byte(`{"prompt":"do x"}`), summary))

	data, got, ok, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"prompt":"do x"}`), data)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, "openai", got.Provider)
}

func TestLoad_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, ok, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSave_LastWriterWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "sess-1", []byte("v1"), ports.SessionSummary{Status: "running", UpdatedAt: 1}))
	require.NoError(t, s.Save(ctx, "sess-1", []byte("v2"), ports.SessionSummary{Status: "paused", UpdatedAt: 2}))

	data, got, ok, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), data)
	assert.Equal(t, "paused", got.Status)
}

func TestList_OrderedByUpdatedAtDesc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "sess-a", []byte("a"), ports.SessionSummary{Status: "running", UpdatedAt: 1}))
	require.NoError(t, s.Save(ctx, "sess-b", []byte("b"), ports.SessionSummary{Status: "running", UpdatedAt: 2}))

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "sess-b", list[0].ID)
}

func TestDelete_RemovesSessionAndEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "sess-1", []byte("x"), ports.SessionSummary{Status: "running", UpdatedAt: 1}))
	require.NoError(t, s.AppendEvent(ctx, &Event{SessionID: "sess-1", Type: "session_started", Timestamp: 1}))

	require.NoError(t, s.Delete(ctx, "sess-1"))

	_, _, ok, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)

	events, err := s.ListEvents(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendEvent_SequenceIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "sess-1", []byte("x"), ports.SessionSummary{Status: "running", UpdatedAt: 1}))

	e1 := &Event{SessionID: "sess-1", Type: "session_started", Timestamp: 1}
	e2 := &Event{SessionID: "sess-1", Type: "step_started", StepID: "step-1", Timestamp: 2}
	require.NoError(t, s.AppendEvent(ctx, e1))
	require.NoError(t, s.AppendEvent(ctx, e2))

	assert.Equal(t, int64(1), e1.Sequence)
	assert.Equal(t, int64(2), e2.Sequence)

	events, err := s.ListEvents(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "session_started", events[0].Type)
	assert.Equal(t, "step_started", events[1].Type)
}
