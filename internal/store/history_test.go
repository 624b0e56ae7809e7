// ABOUTME: Tests for the SQLite history log and its studio recorder adapter
// ABOUTME: Covers append, filtered listing, outcome counts, pruning and async recording

package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/studio-gateway/internal/studio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "history.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestHistory_AppendAndList(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	studioID := uuid.NewString()
	entries := []*Entry{
		{Kind: KindConnected, StudioID: studioID, PlaceID: 111, PlaceName: "Baseplate", Transport: "websocket", Timestamp: base},
		{Kind: KindDispatch, StudioID: studioID, RequestID: uuid.NewString(), Session: "s1", Tool: "RunCode", Outcome: "ok", DurationMS: 12, Timestamp: base.Add(time.Second)},
		{Kind: KindDisconnected, StudioID: studioID, PlaceID: 111, PlaceName: "Baseplate", FailedRequests: 2, Timestamp: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, st.AppendHistory(ctx, e))
		assert.NotZero(t, e.Seq)
	}

	got, err := st.ListHistory(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first.
	assert.Equal(t, KindDisconnected, got[0].Kind)
	assert.Equal(t, 2, got[0].FailedRequests)
	assert.Equal(t, KindDispatch, got[1].Kind)
	assert.Equal(t, "RunCode", got[1].Tool)
	assert.Equal(t, "s1", got[1].Session)
	assert.Equal(t, int64(12), got[1].DurationMS)
	assert.Equal(t, KindConnected, got[2].Kind)
	assert.Equal(t, uint64(111), got[2].PlaceID)
	assert.True(t, base.Equal(got[2].Timestamp))
}

func TestHistory_Filter(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendHistory(ctx, &Entry{Kind: KindDispatch, StudioID: a, Tool: "RunCode", Outcome: "ok"}))
	}
	require.NoError(t, st.AppendHistory(ctx, &Entry{Kind: KindConnected, StudioID: b}))

	byStudio, err := st.ListHistory(ctx, Filter{StudioID: b})
	require.NoError(t, err)
	require.Len(t, byStudio, 1)
	assert.Equal(t, KindConnected, byStudio[0].Kind)

	byKind, err := st.ListHistory(ctx, Filter{Kind: KindDispatch})
	require.NoError(t, err)
	assert.Len(t, byKind, 5)

	limited, err := st.ListHistory(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := st.ListHistory(ctx, Filter{StudioID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestHistory_RejectsIncompleteEntry(t *testing.T) {
	st := setupTestStore(t)
	assert.Error(t, st.AppendHistory(context.Background(), &Entry{Kind: KindDispatch}))
	assert.Error(t, st.AppendHistory(context.Background(), &Entry{StudioID: "x"}))
}

func TestHistory_OutcomeCounts(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	for _, o := range []string{"ok", "ok", "remote_error", "disconnected"} {
		require.NoError(t, st.AppendHistory(ctx, &Entry{Kind: KindDispatch, StudioID: id, Outcome: o}))
	}
	require.NoError(t, st.AppendHistory(ctx, &Entry{Kind: KindConnected, StudioID: id}))

	counts, err := st.OutcomeCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ok": 2, "remote_error": 1, "disconnected": 1}, counts)
}

func TestHistory_PruneBefore(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	id := uuid.NewString()

	require.NoError(t, st.AppendHistory(ctx, &Entry{Kind: KindConnected, StudioID: id, Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, st.AppendHistory(ctx, &Entry{Kind: KindConnected, StudioID: id, Timestamp: now}))

	n, err := st.PruneBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := st.ListHistory(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestRecorder_WritesStudioEvents(t *testing.T) {
	st := setupTestStore(t)
	rec := NewRecorder(st, testLogger(), 16)

	info := studio.Info{
		ID:          uuid.New(),
		PlaceID:     111,
		PlaceName:   "Baseplate",
		Transport:   studio.TransportPoll,
		ConnectedAt: time.Now().UTC(),
	}
	rec.StudioConnected(info)
	rec.DispatchFinished(studio.DispatchRecord{
		ID:       uuid.New(),
		StudioID: info.ID,
		Session:  "s1",
		Tool:     "GetStudioMode",
		Outcome:  studio.OutcomeRemoteError,
		Started:  time.Now(),
		Duration: 30 * time.Millisecond,
	})
	rec.StudioDisconnected(info, 3)
	rec.Close()

	got, err := st.ListHistory(context.Background(), Filter{StudioID: info.ID.String()})
	require.NoError(t, err)
	require.Len(t, got, 3)

	kinds := map[Kind]Entry{}
	for _, e := range got {
		kinds[e.Kind] = e
	}
	assert.Equal(t, "poll", kinds[KindConnected].Transport)
	assert.Equal(t, "remote_error", kinds[KindDispatch].Outcome)
	assert.Equal(t, int64(30), kinds[KindDispatch].DurationMS)
	assert.Equal(t, 3, kinds[KindDisconnected].FailedRequests)
}

// blockingWriter holds every write until released.
type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	written int
}

func (w *blockingWriter) AppendHistory(ctx context.Context, e *Entry) error {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written++
	return nil
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	rec := NewRecorder(w, testLogger(), 2)

	// One entry is taken by the writer, two fill the queue, the rest drop.
	for i := 0; i < 10; i++ {
		rec.StudioConnected(studio.Info{ID: uuid.New()})
		time.Sleep(time.Millisecond)
	}
	assert.GreaterOrEqual(t, rec.Dropped(), 7)

	close(w.release)
	rec.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, 10-rec.Dropped(), w.written)
}

type failingWriter struct{}

func (failingWriter) AppendHistory(context.Context, *Entry) error {
	return errors.New("disk full")
}

func TestRecorder_WriteErrorsAreSwallowed(t *testing.T) {
	rec := NewRecorder(failingWriter{}, testLogger(), 4)
	rec.StudioConnected(studio.Info{ID: uuid.New()})
	rec.Close()
	rec.Close()

	// Entries after Close are ignored.
	rec.StudioConnected(studio.Info{ID: uuid.New()})
	assert.Equal(t, 0, rec.Dropped())
}
