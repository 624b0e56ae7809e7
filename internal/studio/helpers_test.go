// ABOUTME: Shared helpers for studio package tests.
// ABOUTME: Provides a quiet manager, registration fixtures and an in-process responder.

package studio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/2389/studio-gateway/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	m := NewManager(cfg)
	t.Cleanup(m.Close)
	return m
}

func registration(placeID uint64, name string) wire.Registration {
	return wire.Registration{
		Type:         wire.TypeRegister,
		PlaceID:      placeID,
		PlaceName:    name,
		GameID:       placeID * 10,
		JobID:        "job-" + name,
		PlaceVersion: 1,
		CreatorID:    42,
		CreatorType:  "User",
	}
}

// register adds a studio and nudges the clock so listings have a stable order.
func register(t *testing.T, m *Manager, placeID uint64, name string) *Connection {
	t.Helper()
	conn := m.Register(registration(placeID, name), TransportWebSocket)
	require.NotNil(t, conn)
	time.Sleep(time.Millisecond)
	return conn
}

// respondWith drains conn's outbox and answers every command through the
// manager until the outbox closes or the test ends.
func respondWith(t *testing.T, m *Manager, conn *Connection, answer func(cmd wire.Command, args wire.Value) wire.Response) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		for {
			frame, err := conn.Outbox().Next(ctx)
			if err != nil {
				return
			}
			cmd, args, err := wire.DecodeCommand(frame)
			if err != nil {
				continue
			}
			resp := answer(cmd, args)
			resp.ID = uuid.MustParse(cmd.ID)
			_ = m.HandleResponse(conn.ID, resp)
		}
	}()
}

// echo answers with "<place name>:<tool>".
func echo(conn *Connection) func(wire.Command, wire.Value) wire.Response {
	return func(cmd wire.Command, _ wire.Value) wire.Response {
		return wire.Response{Success: true, Response: wire.String(conn.Info.PlaceName + ":" + cmd.Tool)}
	}
}

// drainIDs pops n frames from conn's outbox and returns their correlation ids.
func drainIDs(t *testing.T, conn *Connection, n int) []uuid.UUID {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		frame, err := conn.Outbox().Next(ctx)
		require.NoError(t, err)
		cmd, _, err := wire.DecodeCommand(frame)
		require.NoError(t, err)
		ids = append(ids, uuid.MustParse(cmd.ID))
	}
	return ids
}

func waitPending(t *testing.T, m *Manager, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return m.PendingCount() == n }, 2*time.Second, time.Millisecond)
}

type dispatchResult struct {
	text string
	err  error
}

func dispatchAsync(ctx context.Context, m *Manager, tool, session string) <-chan dispatchResult {
	out := make(chan dispatchResult, 1)
	go func() {
		text, err := m.Dispatch(ctx, tool, wire.Map(), session)
		out <- dispatchResult{text, err}
	}()
	return out
}

func await(t *testing.T, ch <-chan dispatchResult) dispatchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not complete")
		return dispatchResult{}
	}
}

// recorder captures Recorder callbacks.
type recorder struct {
	mu           sync.Mutex
	connected    []Info
	disconnected []Info
	failed       []int
	dispatches   []DispatchRecord
}

func (r *recorder) StudioConnected(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, info)
}

func (r *recorder) StudioDisconnected(info Info, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, info)
	r.failed = append(r.failed, failed)
}

func (r *recorder) DispatchFinished(rec DispatchRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatches = append(r.dispatches, rec)
}

func (r *recorder) outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, len(r.dispatches))
	for i, d := range r.dispatches {
		out[i] = d.Outcome
	}
	return out
}

func (r *recorder) failedCounts() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.failed...)
}

// resolvedSet is a trivial ResolvedSet.
type resolvedSet struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newResolvedSet() *resolvedSet { return &resolvedSet{keys: make(map[string]bool)} }

func (s *resolvedSet) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = true
}

func (s *resolvedSet) Check(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key]
}
