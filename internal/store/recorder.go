// ABOUTME: Adapts the history store to the studio manager's Recorder hook
// ABOUTME: Writes happen on a background goroutine so dispatch never waits on disk

package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/studio-gateway/internal/studio"
)

// HistoryWriter is the subset of the store the recorder needs.
type HistoryWriter interface {
	AppendHistory(ctx context.Context, e *Entry) error
}

// Recorder implements studio.Recorder by queueing entries for a single writer
// goroutine. When the queue is full new entries are dropped and counted.
type Recorder struct {
	w      HistoryWriter
	logger *slog.Logger
	queue  chan Entry

	mu      sync.Mutex
	closed  bool
	dropped int
	done    chan struct{}
}

var _ studio.Recorder = (*Recorder)(nil)

// NewRecorder starts a recorder with room for buffer queued entries.
func NewRecorder(w HistoryWriter, logger *slog.Logger, buffer int) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		w:      w,
		logger: logger.With("component", "history"),
		queue:  make(chan Entry, buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// StudioConnected records a registration.
func (r *Recorder) StudioConnected(info studio.Info) {
	r.enqueue(Entry{
		Kind:      KindConnected,
		StudioID:  info.ID.String(),
		PlaceID:   info.PlaceID,
		PlaceName: info.PlaceName,
		Transport: string(info.Transport),
		Timestamp: info.ConnectedAt,
	})
}

// StudioDisconnected records a teardown and how many requests it failed.
func (r *Recorder) StudioDisconnected(info studio.Info, failed int) {
	r.enqueue(Entry{
		Kind:           KindDisconnected,
		StudioID:       info.ID.String(),
		PlaceID:        info.PlaceID,
		PlaceName:      info.PlaceName,
		Transport:      string(info.Transport),
		FailedRequests: failed,
		Timestamp:      time.Now(),
	})
}

// DispatchFinished records how a dispatch ended.
func (r *Recorder) DispatchFinished(rec studio.DispatchRecord) {
	r.enqueue(Entry{
		Kind:       KindDispatch,
		StudioID:   rec.StudioID.String(),
		RequestID:  rec.ID.String(),
		Session:    rec.Session,
		Tool:       rec.Tool,
		Outcome:    string(rec.Outcome),
		DurationMS: rec.Duration.Milliseconds(),
		Timestamp:  rec.Started.Add(rec.Duration),
	})
}

func (r *Recorder) enqueue(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.dropped++
		if r.dropped == 1 || r.dropped%100 == 0 {
			r.logger.Warn("history queue full, dropping entries", "dropped", r.dropped)
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.w.AppendHistory(ctx, &e); err != nil {
			r.logger.Error("failed to write history entry", "kind", e.Kind, "error", err)
		}
		cancel()
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}
