// ABOUTME: History entries for studio connects, disconnects and dispatch outcomes
// ABOUTME: Append and list operations over the history table, newest first

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Kind distinguishes history entries.
type Kind string

const (
	KindConnected    Kind = "studio_connected"
	KindDisconnected Kind = "studio_disconnected"
	KindDispatch     Kind = "dispatch"
)

// Entry is one row of the history log. Dispatch-only fields are empty for
// lifecycle entries and vice versa.
type Entry struct {
	Seq            int64     `json:"seq"`
	Kind           Kind      `json:"kind"`
	StudioID       string    `json:"studio_id"`
	PlaceID        uint64    `json:"place_id,omitempty"`
	PlaceName      string    `json:"place_name,omitempty"`
	Transport      string    `json:"transport,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	Session        string    `json:"session,omitempty"`
	Tool           string    `json:"tool,omitempty"`
	Outcome        string    `json:"outcome,omitempty"`
	FailedRequests int       `json:"failed_requests,omitempty"`
	DurationMS     int64     `json:"duration_ms,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Filter narrows ListHistory.
type Filter struct {
	Kind     Kind   // empty matches all kinds
	StudioID string // empty matches all studios
	Limit    int    // default 50, max 1000
}

// normalizeLimit applies the default (50) and cap (1000).
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// AppendHistory inserts e and fills in its sequence number. A zero Timestamp
// is set to now.
func (s *SQLiteStore) AppendHistory(ctx context.Context, e *Entry) error {
	if e.Kind == "" || e.StudioID == "" {
		return fmt.Errorf("history entry needs kind and studio_id")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Millisecond)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO history (kind, studio_id, place_id, place_name, transport, request_id,
			session_key, tool, outcome, failed_requests, duration_ms, ts_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(e.Kind),
		e.StudioID,
		int64(e.PlaceID),
		e.PlaceName,
		e.Transport,
		nullable(e.RequestID),
		nullable(e.Session),
		nullable(e.Tool),
		nullable(e.Outcome),
		e.FailedRequests,
		e.DurationMS,
		e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	e.Seq, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading history sequence: %w", err)
	}
	return nil
}

const historyQuery = `
	SELECT seq, kind, studio_id, place_id, place_name, transport, request_id,
		session_key, tool, outcome, failed_requests, duration_ms, ts_ms
	FROM history
	WHERE (? = '' OR kind = ?)
	  AND (? = '' OR studio_id = ?)
	ORDER BY ts_ms DESC, seq DESC
	LIMIT ?
`

// ListHistory returns entries matching f, newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, f Filter) ([]Entry, error) {
	kind := string(f.Kind)
	rows, err := s.db.QueryContext(ctx, historyQuery,
		kind, kind,
		f.StudioID, f.StudioID,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                                 Entry
			kindStr                           string
			placeID, tsMS                     int64
			requestID, session, tool, outcome sql.NullString
		)
		if err := rows.Scan(&e.Seq, &kindStr, &e.StudioID, &placeID, &e.PlaceName, &e.Transport,
			&requestID, &session, &tool, &outcome, &e.FailedRequests, &e.DurationMS, &tsMS); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		e.Kind = Kind(kindStr)
		e.PlaceID = uint64(placeID)
		e.RequestID = requestID.String
		e.Session = session.String
		e.Tool = tool.String
		e.Outcome = outcome.String
		e.Timestamp = time.UnixMilli(tsMS).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}

// OutcomeCounts returns the number of dispatches per outcome.
func (s *SQLiteStore) OutcomeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM history WHERE kind = ? GROUP BY outcome`, string(KindDispatch))
	if err != nil {
		return nil, fmt.Errorf("counting outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome sql.NullString
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		counts[outcome.String] = n
	}
	return counts, rows.Err()
}

// PruneBefore deletes entries older than cutoff and returns how many were removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE ts_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned history", "removed", n, "cutoff", cutoff)
	}
	return n, nil
}
