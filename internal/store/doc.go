// Package store keeps an optional, append-only history of studio activity in
// SQLite (modernc.org/sqlite, no cgo).
//
// Three kinds of entries are written: studio_connected, studio_disconnected
// (with the number of requests the teardown failed) and dispatch (tool,
// session, outcome and duration). The history is for operators; routing state
// lives only in memory in package studio and is never read back from here.
//
// Recorder plugs the store into studio.Manager:
//
//	st, _ := store.NewSQLiteStore(cfg.History.Path, logger)
//	rec := store.NewRecorder(st, logger, 256)
//	mgr := studio.NewManager(studio.Config{Logger: logger, Recorder: rec})
//
// Schema:
//
//	history(seq, kind, studio_id, place_id, place_name, transport, request_id,
//	        session_key, tool, outcome, failed_requests, duration_ms, ts_ms)
//
// The database runs in WAL mode with a single open connection.
package store
