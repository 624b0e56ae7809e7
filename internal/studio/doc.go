// Package studio tracks connected Roblox Studio instances and routes commands
// to them.
//
// # Overview
//
// A Manager owns three pieces of state behind one mutex:
//
//   - connections: every studio that completed the registration handshake,
//     keyed by a uuid the gateway minted;
//   - sessions: which studio, if any, each MCP session has explicitly selected;
//   - pending requests: correlation id → the dispatch call waiting on it.
//
// Keeping them under a single lock means a dispatch never observes a studio
// that is halfway through disconnecting. The lock only guards map operations;
// frames go out through each connection's Outbox and results go back through
// buffered channels after the lock is released.
//
// # Dispatch
//
// Dispatch resolves the session's target, inserts a pending entry owned by that
// studio, queues the encoded command and waits. The wait has no deadline: it
// ends when the studio answers, when the studio disconnects (Unregister fails
// every request the studio owned with ErrDisconnected), or when the caller's
// context is cancelled. Whichever path removes the pending entry first delivers
// the single result; the others find nothing to remove.
//
// # Selection
//
// A session with no explicit selection is routed automatically when exactly one
// studio is connected. With zero studios Dispatch fails with ErrNoneConnected;
// with several it fails with an *AmbiguousError listing them. An explicit
// selection that has since disconnected fails with ErrStaleSelection instead of
// silently falling back to another studio.
package studio
