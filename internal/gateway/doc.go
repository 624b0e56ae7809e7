// Package gateway orchestrates the studio-gateway server components.
//
// # Overview
//
// The gateway owns the studio manager and every HTTP surface that reaches it.
// Studios connect over a WebSocket or, when they can't hold one open, over
// long-polling. Agents connect over MCP. All of them share one listener.
//
// # Endpoints
//
//   - GET /ws             studio WebSocket (registration handshake, then commands)
//   - POST /poll/register studio long-poll registration
//   - GET /poll/request   next command for a poll studio (423 on timeout)
//   - POST /poll/response response from a poll studio
//   - DELETE /poll        poll studio disconnect
//   - POST|DELETE /mcp    MCP Streamable HTTP endpoint
//   - GET /api/studios    connected studios
//   - GET /api/history    history log, newest first
//   - GET /health         liveness
//   - GET /health/ready   readiness (503 until a studio connects)
//
// # WebSocket Lifecycle
//
// A studio socket moves through Handshaking, Registered, Draining and Closed.
// The first frame must be a msgpack registration envelope that arrives within
// studio.handshake_timeout; anything else closes the socket with a policy
// violation and registers nothing. Once registered, a write loop drains the
// studio's outbox in order, a read loop routes response frames to the
// manager, and a keepalive loop pings every studio.keepalive_interval.
// Whichever loop stops first tears the studio down, which fails every request
// still waiting on it.
//
// # Shutdown
//
// Shutdown closes studio sockets with StatusGoingAway, fails in-flight
// dispatches, stops the HTTP server and flushes the history log.
package gateway
