// Package mcp implements the Model Context Protocol endpoint agents use to
// drive Roblox Studio through the gateway.
//
// # Protocol
//
// JSON-RPC 2.0 over the Streamable HTTP transport on a single endpoint:
//
//   - POST /mcp    initialize, ping, tools/list, tools/call, notifications
//   - DELETE /mcp  end the session named by Mcp-Session-Id
//
// initialize creates a session and returns its id in the Mcp-Session-Id
// response header; every later request must carry it. The session id is also
// the key under which the gateway remembers which studio the agent selected,
// so ending the session releases that selection.
//
// Server-initiated SSE streams (GET /mcp) are not offered.
//
// # Authentication
//
// With mcp.require_auth enabled every request needs
//
//	Authorization: Bearer <jwt>
//
// signed with auth.jwt_secret. A session belongs to the token subject that
// created it; requests from another subject get 403.
//
// # Tool Results
//
// Tool failures an agent can act on are returned as results with isError set
// and guidance text. JSON-RPC errors are reserved for protocol problems such
// as unknown methods or tool names.
package mcp
