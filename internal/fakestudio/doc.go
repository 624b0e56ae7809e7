// Package fakestudio is a scriptable stand-in for the Roblox Studio MCP plugin.
//
// It dials the gateway's /ws endpoint, performs the registration handshake and
// answers each command frame with whatever its Handler returns. cmd/fake-studio
// wraps it for manual testing and the gateway's end-to-end tests use it as a
// real WebSocket peer.
package fakestudio
