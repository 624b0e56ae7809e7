// Package auth provides bearer-token authentication for the MCP endpoint.
//
// Tokens are HS256 JWTs signed with auth.jwt_secret and carry the caller's
// name in the "sub" claim. They are minted with `studio-gateway token` and
// checked by RequireBearer when mcp.require_auth is enabled:
//
//	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
//	token, err := verifier.Generate("claude-desktop", 30*24*time.Hour)
//	handler = auth.RequireBearer(verifier, logger)(handler)
//
// Studio connections are never authenticated; the gateway listens on
// loopback by default.
package auth
