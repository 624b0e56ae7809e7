// ABOUTME: MCP-compatible HTTP server exposing Roblox Studio tools to agents.
// ABOUTME: Implements Streamable HTTP transport with per-session studio selection.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/studio-gateway/internal/auth"
	"github.com/2389/studio-gateway/internal/tools"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version we advertise when the client asks for
// one we don't know.
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// SessionForgetter drops gateway-side state for an MCP session.
type SessionForgetter interface {
	ForgetSession(sessionKey string)
}

// Config holds configuration for the MCP server.
type Config struct {
	Tools         *tools.Registry
	Sessions      SessionForgetter // optional
	Logger        *slog.Logger
	TokenVerifier auth.TokenVerifier
	RequireAuth   bool   // If true, every request needs a valid bearer token
	Version       string // reported in serverInfo
}

// Server implements MCP-compatible HTTP endpoints for external agents.
type Server struct {
	tools       *tools.Registry
	forgetter   SessionForgetter
	logger      *slog.Logger
	verifier    auth.TokenVerifier
	requireAuth bool
	version     string
	sessions    *sessionStore
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Tools == nil {
		return nil, errors.New("tool registry is required")
	}
	if cfg.RequireAuth && cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required when auth is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Server{
		tools:       cfg.Tools,
		forgetter:   cfg.Sessions,
		logger:      logger,
		verifier:    cfg.TokenVerifier,
		requireAuth: cfg.RequireAuth,
		version:     version,
		sessions:    newSessionStore(),
	}, nil
}

// Handler returns the /mcp endpoint, wrapped in bearer auth when required.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.handleMCP)
	if s.requireAuth {
		h = auth.RequireBearer(s.verifier, s.logger)(h)
	}
	return h
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/mcp", s.Handler())
}

// SessionCount returns the number of live MCP sessions.
func (s *Server) SessionCount() int {
	return s.sessions.count()
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE per the
// Streamable HTTP transport.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		// We don't support server-initiated SSE streams
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleDelete terminates a session and releases its studio selection.
// Only the session's owner may end it.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}

	sess, ok := s.sessions.get(sessionID)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if sess.owner != auth.SubjectFrom(r.Context()) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	s.sessions.delete(sessionID)
	if s.forgetter != nil {
		s.forgetter.ForgetSession(sessionID)
	}
	s.logger.Info("MCP session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	protoVersion := r.Header.Get("Mcp-Protocol-Version")

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	isInitialize := req.Method == "initialize"
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	if !isInitialize && protoVersion != "" && !supportedProtocolVersions[protoVersion] {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}

	if !isInitialize {
		if sessionID == "" {
			http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
			return
		}
		sess, ok := s.sessions.get(sessionID)
		if !ok {
			// Session ended or unknown; the client must re-initialize.
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		if sess.owner != auth.SubjectFrom(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
		"session_id", sessionID,
	)

	// Notifications get HTTP 202 with no body.
	if isNotification {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, r, req)
	case "ping":
		s.sendJSONRPCResult(w, req.ID, map[string]any{})
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req, sessionID)
	default:
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

// negotiateVersion echoes the client's version when supported.
func negotiateVersion(requested string) string {
	if supportedProtocolVersions[requested] {
		return requested
	}
	return latestProtocolVersion
}

// handleInitialize handles the MCP initialize handshake and creates a session.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params MCPInitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}

	clientName, _ := params.ClientInfo["name"].(string)
	version := negotiateVersion(params.ProtocolVersion)
	sess := s.sessions.create(version, auth.SubjectFrom(r.Context()), clientName)

	s.logger.Info("MCP session created",
		"session_id", sess.id,
		"protocol_version", sess.protocolVersion,
		"client", clientName,
	)

	w.Header().Set("Mcp-Session-Id", sess.id)

	result := map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    tools.ServerName,
			"title":   tools.ServerTitle,
			"version": s.version,
		},
		"instructions": tools.Instructions,
	}
	s.sendJSONRPCResult(w, req.ID, result)
}

// handleToolsList handles tools/list requests.
func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	all := s.tools.List()
	result := MCPListToolsResult{Tools: make([]MCPToolInfo, len(all))}
	for i, t := range all {
		info := MCPToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
		if t.Annotations != nil {
			info.Annotations = t.Annotations
		}
		result.Tools[i] = info
	}

	s.logger.Debug("tools/list", "count", len(all))
	s.sendJSONRPCResult(w, req.ID, result)
}

// handleToolsCall handles tools/call requests. The request context bounds
// the studio round trip, so a client that hangs up abandons it.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, sessionID string) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}
	if params.Name == "" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	s.logger.Debug("tools/call", "tool_name", params.Name, "session_id", sessionID)

	res, err := s.tools.Call(r.Context(), params.Name, sessionID, params.Arguments)
	if err != nil {
		s.handleToolError(w, req.ID, params.Name, err)
		return
	}

	s.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"session_id", sessionID,
		"is_error", res.IsError,
	)

	s.sendJSONRPCResult(w, req.ID, MCPCallToolResult{
		Content: []MCPContent{{Type: "text", Text: res.Text}},
		IsError: res.IsError,
	})
}

// handleToolError maps registry errors to JSON-RPC errors.
func (s *Server) handleToolError(w http.ResponseWriter, id json.RawMessage, toolName string, err error) {
	s.logger.Warn("tool call failed", "tool_name", toolName, "error", err)

	code := JSONRPCInternalError
	message := "tool execution failed"
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		code = JSONRPCInvalidParams
		message = "tool not found"
	case errors.Is(err, context.Canceled):
		message = "request cancelled"
	}
	s.sendJSONRPCError(w, id, code, message, nil)
}
