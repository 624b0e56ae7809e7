// ABOUTME: Gateway orchestrator that wires the studio manager to its HTTP surfaces
// ABOUTME: Owns the WebSocket and poll transports, MCP endpoint, history log and shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/2389/studio-gateway/internal/auth"
	"github.com/2389/studio-gateway/internal/config"
	"github.com/2389/studio-gateway/internal/mcp"
	"github.com/2389/studio-gateway/internal/recent"
	"github.com/2389/studio-gateway/internal/store"
	"github.com/2389/studio-gateway/internal/studio"
	"github.com/2389/studio-gateway/internal/tools"
)

// Version is reported to MCP clients. Overridden by the binary at build time.
var Version = "dev"

// Recently resolved correlation ids are kept this long so late duplicates can
// be told apart from ids that never existed.
const (
	resolvedTTL      = 5 * time.Minute
	resolvedCapacity = 100_000
	historyBuffer    = 1024
)

// Gateway orchestrates the studio-gateway server components.
type Gateway struct {
	config   *config.Config
	manager  *studio.Manager
	resolved *recent.Set
	store    *store.SQLiteStore // nil when the history log is disabled
	recorder *store.Recorder
	mcp      *mcp.Server
	ws       *wsHandler
	poll     *pollHandler
	handler  http.Handler
	logger   *slog.Logger

	httpServer *http.Server

	// shutdownCtx is cancelled first on Shutdown to close studio sockets.
	shutdownCtx context.Context
	stop        context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// initHistory opens the history log when a path is configured.
func initHistory(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, *store.Recorder, error) {
	if cfg.History.Path == "" {
		return nil, nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.History.Path, logger.With("component", "store"))
	if err != nil {
		return nil, nil, fmt.Errorf("initializing history log: %w", err)
	}
	return s, store.NewRecorder(s, logger.With("component", "history"), historyBuffer), nil
}

// initVerifier builds the token verifier when a secret is configured.
func initVerifier(cfg *config.Config) (*auth.JWTVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	return v, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	historyStore, recorder, err := initHistory(cfg, logger)
	if err != nil {
		return nil, err
	}

	verifier, err := initVerifier(cfg)
	if err != nil {
		closeHistory(historyStore, recorder)
		return nil, err
	}

	resolved := recent.NewSet(resolvedTTL, resolvedCapacity, time.Minute)

	managerCfg := studio.Config{
		Logger:   logger.With("component", "studio-manager"),
		Resolved: resolved,
	}
	if recorder != nil {
		managerCfg.Recorder = recorder
	}
	manager := studio.NewManager(managerCfg)

	catalogue, err := tools.NewCatalogue(manager, logger.With("component", "tools"))
	if err != nil {
		resolved.Close()
		closeHistory(historyStore, recorder)
		return nil, fmt.Errorf("building tool catalogue: %w", err)
	}

	mcpCfg := mcp.Config{
		Tools:       catalogue,
		Sessions:    manager,
		Logger:      logger.With("component", "mcp"),
		RequireAuth: cfg.MCP.RequireAuth,
		Version:     Version,
	}
	if verifier != nil {
		mcpCfg.TokenVerifier = verifier
	}
	mcpServer, err := mcp.NewServer(mcpCfg)
	if err != nil {
		resolved.Close()
		closeHistory(historyStore, recorder)
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	shutdownCtx, stop := context.WithCancel(context.Background())
	gw := &Gateway{
		config:   cfg,
		manager:  manager,
		resolved: resolved,
		store:    historyStore,
		recorder: recorder,
		mcp:      mcpServer,
		ws: &wsHandler{
			manager:           manager,
			logger:            logger.With("component", "ws"),
			handshakeTimeout:  cfg.Studio.HandshakeTimeout,
			keepaliveInterval: cfg.Studio.KeepaliveInterval,
			maxFrameBytes:     cfg.Studio.MaxFrameBytes,
			shutdown:          shutdownCtx,
		},
		logger:      logger.With("component", "gateway"),
		shutdownCtx: shutdownCtx,
		stop:        stop,
	}
	if cfg.Studio.Poll.Enabled {
		gw.poll = &pollHandler{
			manager:       manager,
			logger:        logger.With("component", "poll"),
			wait:          cfg.Studio.Poll.Wait,
			idleTimeout:   cfg.Studio.Poll.IdleTimeout,
			maxFrameBytes: cfg.Studio.MaxFrameBytes,
			now:           time.Now,
		}
		go gw.poll.runReaper(shutdownCtx)
	}

	gw.handler = gw.routes(verifier)
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// routes builds the HTTP mux.
func (g *Gateway) routes(verifier *auth.JWTVerifier) http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	// Studio transports - plugins cannot carry bearer tokens
	mux.Handle("/ws", g.ws)
	if g.poll != nil {
		g.poll.RegisterRoutes(mux)
	}

	// API endpoints - auth required alongside MCP auth
	if g.config.MCP.RequireAuth && verifier != nil {
		requireBearer := auth.RequireBearer(verifier, g.logger)
		mux.Handle("/api/studios", requireBearer(http.HandlerFunc(g.handleListStudios)))
		mux.Handle("/api/history", requireBearer(http.HandlerFunc(g.handleHistory)))
		g.logger.Info("HTTP auth middleware enabled")
	} else {
		mux.HandleFunc("/api/studios", g.handleListStudios)
		mux.HandleFunc("/api/history", g.handleHistory)
	}

	g.mcp.RegisterRoutes(mux)
	return mux
}

// Handler returns the gateway's HTTP handler. Tests serve it with httptest.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Manager returns the studio manager.
func (g *Gateway) Manager() *studio.Manager {
	return g.manager
}

// Run listens on server.http_addr and blocks until ctx is canceled or the
// server fails, then shuts down gracefully.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = g.gracefulShutdown()
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.logger.Info("starting gateway",
		"http_addr", ln.Addr().String(),
		"poll_enabled", g.poll != nil,
		"history", g.store != nil,
		"mcp_auth", g.config.MCP.RequireAuth,
	)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown closes studio connections, fails in-flight requests, stops the
// HTTP server and releases resources. Safe to call more than once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway")

		// Sockets close with GoingAway and the reaper stops.
		g.stop()
		// Pending dispatches fail now rather than hold HTTP handlers open.
		g.manager.Close()

		var errs []error
		errs = appendCloseError(errs, "HTTP server shutdown", g.httpServer.Shutdown(ctx))

		g.resolved.Close()
		if g.recorder != nil {
			g.recorder.Close()
		}
		if g.store != nil {
			errs = appendCloseError(errs, "closing history log", g.store.Close())
		}

		g.shutdownErr = errors.Join(errs...)
		g.logger.Info("gateway shutdown complete")
	})
	return g.shutdownErr
}

func closeHistory(s *store.SQLiteStore, r *store.Recorder) {
	if r != nil {
		r.Close()
	}
	if s != nil {
		_ = s.Close()
	}
}
