// ABOUTME: WebSocket lifecycle handler for studios connecting on GET /ws
// ABOUTME: Handles the registration handshake, then runs read, write and keepalive loops until teardown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/studio-gateway/internal/studio"
	"github.com/2389/studio-gateway/internal/wire"
)

// errShutdown ends a connection's loops when the gateway stops.
var errShutdown = errors.New("gateway shutting down")

// wsHandler serves the studio WebSocket endpoint.
type wsHandler struct {
	manager           *studio.Manager
	logger            *slog.Logger
	handshakeTimeout  time.Duration
	keepaliveInterval time.Duration
	maxFrameBytes     int64

	// shutdown is cancelled when the gateway stops; open sockets close with
	// StatusGoingAway.
	shutdown context.Context
}

// ServeHTTP upgrades the request and owns the connection until it ends.
// Protocol flow:
// 1. Studio sends a registration envelope as its first binary frame
// 2. Gateway registers it and replies with the assigned studio_id
// 3. Gateway pushes command frames; studio sends response frames
func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(h.maxFrameBytes)

	// Hijacked connections outlive the request context, so the connection
	// gets its own.
	connCtx, cancelConn := context.WithCancel(context.Background())
	defer cancelConn()

	reg, err := h.readRegistration(connCtx, conn)
	if err != nil {
		h.logger.Warn("rejected studio handshake", "remote_addr", r.RemoteAddr, "error", err)
		if closeErr := conn.Close(websocket.StatusPolicyViolation, "expected registration"); closeErr != nil {
			_ = conn.CloseNow()
		}
		return
	}

	sc := h.manager.Register(reg, studio.TransportWebSocket)

	ack, err := wire.EncodeRegistered(sc.ID)
	if err == nil {
		err = conn.Write(connCtx, websocket.MessageBinary, ack)
	}
	if err != nil {
		h.logger.Warn("failed to acknowledge registration", "studio_id", sc.ID, "error", err)
		h.manager.Unregister(sc.ID)
		_ = conn.CloseNow()
		return
	}

	h.serve(connCtx, cancelConn, conn, sc)
}

// readRegistration waits for the first frame and decodes it as a registration.
func (h *wsHandler) readRegistration(ctx context.Context, conn *websocket.Conn) (wire.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, h.handshakeTimeout)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return wire.Registration{}, fmt.Errorf("%w: %v", studio.ErrHandshakeInvalid, err)
	}
	if typ != websocket.MessageBinary {
		return wire.Registration{}, fmt.Errorf("%w: first frame is not binary", studio.ErrHandshakeInvalid)
	}
	reg, err := wire.DecodeRegistration(data)
	if err != nil {
		return wire.Registration{}, fmt.Errorf("%w: %v", studio.ErrHandshakeInvalid, err)
	}
	return reg, nil
}

// serve runs the connection loops and tears the studio down when the first
// of them ends.
func (h *wsHandler) serve(connCtx context.Context, cancelConn context.CancelFunc, conn *websocket.Conn, sc *studio.Connection) {
	logger := h.logger.With("studio_id", sc.ID)

	// Reads use connCtx: cancelling a read closes the socket, and on shutdown
	// the close handshake still needs the reader.
	loopCtx, cancelLoops := context.WithCancel(connCtx)
	defer cancelLoops()
	stopOnShutdown := context.AfterFunc(h.shutdown, cancelLoops)
	defer stopOnShutdown()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	run := func(loop func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- loop()
		}()
	}
	run(func() error { return h.readLoop(connCtx, conn, sc, logger) })
	run(func() error { return h.writeLoop(loopCtx, conn, sc) })
	if h.keepaliveInterval > 0 {
		run(func() error { return h.keepaliveLoop(loopCtx, conn) })
	}

	err := <-errCh
	if h.shutdown.Err() != nil {
		err = errShutdown
	}

	// Unregister before closing so no new command is queued onto a dead socket.
	h.manager.Unregister(sc.ID)
	cancelLoops()

	switch {
	case errors.Is(err, errShutdown):
		logger.Info("closing studio connection for shutdown")
		if closeErr := conn.Close(websocket.StatusGoingAway, "gateway shutting down"); closeErr != nil {
			_ = conn.CloseNow()
		}
	case isNormalClose(err):
		logger.Info("studio closed connection", "status", websocket.CloseStatus(err))
		_ = conn.CloseNow()
	default:
		logger.Warn("studio connection ended", "error", err)
		_ = conn.CloseNow()
	}

	cancelConn()
	wg.Wait()
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// readLoop routes every response frame to the manager. Undecodable frames are
// logged and dropped; text frames are ignored.
func (h *wsHandler) readLoop(ctx context.Context, conn *websocket.Conn, sc *studio.Connection, logger *slog.Logger) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		sc.Touch(time.Now())

		if typ != websocket.MessageBinary {
			logger.Debug("ignoring text frame", "bytes", len(data))
			continue
		}

		resp, err := wire.DecodeResponse(data)
		if err != nil {
			logger.Warn("dropping malformed response frame", "bytes", len(data), "error", err)
			continue
		}
		// Unknown ids are logged by the manager.
		_ = h.manager.HandleResponse(sc.ID, resp)
	}
}

// writeLoop drains the studio's outbox in order.
func (h *wsHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sc *studio.Connection) error {
	for {
		frame, err := sc.Outbox().Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return errShutdown
			}
			return err
		}
		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			return fmt.Errorf("writing frame: %w", err)
		}
	}
}

// keepaliveLoop pings the studio every keepaliveInterval. A ping that is not
// answered within the interval ends the connection.
func (h *wsHandler) keepaliveLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(h.keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errShutdown
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.keepaliveInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return errShutdown
				}
				return fmt.Errorf("keepalive failed: %w", err)
			}
		}
	}
}
