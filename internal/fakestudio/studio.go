// ABOUTME: WebSocket client that behaves like the Studio plugin side of the gateway protocol.
// ABOUTME: Registers, then answers command frames through a pluggable handler.

package fakestudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/studio-gateway/internal/wire"
)

// Command is one decoded command frame.
type Command struct {
	ID   uuid.UUID
	Tool string
	Args wire.Value
}

// Handler answers a command. A non-nil error is reported to the gateway as a
// failed response carrying the error text.
type Handler func(ctx context.Context, cmd Command) (wire.Value, error)

// Config configures a fake studio.
type Config struct {
	URL          string // ws://host:port/ws
	Registration wire.Registration
	Handler      Handler      // defaults to Echo
	Logger       *slog.Logger // optional
	Dialer       *websocket.Dialer
}

// Studio is a connected, registered fake studio.
type Studio struct {
	id      uuid.UUID
	conn    *websocket.Conn
	handler Handler
	logger  *slog.Logger

	writeMu sync.Mutex // gorilla connections allow one concurrent writer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	closeOnce sync.Once
}

// Dial connects to the gateway and completes the registration handshake.
// The returned studio is already answering commands.
func Dial(ctx context.Context, cfg Config) (*Studio, error) {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	handler := cfg.Handler
	if handler == nil {
		handler = Echo(cfg.Registration.PlaceName)
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.URL, err)
	}

	id, err := handshake(ctx, conn, cfg.Registration)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Studio{
		id:      id,
		conn:    conn,
		handler: handler,
		logger:  logger.With("studio_id", id),
		ctx:     runCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.readLoop()

	s.logger.Info("registered with gateway", "place_name", cfg.Registration.PlaceName)
	return s, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, reg wire.Registration) (uuid.UUID, error) {
	frame, err := wire.EncodeRegistration(reg)
	if err != nil {
		return uuid.Nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return uuid.Nil, fmt.Errorf("sending registration: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return uuid.Nil, fmt.Errorf("waiting for registration ack: %w", err)
	}
	return wire.DecodeRegistered(data)
}

// ID returns the studio id the gateway assigned.
func (s *Studio) ID() uuid.UUID {
	return s.id
}

// Done is closed once the connection has ended.
func (s *Studio) Done() <-chan struct{} {
	return s.done
}

// Err returns why the connection ended. Only valid after Done is closed.
func (s *Studio) Err() error {
	<-s.done
	return s.err
}

func (s *Studio) readLoop() {
	defer close(s.done)
	defer s.cancel()

	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = nil
			} else {
				s.err = err
			}
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}

		cmd, args, err := wire.DecodeCommand(data)
		if err != nil {
			s.logger.Warn("dropping undecodable command frame", "error", err)
			continue
		}
		id, err := uuid.Parse(cmd.ID)
		if err != nil {
			s.logger.Warn("dropping command with bad id", "id", cmd.ID)
			continue
		}

		// Handlers may block, so each command gets its own goroutine.
		go s.answer(Command{ID: id, Tool: cmd.Tool, Args: args})
	}
}

func (s *Studio) answer(cmd Command) {
	s.logger.Debug("← command", "tool", cmd.Tool, "request_id", cmd.ID)

	value, err := s.handler(s.ctx, cmd)
	resp := wire.Response{ID: cmd.ID, Success: err == nil, Response: value}
	if err != nil {
		resp.Response = wire.String(err.Error())
	}
	if s.ctx.Err() != nil {
		return
	}
	if err := s.Respond(resp); err != nil {
		s.logger.Warn("failed to send response", "request_id", cmd.ID, "error", err)
	}
}

// Respond sends a response frame. Tests use it to send late or duplicate answers.
func (s *Studio) Respond(resp wire.Response) error {
	frame, err := wire.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return s.SendRaw(frame)
}

// SendRaw writes an arbitrary binary frame.
func (s *Studio) SendRaw(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close sends a normal close frame and tears the connection down. Safe to
// call more than once.
func (s *Studio) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			s.logger.Debug("close frame not sent", "error", werr)
		}
		err = s.conn.Close()
		<-s.done
	})
	return err
}
