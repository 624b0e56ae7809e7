// ABOUTME: Tests for the fake studio against an in-process gateway double.
// ABOUTME: Covers the handshake, command answering and the canned handlers.

package fakestudio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/studio-gateway/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gatewayDouble accepts one studio, acknowledges its registration and hands
// the socket to the test.
type gatewayDouble struct {
	id    uuid.UUID
	regs  chan wire.Registration
	conns chan *websocket.Conn
}

func newGatewayDouble(t *testing.T) (*gatewayDouble, string) {
	t.Helper()
	g := &gatewayDouble{
		id:    uuid.New(),
		regs:  make(chan wire.Registration, 1),
		conns: make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return
		}
		reg, err := wire.DecodeRegistration(data)
		if err != nil {
			_ = conn.Close()
			return
		}
		ack, _ := wire.EncodeRegistered(g.id)
		if err := conn.WriteMessage(websocket.BinaryMessage, ack); err != nil {
			_ = conn.Close()
			return
		}
		g.regs <- reg
		g.conns <- conn
	}))
	t.Cleanup(srv.Close)
	return g, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (g *gatewayDouble) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-g.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("studio never connected")
		return nil
	}
}

func sendCommand(t *testing.T, conn *websocket.Conn, tool string, args any) uuid.UUID {
	t.Helper()
	id := uuid.New()
	frame, err := wire.EncodeCommand(tool, args, id)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	return id
}

func readResponse(t *testing.T, conn *websocket.Conn) wire.Response {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(data)
	require.NoError(t, err)
	return resp
}

func dial(t *testing.T, url string, handler Handler) *Studio {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := Dial(ctx, Config{
		URL: url,
		Registration: wire.Registration{
			PlaceID:   7,
			PlaceName: "Obby",
			JobID:     "job-1",
		},
		Handler: handler,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDial_Registers(t *testing.T) {
	g, url := newGatewayDouble(t)
	s := dial(t, url, nil)
	g.accept(t)

	assert.Equal(t, g.id, s.ID())
	reg := <-g.regs
	assert.Equal(t, wire.TypeRegister, reg.Type)
	assert.Equal(t, uint64(7), reg.PlaceID)
	assert.Equal(t, "Obby", reg.PlaceName)
}

func TestDial_RejectsBadAck(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xc0})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Logger: testLogger()})
	assert.Error(t, err)
}

func TestStudio_EchoesCommands(t *testing.T) {
	g, url := newGatewayDouble(t)
	dial(t, url, nil)
	conn := g.accept(t)

	id := sendCommand(t, conn, "RunCode", wire.Map(
		wire.Pair{Key: wire.String("command"), Value: wire.String("print(1)")},
	))
	resp := readResponse(t, conn)

	assert.Equal(t, id, resp.ID)
	assert.True(t, resp.Success)
	assert.Equal(t, "{place_name: Obby, tool: RunCode, args: {command: print(1)}}", wire.Canonical(resp.Response))
}

func TestStudio_HandlerErrorIsFailedResponse(t *testing.T) {
	g, url := newGatewayDouble(t)
	dial(t, url, func(context.Context, Command) (wire.Value, error) {
		return wire.Value{}, errors.New("script error: boom")
	})
	conn := g.accept(t)

	id := sendCommand(t, conn, "RunCode", wire.Map())
	resp := readResponse(t, conn)

	assert.Equal(t, id, resp.ID)
	assert.False(t, resp.Success)
	assert.Equal(t, "script error: boom", resp.Response.AsString())
}

func TestStudio_AnswersOutOfOrder(t *testing.T) {
	g, url := newGatewayDouble(t)
	release := make(chan struct{})
	dial(t, url, func(ctx context.Context, cmd Command) (wire.Value, error) {
		if cmd.Tool == "Slow" {
			<-release
		}
		return wire.String(cmd.Tool), nil
	})
	conn := g.accept(t)

	slow := sendCommand(t, conn, "Slow", wire.Map())
	fast := sendCommand(t, conn, "Fast", wire.Map())

	assert.Equal(t, fast, readResponse(t, conn).ID)
	close(release)
	assert.Equal(t, slow, readResponse(t, conn).ID)
}

func TestStudio_CloseEndsConnection(t *testing.T) {
	g, url := newGatewayDouble(t)
	s := dial(t, url, nil)
	conn := g.accept(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed")
	}
}

func TestModes(t *testing.T) {
	h := Modes(Echo("x"))
	ctx := context.Background()
	call := func(tool string, args wire.Value) (string, error) {
		v, err := h(ctx, Command{Tool: tool, Args: args})
		return wire.Canonical(v), err
	}
	mode := func(m string) wire.Value {
		return wire.Map(wire.Pair{Key: wire.String("mode"), Value: wire.String(m)})
	}

	got, err := call("GetStudioMode", wire.Map())
	require.NoError(t, err)
	assert.Equal(t, "stop", got)

	_, err = call("StartStopPlay", mode("stop"))
	assert.Error(t, err)

	_, err = call("StartStopPlay", mode("start_play"))
	require.NoError(t, err)
	got, _ = call("GetStudioMode", wire.Map())
	assert.Equal(t, "start_play", got)

	_, err = call("StartStopPlay", mode("run_server"))
	assert.Error(t, err)

	_, err = call("StartStopPlay", mode("stop"))
	require.NoError(t, err)

	got, err = call("RunCode", wire.Map())
	require.NoError(t, err)
	assert.Contains(t, got, "tool: RunCode")
}

func TestBlock(t *testing.T) {
	release := make(chan struct{})
	h := Block(release, Echo("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h(ctx, Command{Tool: "RunCode"})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	_, err = h(context.Background(), Command{Tool: "RunCode"})
	assert.NoError(t, err)
}
