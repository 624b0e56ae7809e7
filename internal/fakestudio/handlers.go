// ABOUTME: Canned command handlers for the fake studio.
// ABOUTME: Echo mirrors the command back; Modes keeps a tiny play-mode state machine.

package fakestudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/2389/studio-gateway/internal/wire"
)

// Echo answers every command with a map naming the place, the tool and the
// arguments it received.
func Echo(placeName string) Handler {
	return func(_ context.Context, cmd Command) (wire.Value, error) {
		return wire.Map(
			wire.Pair{Key: wire.String("place_name"), Value: wire.String(placeName)},
			wire.Pair{Key: wire.String("tool"), Value: wire.String(cmd.Tool)},
			wire.Pair{Key: wire.String("args"), Value: cmd.Args},
		), nil
	}
}

// Modes tracks studio mode the way the plugin reports it. GetStudioMode and
// StartStopPlay are handled; anything else falls through to next.
func Modes(next Handler) Handler {
	var mu sync.Mutex
	mode := "stop"

	return func(ctx context.Context, cmd Command) (wire.Value, error) {
		switch cmd.Tool {
		case "GetStudioMode":
			mu.Lock()
			defer mu.Unlock()
			return wire.String(mode), nil
		case "StartStopPlay":
			requested, _ := cmd.Args.Lookup("mode")
			want := requested.AsString()
			mu.Lock()
			defer mu.Unlock()
			switch want {
			case "start_play", "run_server":
				if mode != "stop" {
					return wire.Value{}, fmt.Errorf("studio is already in %s mode", mode)
				}
			case "stop":
				if mode == "stop" {
					return wire.Value{}, errors.New("studio is not in play mode")
				}
			default:
				return wire.Value{}, fmt.Errorf("unknown mode %q", want)
			}
			mode = want
			return wire.String("Studio mode set to " + want), nil
		}
		return next(ctx, cmd)
	}
}

// Block holds every command until ctx ends or release is closed, then
// delegates to next. Tests use it to keep requests in flight.
func Block(release <-chan struct{}, next Handler) Handler {
	return func(ctx context.Context, cmd Command) (wire.Value, error) {
		select {
		case <-release:
			return next(ctx, cmd)
		case <-ctx.Done():
			return wire.Value{}, ctx.Err()
		}
	}
}
