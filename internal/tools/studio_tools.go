// ABOUTME: Tools that forward their arguments to the session's Roblox Studio.
// ABOUTME: Each maps an MCP tool name to the command name the Studio plugin understands.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/2389/studio-gateway/internal/studio"
)

// Backend is what the tools need from the studio manager.
type Backend interface {
	DispatchJSON(ctx context.Context, tool string, argsJSON []byte, sessionKey string) (string, error)
	ListStudios() []studio.Info
	Describe(sessionKey string) studio.Selection
	Bind(sessionKey string, id *uuid.UUID) (*studio.Info, error)
}

type forwarded struct {
	name        string
	command     string
	description string
	schema      string
	annotations Annotations
}

var studioTools = []forwarded{
	{
		name:        "run_code",
		command:     "RunCode",
		description: "Runs a command in Roblox Studio and returns the printed output. Can be used to both make changes and retrieve information",
		schema: `{
			"type": "object",
			"properties": {"command": {"type": "string", "description": "Code to run"}},
			"required": ["command"]
		}`,
		annotations: Annotations{DestructiveHint: true},
	},
	{
		name:        "insert_model",
		command:     "InsertModel",
		description: "Inserts a model from the Roblox marketplace into the workspace. Returns the inserted model name.",
		schema: `{
			"type": "object",
			"properties": {"query": {"type": "string", "description": "Query to search for the model"}},
			"required": ["query"]
		}`,
		annotations: Annotations{OpenWorldHint: true},
	},
	{
		name:        "get_console_output",
		command:     "GetConsoleOutput",
		description: "Get the console output from Roblox Studio.",
		schema:      `{"type": "object", "properties": {}}`,
		annotations: Annotations{ReadOnlyHint: true, IdempotentHint: true},
	},
	{
		name:        "get_studio_mode",
		command:     "GetStudioMode",
		description: "Get the current studio mode. Returns the studio mode. The result will be one of start_play, run_server, or stop.",
		schema:      `{"type": "object", "properties": {}}`,
		annotations: Annotations{ReadOnlyHint: true, IdempotentHint: true},
	},
	{
		name:        "start_stop_play",
		command:     "StartStopPlay",
		description: "Start or stop play mode or run the server. Don't enter run_server mode unless you are sure no client/player is needed.",
		schema: `{
			"type": "object",
			"properties": {
				"mode": {
					"type": "string",
					"enum": ["start_play", "stop", "run_server"],
					"description": "Mode to start or stop, must be start_play, stop, or run_server. Don't use run_server unless you are sure no client/player is needed."
				}
			},
			"required": ["mode"]
		}`,
	},
	{
		name:        "run_script_in_play_mode",
		command:     "run_script_in_play_mode",
		description: "Run a script in play mode and stop play automatically when it finishes or times out. Returns the script's output, errors and duration. Only use it for one-off tests against the server datamodel; the studio is back in stop mode afterwards.",
		schema: `{
			"type": "object",
			"properties": {
				"code": {"type": "string", "description": "Code to run"},
				"timeout": {"type": "integer", "minimum": 0, "maximum": 4294967295, "description": "Timeout in seconds. Defaults to 100 seconds."},
				"mode": {"type": "string", "enum": ["start_play", "run_server"]}
			},
			"required": ["code", "mode"]
		}`,
	},
}

func forwardHandler(b Backend, command string) Handler {
	return func(ctx context.Context, call Call) Result {
		text, err := b.DispatchJSON(ctx, command, call.Args, call.Session)
		if err != nil {
			return errorResult(dispatchErrorText(err))
		}
		return textResult(text)
	}
}

// dispatchErrorText turns a dispatch failure into guidance for the model.
func dispatchErrorText(err error) string {
	var remote *studio.RemoteError
	switch {
	case errors.As(err, &remote):
		return remote.Message
	case errors.Is(err, studio.ErrDisconnected):
		return "Studio disconnected before responding. Use list_studios to see which studios are still connected."
	case errors.Is(err, studio.ErrSendFailed):
		return "Failed to send to studio (disconnected). Use list_studios to see which studios are still connected."
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out waiting for Roblox Studio."
	}
	// Resolution errors already carry their own guidance.
	return err.Error()
}

func registerStudioTools(r *Registry, b Backend) error {
	for _, f := range studioTools {
		a := f.annotations
		err := r.Register(&Tool{
			Name:        f.name,
			Description: f.description,
			InputSchema: json.RawMessage(f.schema),
			Annotations: &a,
			Handler:     forwardHandler(b, f.command),
		})
		if err != nil {
			return fmt.Errorf("registering %s: %w", f.name, err)
		}
	}
	return nil
}
