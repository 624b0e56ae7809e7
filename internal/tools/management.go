// ABOUTME: Session-level tools that inspect and choose the target studio.
// ABOUTME: list_studios, get_studio and set_studio answer from the registry alone.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/studio-gateway/internal/studio"
)

// studioView is the JSON shape of studio metadata shown to the model.
type studioView struct {
	StudioID     string `json:"studio_id"`
	PlaceID      uint64 `json:"place_id"`
	PlaceName    string `json:"place_name"`
	GameID       uint64 `json:"game_id"`
	JobID        string `json:"job_id"`
	PlaceVersion uint64 `json:"place_version"`
	CreatorID    uint64 `json:"creator_id"`
	CreatorType  string `json:"creator_type"`
	ConnectedAt  string `json:"connected_at"`
}

func viewOf(info studio.Info) studioView {
	return studioView{
		StudioID:     info.ID.String(),
		PlaceID:      info.PlaceID,
		PlaceName:    info.PlaceName,
		GameID:       info.GameID,
		JobID:        info.JobID,
		PlaceVersion: info.PlaceVersion,
		CreatorID:    info.CreatorID,
		CreatorType:  info.CreatorType,
		ConnectedAt:  info.ConnectedAt.Format(time.RFC3339),
	}
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("failed to encode studio metadata: %v", err)
	}
	return string(data)
}

func listStudios(b Backend) Handler {
	return func(context.Context, Call) Result {
		infos := b.ListStudios()
		views := make([]studioView, len(infos))
		for i, info := range infos {
			views[i] = viewOf(info)
		}
		return textResult(prettyJSON(views))
	}
}

func getStudio(b Backend) Handler {
	return func(_ context.Context, call Call) Result {
		sel := b.Describe(call.Session)
		switch {
		case !sel.Selected:
			return textResult("No studio selected.")
		case sel.Stale:
			return textResult("Selected studio is no longer connected. Use list_studios and set_studio to pick a new one.")
		}
		return textResult(prettyJSON(viewOf(sel.Info)))
	}
}

type setStudioArgs struct {
	StudioID *string `json:"studio_id"`
}

func setStudio(b Backend, logger *slog.Logger) Handler {
	return func(_ context.Context, call Call) Result {
		var args setStudioArgs
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return errorResult(fmt.Sprintf("Invalid arguments for set_studio: %v", err))
		}

		if args.StudioID == nil {
			if _, err := b.Bind(call.Session, nil); err != nil {
				return errorResult(err.Error())
			}
			return textResult("Studio selection cleared.")
		}

		raw := strings.TrimSpace(*args.StudioID)
		id, err := uuid.Parse(raw)
		if err != nil {
			return errorResult("Invalid studio_id: " + *args.StudioID)
		}

		info, err := b.Bind(call.Session, &id)
		if err != nil {
			logger.Debug("set_studio rejected", "session", call.Session, "studio_id", id, "error", err)
			return errorResult(err.Error())
		}
		return textResult(prettyJSON(viewOf(*info)))
	}
}

func registerManagementTools(r *Registry, b Backend) error {
	empty := json.RawMessage(`{"type": "object", "properties": {}}`)
	readOnly := &Annotations{ReadOnlyHint: true, IdempotentHint: true}

	defs := []*Tool{
		{
			Name:        "set_studio",
			Description: "Bind this session to a specific Roblox Studio instance. All subsequent tool calls will route to the selected studio. Use list_studios to discover available studio_ids.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"studio_id": {"type": ["string", "null"], "description": "The studio_id field from list_studios output. Omit to clear selection."}
				}
			}`),
			Annotations: &Annotations{IdempotentHint: true},
			Handler:     setStudio(b, r.logger),
		},
		{
			Name:        "get_studio",
			Description: "Get the currently selected Roblox Studio instance for this session. Returns studio metadata if a studio is selected and still connected, or nothing if no studio is selected or the selected studio disconnected.",
			InputSchema: empty,
			Annotations: readOnly,
			Handler:     getStudio(b),
		},
		{
			Name:        "list_studios",
			Description: "List all currently connected Roblox Studio instances with their studio_id and metadata.",
			InputSchema: empty,
			Annotations: readOnly,
			Handler:     listStudios(b),
		},
	}
	for _, t := range defs {
		if err := r.Register(t); err != nil {
			return fmt.Errorf("registering %s: %w", t.Name, err)
		}
	}
	return nil
}

// NewCatalogue builds the registry with every studio and management tool.
func NewCatalogue(b Backend, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry(logger.With("component", "tools"))
	if err := registerStudioTools(r, b); err != nil {
		return nil, err
	}
	if err := registerManagementTools(r, b); err != nil {
		return nil, err
	}
	return r, nil
}
