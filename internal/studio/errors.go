// ABOUTME: Error values returned by studio routing and dispatch.
// ABOUTME: Messages double as the guidance text shown to the MCP client.

package studio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrHandshakeInvalid indicates the first frame on a connection was not a valid
// registration. The connection is closed and nothing is registered.
var ErrHandshakeInvalid = errors.New("invalid registration handshake")

// ErrUnknownCorrelationID indicates a response for a request that is not pending.
// It is logged and dropped, never fatal.
var ErrUnknownCorrelationID = errors.New("response for unknown correlation id")

// ErrNoneConnected indicates no studio is connected.
var ErrNoneConnected = errors.New("No Studio instances connected. Open Roblox Studio with the MCP plugin enabled.")

// ErrAmbiguous is matched by *AmbiguousError.
var ErrAmbiguous = errors.New("multiple studios connected")

// ErrStaleSelection is matched by *StaleSelectionError.
var ErrStaleSelection = errors.New("selected studio is no longer connected")

// ErrSendFailed indicates the studio's outbound queue closed while the command
// was being queued.
var ErrSendFailed = errors.New("failed to send to studio: connection closed")

// ErrDisconnected indicates the studio went away before it answered.
var ErrDisconnected = errors.New("studio disconnected before responding")

// Candidate names one connected studio in a corrective error message.
type Candidate struct {
	ID        uuid.UUID
	PlaceName string
}

func writeCandidates(sb *strings.Builder, candidates []Candidate) {
	for _, c := range candidates {
		fmt.Fprintf(sb, "\n  %s - %s", c.ID, c.PlaceName)
	}
}

// AmbiguousError is returned when a session has no selection and more than one
// studio is connected.
type AmbiguousError struct {
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	var sb strings.Builder
	sb.WriteString("Multiple studios connected. Call set_studio(studio_id=X) first.\nConnected studios:")
	writeCandidates(&sb, e.Candidates)
	return sb.String()
}

// Is reports whether target is ErrAmbiguous.
func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguous
}

// StaleSelectionError is returned when a session's selected studio has
// disconnected.
type StaleSelectionError struct {
	ID uuid.UUID
}

func (e *StaleSelectionError) Error() string {
	return fmt.Sprintf("Selected studio %s is no longer connected. Use list_studios and set_studio to pick a new one.", e.ID)
}

// Is reports whether target is ErrStaleSelection.
func (e *StaleSelectionError) Is(target error) bool {
	return target == ErrStaleSelection
}

// UnknownStudioError is returned by Bind for an id that is not connected.
type UnknownStudioError struct {
	ID        uuid.UUID
	Available []Candidate
}

func (e *UnknownStudioError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "No studio with studio_id %s.\nAvailable:", e.ID)
	if len(e.Available) == 0 {
		sb.WriteString(" none")
	}
	writeCandidates(&sb, e.Available)
	return sb.String()
}

// RemoteError carries the message of a response with success=false.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
