// ABOUTME: Represents a single registered studio and its outbound frame queue.
// ABOUTME: Metadata comes from the registration handshake; the id is minted by the gateway.

package studio

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/studio-gateway/internal/wire"
)

// Transport names how a studio reaches the gateway.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportPoll      Transport = "poll"
)

// Info describes a connected studio. It is informational only: routing uses ID.
type Info struct {
	ID           uuid.UUID `json:"studio_id"`
	PlaceID      uint64    `json:"place_id"`
	PlaceName    string    `json:"place_name"`
	GameID       uint64    `json:"game_id"`
	JobID        string    `json:"job_id"`
	PlaceVersion uint64    `json:"place_version"`
	CreatorID    uint64    `json:"creator_id"`
	CreatorType  string    `json:"creator_type"`
	ConnectedAt  time.Time `json:"connected_at"`
	Transport    Transport `json:"transport"`
}

func infoFromRegistration(id uuid.UUID, reg wire.Registration, transport Transport, now time.Time) Info {
	return Info{
		ID:           id,
		PlaceID:      reg.PlaceID,
		PlaceName:    reg.PlaceName,
		GameID:       reg.GameID,
		JobID:        reg.JobID,
		PlaceVersion: reg.PlaceVersion,
		CreatorID:    reg.CreatorID,
		CreatorType:  reg.CreatorType,
		ConnectedAt:  now.UTC(),
		Transport:    transport,
	}
}

// Connection is one registered studio. Exactly one lifecycle handler owns it
// and drains its Outbox.
type Connection struct {
	ID   uuid.UUID
	Info Info

	outbox   *Outbox
	lastSeen atomic.Int64 // unix nanos of the last inbound activity
}

func newConnection(info Info) *Connection {
	c := &Connection{
		ID:     info.ID,
		Info:   info,
		outbox: NewOutbox(),
	}
	c.lastSeen.Store(info.ConnectedAt.UnixNano())
	return c
}

// Outbox returns the queue of frames waiting to be written to the studio.
func (c *Connection) Outbox() *Outbox {
	return c.outbox
}

// Touch records inbound activity from the studio.
func (c *Connection) Touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}

// LastSeen returns the time of the last recorded inbound activity.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Connection) candidate() Candidate {
	return Candidate{ID: c.ID, PlaceName: c.Info.PlaceName}
}
