// ABOUTME: Registration, command and response envelopes exchanged with a studio.
// ABOUTME: Correlation ids travel as uuid text and are accepted back as text or 16 raw bytes.

package wire

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Envelope type tags.
const (
	TypeRegister   = "register"
	TypeRegistered = "registered"
)

var (
	// ErrNotRegistration is returned when a handshake frame decodes but is not
	// a registration envelope.
	ErrNotRegistration = errors.New("frame is not a registration envelope")

	// ErrIncompleteRegistration is returned when a registration envelope lacks
	// one of the place metadata keys or carries nil for it.
	ErrIncompleteRegistration = errors.New("registration is missing place metadata")

	// ErrMissingID is returned for a response envelope without a correlation id.
	ErrMissingID = errors.New("response has no correlation id")

	// ErrMissingSuccess is returned for a response envelope without a success flag.
	ErrMissingSuccess = errors.New("response has no success flag")
)

// registrationKeys are the metadata keys every registration must carry.
var registrationKeys = []string{
	"place_id",
	"place_name",
	"game_id",
	"job_id",
	"place_version",
	"creator_id",
	"creator_type",
}

// Registration is the first frame a studio sends after connecting.
type Registration struct {
	Type         string `msgpack:"type"`
	PlaceID      uint64 `msgpack:"place_id"`
	PlaceName    string `msgpack:"place_name"`
	GameID       uint64 `msgpack:"game_id"`
	JobID        string `msgpack:"job_id"`
	PlaceVersion uint64 `msgpack:"place_version"`
	CreatorID    uint64 `msgpack:"creator_id"`
	CreatorType  string `msgpack:"creator_type"`
}

// Registered acknowledges a registration with the id the gateway assigned.
type Registered struct {
	Type     string `msgpack:"type"`
	StudioID string `msgpack:"studio_id"`
}

// Command is pushed to a studio to run one tool.
type Command struct {
	Tool string `msgpack:"tool"`
	Args any    `msgpack:"args"`
	ID   string `msgpack:"id"`
}

// Response is a studio's answer to one Command.
type Response struct {
	ID       uuid.UUID
	Success  bool
	Response Value
}

var _ msgpack.CustomEncoder = Response{}
var _ msgpack.CustomDecoder = (*Response)(nil)

// EncodeMsgpack writes the response as {id, success, response} with id in text form.
func (r Response) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString("id"); err != nil {
		return err
	}
	if err := enc.EncodeString(r.ID.String()); err != nil {
		return err
	}
	if err := enc.EncodeString("success"); err != nil {
		return err
	}
	if err := enc.EncodeBool(r.Success); err != nil {
		return err
	}
	if err := enc.EncodeString("response"); err != nil {
		return err
	}
	return r.Response.EncodeMsgpack(enc)
}

// DecodeMsgpack reads a response map, ignoring keys it does not know.
func (r *Response) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if n < 0 {
		return errors.New("response is nil")
	}

	var out Response
	var haveID, haveSuccess bool
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return fmt.Errorf("decoding response key: %w", err)
		}
		switch key {
		case "id":
			id, err := decodeCorrelationID(dec)
			if err != nil {
				return err
			}
			out.ID = id
			haveID = true
		case "success":
			if out.Success, err = dec.DecodeBool(); err != nil {
				return fmt.Errorf("decoding success flag: %w", err)
			}
			haveSuccess = true
		case "response":
			if out.Response, err = decodeValue(dec, 0); err != nil {
				return fmt.Errorf("decoding response payload: %w", err)
			}
		default:
			if err := dec.Skip(); err != nil {
				return err
			}
		}
	}
	if !haveID {
		return ErrMissingID
	}
	if !haveSuccess {
		return ErrMissingSuccess
	}
	*r = out
	return nil
}

// decodeCorrelationID accepts the uuid either as text or as 16 raw bytes.
func decodeCorrelationID(dec *msgpack.Decoder) (uuid.UUID, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return uuid.Nil, err
	}
	switch {
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		if err != nil {
			return uuid.Nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return uuid.Nil, fmt.Errorf("parsing correlation id %q: %w", s, err)
		}
		return id, nil
	case msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		if err != nil {
			return uuid.Nil, err
		}
		id, err := uuid.FromBytes(b)
		if err != nil {
			return uuid.Nil, fmt.Errorf("parsing binary correlation id: %w", err)
		}
		return id, nil
	default:
		return uuid.Nil, fmt.Errorf("correlation id has unsupported msgpack code 0x%02x", c)
	}
}

// EncodeCommand builds the frame pushed to a studio.
func EncodeCommand(tool string, args any, id uuid.UUID) ([]byte, error) {
	b, err := msgpack.Marshal(Command{Tool: tool, Args: args, ID: id.String()})
	if err != nil {
		return nil, fmt.Errorf("encoding command %s: %w", tool, err)
	}
	return b, nil
}

// DecodeCommand parses a command frame. Args come back as a Value.
func DecodeCommand(data []byte) (Command, Value, error) {
	var raw struct {
		Tool string `msgpack:"tool"`
		Args Value  `msgpack:"args"`
		ID   string `msgpack:"id"`
	}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return Command{}, Value{}, fmt.Errorf("decoding command: %w", err)
	}
	return Command{Tool: raw.Tool, Args: raw.Args, ID: raw.ID}, raw.Args, nil
}

// EncodeRegistration builds a handshake frame. Type defaults to "register".
func EncodeRegistration(r Registration) ([]byte, error) {
	if r.Type == "" {
		r.Type = TypeRegister
	}
	return msgpack.Marshal(r)
}

// DecodeRegistration parses a handshake frame, checks its type tag and
// requires every metadata key to be present and non-nil.
func DecodeRegistration(data []byte) (Registration, error) {
	var r Registration
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Registration{}, fmt.Errorf("decoding registration: %w", err)
	}
	if r.Type != TypeRegister {
		return Registration{}, fmt.Errorf("%w: type %q", ErrNotRegistration, r.Type)
	}

	var present map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(data, &present); err != nil {
		return Registration{}, fmt.Errorf("decoding registration: %w", err)
	}
	for _, key := range registrationKeys {
		raw, ok := present[key]
		if !ok || len(raw) == 0 || raw[0] == msgpcode.Nil {
			return Registration{}, fmt.Errorf("%w: %s", ErrIncompleteRegistration, key)
		}
	}
	return r, nil
}

// EncodeRegistered builds the handshake acknowledgement.
func EncodeRegistered(studioID uuid.UUID) ([]byte, error) {
	return msgpack.Marshal(Registered{Type: TypeRegistered, StudioID: studioID.String()})
}

// DecodeRegistered parses a handshake acknowledgement and returns the assigned id.
func DecodeRegistered(data []byte) (uuid.UUID, error) {
	var r Registered
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return uuid.Nil, fmt.Errorf("decoding registered: %w", err)
	}
	if r.Type != TypeRegistered {
		return uuid.Nil, fmt.Errorf("unexpected acknowledgement type %q", r.Type)
	}
	id, err := uuid.Parse(r.StudioID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing studio id: %w", err)
	}
	return id, nil
}

// EncodeResponse builds a response frame.
func EncodeResponse(r Response) ([]byte, error) {
	return msgpack.Marshal(r)
}

// DecodeResponse parses a response frame.
func DecodeResponse(data []byte) (Response, error) {
	var r Response
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	return r, nil
}
