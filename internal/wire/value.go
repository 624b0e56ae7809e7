// ABOUTME: Dynamically-typed MessagePack value decoded from studio responses.
// ABOUTME: Decodes token by token so map entries keep the order the peer wrote them.

package wire

import (
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

const (
	// maxDepth bounds nesting so a hostile payload cannot exhaust the stack.
	maxDepth = 512
	// preallocLimit caps slice preallocation from an untrusted length prefix.
	preallocLimit = 1024
)

// ErrTooDeep is returned when a decoded value nests deeper than maxDepth.
var ErrTooDeep = errors.New("value nested too deeply")

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUint // only for integers above math.MaxInt64
	KindFloat
	KindString
	KindBinary
	KindArray
	KindMap
	KindExt
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindExt:
		return "ext"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one MessagePack value. The zero Value is nil.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	u     uint64
	f     float64
	f32   bool
	s     string
	data  []byte // binary payload or ext data
	items []Value
	pairs []Pair
	ext   int8
}

// Pair is one key/value entry of a map Value.
type Pair struct {
	Key   Value
	Value Value
}

// Nil returns the nil value.
func Nil() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Uint returns an unsigned integer value. Values that fit in an int64 are
// normalized to KindInt so that decode(encode(v)) == v.
func Uint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Value{kind: KindUint, u: u}
}

// Float64 returns a double precision float value.
func Float64(f float64) Value { return Value{kind: KindFloat, f: f} }

// Float32 returns a single precision float value.
func Float32(f float32) Value { return Value{kind: KindFloat, f: float64(f), f32: true} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Binary returns a raw bytes value. A nil slice is stored as empty so it still
// encodes as bin rather than nil.
func Binary(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBinary, data: b}
}

// Array returns a sequence value.
func Array(items ...Value) Value {
	if len(items) == 0 {
		items = nil
	}
	return Value{kind: KindArray, items: items}
}

// Map returns a mapping value with entries in the given order.
func Map(pairs ...Pair) Value {
	if len(pairs) == 0 {
		pairs = nil
	}
	return Value{kind: KindMap, pairs: pairs}
}

// Ext returns a MessagePack extension value.
func Ext(typ int8, data []byte) Value {
	if data == nil {
		data = []byte{}
	}
	return Value{kind: KindExt, ext: typ, data: data}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// AsBool returns the boolean held by v.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the integer held by v.
func (v Value) AsInt() int64 { return v.i }

// AsUint returns the unsigned integer held by a KindUint value.
func (v Value) AsUint() uint64 { return v.u }

// AsFloat returns the float held by v, widened to float64.
func (v Value) AsFloat() float64 { return v.f }

// AsString returns the string held by v.
func (v Value) AsString() string { return v.s }

// AsBytes returns the raw bytes of a binary or ext value.
func (v Value) AsBytes() []byte { return v.data }

// Items returns the elements of an array value.
func (v Value) Items() []Value { return v.items }

// Pairs returns the entries of a map value in wire order.
func (v Value) Pairs() []Pair { return v.pairs }

// ExtType returns the extension type of an ext value.
func (v Value) ExtType() int8 { return v.ext }

// String renders v in canonical text form.
func (v Value) String() string { return Canonical(v) }

// Lookup returns the value stored under the string key k in a map value.
func (v Value) Lookup(k string) (Value, bool) {
	for _, p := range v.pairs {
		if p.Key.kind == KindString && p.Key.s == k {
			return p.Value, true
		}
	}
	return Value{}, false
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNil:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt:
		return enc.EncodeInt(v.i)
	case KindUint:
		return enc.EncodeUint(v.u)
	case KindFloat:
		if v.f32 {
			return enc.EncodeFloat32(float32(v.f))
		}
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindBinary:
		return enc.EncodeBytes(v.data)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.items)); err != nil {
			return err
		}
		for _, item := range v.items {
			if err := item.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if err := enc.EncodeMapLen(len(v.pairs)); err != nil {
			return err
		}
		for _, p := range v.pairs {
			if err := p.Key.EncodeMsgpack(enc); err != nil {
				return err
			}
			if err := p.Value.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindExt:
		if err := enc.EncodeExtHeader(v.ext, len(v.data)); err != nil {
			return err
		}
		_, err := enc.Writer().Write(v.data)
		return err
	default:
		return fmt.Errorf("encoding %s: unknown kind", v.kind)
	}
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	decoded, err := decodeValue(dec, 0)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func decodeValue(dec *msgpack.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}

	c, err := dec.PeekCode()
	if err != nil {
		return Value{}, err
	}

	switch {
	case c == msgpcode.Nil:
		return Nil(), dec.DecodeNil()

	case c == msgpcode.False || c == msgpcode.True:
		b, err := dec.DecodeBool()
		return Bool(b), err

	case msgpcode.IsFixedNum(c),
		c == msgpcode.Int8, c == msgpcode.Int16, c == msgpcode.Int32, c == msgpcode.Int64:
		i, err := dec.DecodeInt64()
		return Int(i), err

	case c == msgpcode.Uint8, c == msgpcode.Uint16, c == msgpcode.Uint32, c == msgpcode.Uint64:
		u, err := dec.DecodeUint64()
		return Uint(u), err

	case c == msgpcode.Float:
		f, err := dec.DecodeFloat32()
		return Float32(f), err

	case c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		return Float64(f), err

	case msgpcode.IsFixedString(c), c == msgpcode.Str8, c == msgpcode.Str16, c == msgpcode.Str32:
		s, err := dec.DecodeString()
		return String(s), err

	case c == msgpcode.Bin8, c == msgpcode.Bin16, c == msgpcode.Bin32:
		b, err := dec.DecodeBytes()
		return Binary(b), err

	case msgpcode.IsFixedArray(c), c == msgpcode.Array16, c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, 0, min(n, preallocLimit))
		for i := 0; i < n; i++ {
			item, err := decodeValue(dec, depth+1)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Array(items...), nil

	case msgpcode.IsFixedMap(c), c == msgpcode.Map16, c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return Value{}, err
		}
		pairs := make([]Pair, 0, min(n, preallocLimit))
		for i := 0; i < n; i++ {
			k, err := decodeValue(dec, depth+1)
			if err != nil {
				return Value{}, err
			}
			val, err := decodeValue(dec, depth+1)
			if err != nil {
				return Value{}, err
			}
			pairs = append(pairs, Pair{Key: k, Value: val})
		}
		return Map(pairs...), nil

	case isExtCode(c):
		raw, err := dec.DecodeRaw()
		if err != nil {
			return Value{}, err
		}
		typ, data, err := splitExt(raw)
		if err != nil {
			return Value{}, err
		}
		return Ext(typ, data), nil

	default:
		return Value{}, fmt.Errorf("unsupported msgpack code 0x%02x", c)
	}
}

func isExtCode(c byte) bool {
	switch c {
	case msgpcode.FixExt1, msgpcode.FixExt2, msgpcode.FixExt4, msgpcode.FixExt8, msgpcode.FixExt16,
		msgpcode.Ext8, msgpcode.Ext16, msgpcode.Ext32:
		return true
	}
	return false
}

// splitExt separates the extension type and payload of a raw encoded ext value.
func splitExt(raw []byte) (int8, []byte, error) {
	if len(raw) < 2 {
		return 0, nil, errors.New("truncated ext value")
	}
	var header int
	switch raw[0] {
	case msgpcode.FixExt1, msgpcode.FixExt2, msgpcode.FixExt4, msgpcode.FixExt8, msgpcode.FixExt16:
		header = 1
	case msgpcode.Ext8:
		header = 2
	case msgpcode.Ext16:
		header = 3
	case msgpcode.Ext32:
		header = 5
	default:
		return 0, nil, fmt.Errorf("not an ext value: 0x%02x", raw[0])
	}
	if len(raw) < header+1 {
		return 0, nil, errors.New("truncated ext header")
	}
	return int8(raw[header]), raw[header+1:], nil
}

// DecodeValue decodes a single MessagePack value from data.
func DecodeValue(data []byte) (Value, error) {
	var v Value
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return Value{}, fmt.Errorf("decoding value: %w", err)
	}
	return v, nil
}

// EncodeValue encodes v as MessagePack.
func EncodeValue(v Value) ([]byte, error) {
	return msgpack.Marshal(v)
}
