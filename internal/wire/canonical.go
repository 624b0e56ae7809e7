// ABOUTME: Canonical text rendering of decoded response values.
// ABOUTME: This is the text an MCP client sees as a tool result.

package wire

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// extPlaceholder is rendered for MessagePack extension values.
const extPlaceholder = "<ext>"

// Canonical renders v as display text. It is pure and recursive: arrays and
// maps render their elements canonically, and maps keep wire order.
func Canonical(v Value) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindNil:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindUint:
		sb.WriteString(strconv.FormatUint(v.u, 10))
	case KindFloat:
		sb.WriteString(formatFloat(v.f))
	case KindString:
		sb.WriteString(v.s)
	case KindBinary:
		sb.WriteString(hex.EncodeToString(v.data))
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		for i, p := range v.pairs {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeCanonical(sb, p.Key)
			sb.WriteString(": ")
			writeCanonical(sb, p.Value)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(extPlaceholder)
	}
}

// formatFloat prints f as the shortest decimal that round-trips, never using
// exponent notation. Single precision values were widened to float64 on decode.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
