// ABOUTME: Tests for converting JSON tool arguments into wire values.
// ABOUTME: Verifies key order, integer handling and rejection of malformed input.

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Value
	}{
		{"empty input is an empty map", "", Map()},
		{"null", "null", Nil()},
		{"object keeps order", `{"b": 1, "a": "x"}`, Map(
			Pair{String("b"), Int(1)},
			Pair{String("a"), String("x")},
		)},
		{"negative int", "-7", Int(-7)},
		{"huge uint", "18446744073709551615", Uint(18446744073709551615)},
		{"float", "2.5", Float64(2.5)},
		{"exponent is a float", "1e3", Float64(1000)},
		{"nested", `{"mode": "start_play", "list": [true, null, {}]}`, Map(
			Pair{String("mode"), String("start_play")},
			Pair{String("list"), Array(Bool(true), Nil(), Map())},
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromJSON([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromJSON_Errors(t *testing.T) {
	for _, in := range []string{`{"a":`, `[1,]`, `{} {}`, `{"a" 1}`} {
		t.Run(in, func(t *testing.T) {
			_, err := FromJSON([]byte(in))
			assert.Error(t, err)
		})
	}
}
