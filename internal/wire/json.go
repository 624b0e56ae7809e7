// ABOUTME: Converts JSON tool arguments into a Value for the command envelope.
// ABOUTME: Keeps object key order and integer-ness, which a map[string]any would lose.

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// FromJSON decodes a single JSON document into a Value. Integral numbers become
// KindInt (or KindUint above MaxInt64); everything else numeric is a float64.
// Empty input decodes to an empty map so argument-less tools still send a table.
func FromJSON(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Map(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := jsonValue(dec, 0)
	if err != nil {
		return Value{}, fmt.Errorf("decoding json arguments: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("decoding json arguments: trailing data")
	}
	return v, nil
}

func jsonValue(dec *json.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrTooDeep
	}
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Nil(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return jsonNumber(t)
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := jsonValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Array(items...), nil
		case '{':
			var pairs []Pair
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T", keyTok)
				}
				val, err := jsonValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				pairs = append(pairs, Pair{Key: String(key), Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Map(pairs...), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected json token %v", tok)
}

func jsonNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return Uint(u), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("parsing number %s: %w", n, err)
	}
	return Float64(f), nil
}
