package engine

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind tags the type of an extracted argument value. Operators branch on it:
// string operators never match non-string values, and absence has its own
// handling in the evaluation loop.
type Kind int

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindBool
	KindOther // null, object, array
)

// Value is one scalar extracted from the tool input.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

// Input is the decoded tool-call argument object.
type Input map[string]any

// ParseInput decodes a raw JSON argument object. An empty payload decodes to
// an empty input (every lookup absent).
func ParseInput(raw json.RawMessage) (Input, error) {
	if len(raw) == 0 {
		return Input{}, nil
	}
	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	if in == nil {
		in = Input{}
	}
	return in, nil
}

// Lookup walks a dotted path into the input, descending through nested
// objects and numeric indexes into arrays ("attachments.0.url"). The second
// return is false when any path segment is missing.
func (in Input) Lookup(path string) (Value, bool) {
	if in == nil || path == "" {
		return Value{Kind: KindAbsent}, false
	}

	var cur any = map[string]any(in)
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return Value{Kind: KindAbsent}, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return Value{Kind: KindAbsent}, false
			}
			cur = node[idx]
		default:
			return Value{Kind: KindAbsent}, false
		}
	}
	return classify(cur), true
}

// classify maps a decoded JSON value to its typed scalar.
func classify(v any) Value {
	switch t := v.(type) {
	case string:
		return Value{Kind: KindString, Str: t}
	case float64:
		return Value{Kind: KindNumber, Num: t}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{Kind: KindOther}
		}
		return Value{Kind: KindNumber, Num: f}
	case int:
		return Value{Kind: KindNumber, Num: float64(t)}
	case int64:
		return Value{Kind: KindNumber, Num: float64(t)}
	case bool:
		return Value{Kind: KindBool, Bool: t}
	default:
		return Value{Kind: KindOther}
	}
}
