package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// TypedValue stores one typed event field value.
// Params: Type selects one payload among N/S/B.
// Returns: strict typed value for condition predicates.
type TypedValue struct {
	Type string   `json:"t" toml:"t"`
	N    *float64 `json:"n,omitempty" toml:"n"`
	S    *string  `json:"s,omitempty" toml:"s"`
	B    *bool    `json:"b,omitempty" toml:"b"`
}

// Number builds numeric typed value.
// Params: numeric payload.
// Returns: typed value with t=n.
func Number(v float64) TypedValue {
	return TypedValue{Type: "n", N: &v}
}

// String builds string typed value.
// Params: string payload.
// Returns: typed value with t=s.
func String(v string) TypedValue {
	return TypedValue{Type: "s", S: &v}
}

// Bool builds boolean typed value.
// Params: boolean payload.
// Returns: typed value with t=b.
func Bool(v bool) TypedValue {
	return TypedValue{Type: "b", B: &v}
}

// UnmarshalJSON decodes either a bare scalar or a tagged {"t":...} object.
// Params: raw JSON bytes for one field value.
// Returns: decode error for unsupported payload shapes.
func (v *TypedValue) UnmarshalJSON(raw []byte) error {
	var scalar any
	if err := json.Unmarshal(raw, &scalar); err != nil {
		return err
	}
	switch typed := scalar.(type) {
	case float64:
		*v = Number(typed)
		return nil
	case string:
		*v = String(typed)
		return nil
	case bool:
		*v = Bool(typed)
		return nil
	case map[string]any:
		type tagged TypedValue
		var out tagged
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
		*v = TypedValue(out)
		return v.Validate()
	default:
		return fmt.Errorf("unsupported field value %T", scalar)
	}
}

// Validate validates typed value contract.
// Params: explicit type marker and one value payload.
// Returns: validation error when value is inconsistent.
func (v TypedValue) Validate() error {
	switch v.Type {
	case "n":
		if v.N == nil {
			return errors.New("n value is required for t=n")
		}
	case "s":
		if v.S == nil {
			return errors.New("s value is required for t=s")
		}
	case "b":
		if v.B == nil {
			return errors.New("b value is required for t=b")
		}
	default:
		return fmt.Errorf("unsupported value type %q", v.Type)
	}
	return nil
}

// AsNumber coerces typed value to float64.
// Params: none.
// Returns: numeric view and coercion success flag.
func (v TypedValue) AsNumber() (float64, bool) {
	switch v.Type {
	case "n":
		if v.N == nil {
			return 0, false
		}
		return *v.N, true
	case "s":
		if v.S == nil {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(*v.S, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// AsString coerces typed value to string.
// Params: none.
// Returns: compact string representation (empty on nil payload).
func (v TypedValue) AsString() string {
	switch v.Type {
	case "n":
		if v.N == nil {
			return ""
		}
		return strconv.FormatFloat(*v.N, 'f', -1, 64)
	case "s":
		if v.S == nil {
			return ""
		}
		return *v.S
	case "b":
		if v.B == nil {
			return ""
		}
		return strconv.FormatBool(*v.B)
	default:
		return ""
	}
}

// Event is one normalized incoming domain event.
// Params: unix-millisecond timestamp, origin label, optional reported confidence, and typed fields.
// Returns: validated event payload for rule evaluation.
type Event struct {
	DT         int64                 `json:"dt,omitempty"`
	Source     string                `json:"source,omitempty"`
	Confidence *float64              `json:"confidence,omitempty"`
	Fields     map[string]TypedValue `json:"fields"`
}

// EventTime converts milliseconds unix timestamp into UTC time.
// Params: event timestamp in unix milliseconds.
// Returns: converted UTC time (zero time when unset).
func (e Event) EventTime() time.Time {
	if e.DT <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.DT).UTC()
}

// Field reads one typed field by key.
// Params: field key.
// Returns: typed value and presence flag.
func (e Event) Field(key string) (TypedValue, bool) {
	value, ok := e.Fields[key]
	return value, ok
}

// CloneFields copies the typed fields map for retention in notification context.
// Params: none.
// Returns: detached field map copy.
func (e Event) CloneFields() map[string]TypedValue {
	if len(e.Fields) == 0 {
		return nil
	}
	out := make(map[string]TypedValue, len(e.Fields))
	for key, value := range e.Fields {
		out[key] = value
	}
	return out
}

// DecodeEvent decodes and validates one event payload.
// Params: JSON document bytes.
// Returns: validated event or decode/validation error.
func DecodeEvent(raw []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Validate validates one event against the intake contract.
// Params: event fields parsed from transport.
// Returns: validation error when schema is violated.
func (e Event) Validate() error {
	if e.DT < 0 {
		return errors.New("dt must be >=0")
	}
	if len(e.Fields) == 0 {
		return errors.New("fields are required")
	}
	for key, value := range e.Fields {
		if err := value.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	if e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 1) {
		return errors.New("confidence must be within [0,1]")
	}
	return nil
}
