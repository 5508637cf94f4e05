package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC identifier: a string or an integer. A nil
// *RequestID on a request marks it as a notification.
type RequestID struct {
	value any
}

// NewStringID builds a string identifier.
func NewStringID(s string) *RequestID {
	return &RequestID{value: s}
}

// NewIntID builds an integer identifier.
func NewIntID(n int64) *RequestID {
	return &RequestID{value: n}
}

// Value returns the underlying string or int64.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// String renders the identifier for logging.
func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Equal reports whether two identifiers carry the same value.
func (id *RequestID) Equal(other *RequestID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.value == other.value
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. Fractional numbers are rejected:
// the protocol permits only strings and integers.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		id.value = nil
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num != float64(int64(num)) {
			return fmt.Errorf("JSON-RPC ID must be a string or integer, got %s", string(data))
		}
		id.value = int64(num)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}

	return fmt.Errorf("JSON-RPC ID must be a string or integer, got %s", string(data))
}
