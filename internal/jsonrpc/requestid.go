package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// RequestID represents a JSON-RPC ID. Outgoing ids are always integers drawn
// from a per-connection counter, but peers are free to echo ids back as any
// JSON string or number, so decoding stays permissive.
type RequestID struct {
	value any
}

// NewRequestID creates a RequestID from an integer counter value.
func NewRequestID(value int64) *RequestID {
	return &RequestID{value: value}
}

// Int64 returns the numeric value of the ID. ok is false when the ID is
// absent or not an integral number; such ids can never match a pending
// request and are ignored by correlation.
func (id *RequestID) Int64() (v int64, ok bool) {
	if id == nil {
		return 0, false
	}
	switch n := id.value.(type) {
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// String returns the string representation of the ID, or "" when absent.
func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return ""
	}
	return fmt.Sprintf("%v", id.value)
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num == float64(int64(num)) {
			id.value = int64(num)
		} else {
			id.value = num
		}
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}

	return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(data))
}
