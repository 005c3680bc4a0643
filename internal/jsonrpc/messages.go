// Package jsonrpc implements the newline-delimited JSON-RPC 2.0 envelope
// spoken with child-process servers. It is deliberately small: requests and
// notifications flow out, responses and notifications flow in, and everything
// else is a structural error surfaced before the message reaches the
// correlation layer.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// MessageType classifies a decoded message.
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeNotification MessageType = "notification"
	TypeResponse     MessageType = "response"
)

// Request represents an outgoing JSON-RPC request (with an ID) or
// notification (without one).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// NewRequest builds a correlated request. Params may be nil.
func NewRequest(id int64, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPCVersion: ProtocolVersion,
		Method:         method,
		ID:             NewRequestID(id),
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %q: %w", method, err)
		}
		req.Params = raw
	}
	return req, nil
}

// NewNotification builds a fire-and-forget message carrying no ID.
func NewNotification(method string, params any) (*Request, error) {
	req, err := NewRequest(0, method, params)
	if err != nil {
		return nil, err
	}
	req.ID = nil
	return req, nil
}

// Response represents an incoming JSON-RPC response.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// AnyMessage is a generic incoming JSON-RPC message (request, notification,
// or response).
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// UnmarshalJSON enforces JSON-RPC 2.0 semantics: the version marker must be
// present and the field combination must identify exactly one message shape.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type rawMessage AnyMessage

	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if raw.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, raw.JSONRPCVersion)
	}

	hasMethod := raw.Method != ""
	hasResult := len(raw.Result) > 0
	hasError := raw.Error != nil

	if hasMethod {
		if hasResult || hasError {
			return fmt.Errorf("request message cannot have result or error fields")
		}
	} else {
		if hasResult && hasError {
			return fmt.Errorf("response message cannot have both result and error fields")
		}
		if !hasResult && !hasError {
			return fmt.Errorf("response message must have either result or error field")
		}
	}

	*m = AnyMessage(raw)
	return nil
}

// Type classifies the message by its field combination.
func (m *AnyMessage) Type() MessageType {
	if m.Method != "" {
		if m.ID == nil {
			return TypeNotification
		}
		return TypeRequest
	}
	return TypeResponse
}

// AsResponse returns the message as a Response, or nil when it is not one.
func (m *AnyMessage) AsResponse() *Response {
	if m.Method != "" {
		return nil
	}

	return &Response{
		JSONRPCVersion: m.JSONRPCVersion,
		Result:         m.Result,
		Error:          m.Error,
		ID:             m.ID,
	}
}
