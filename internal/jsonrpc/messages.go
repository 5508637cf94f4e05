// Package jsonrpc implements the JSON-RPC 2.0 envelope used by the MCP
// transport: request and response framing, the error object, and the
// string-or-integer request identifier.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only protocol version tag accepted on the wire.
const Version = "2.0"

// Request is a JSON-RPC request or, when ID is nil, a notification.
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// NewRequest builds a request envelope. Params may be nil.
func NewRequest(method string, params any, id *RequestID) (*Request, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		raw = b
	}
	return &Request{
		JSONRPCVersion: Version,
		Method:         method,
		Params:         raw,
		ID:             id,
	}, nil
}

// IsNotification reports whether the request carries no identifier and must
// therefore never receive a response. An explicit "id": null counts as
// absent.
func (r *Request) IsNotification() bool {
	return r.ID == nil || r.ID.value == nil
}

// Validate enforces the structural invariants that precede routing: the
// version tag must equal Version and the method must be non-empty.
func (r *Request) Validate() *Error {
	if r.JSONRPCVersion != Version {
		return &Error{
			Code:    ErrorCodeInvalidRequest,
			Message: fmt.Sprintf("invalid JSON-RPC version: %q", r.JSONRPCVersion),
		}
	}
	if r.Method == "" {
		return &Error{
			Code:    ErrorCodeInvalidRequest,
			Message: "method cannot be empty",
		}
	}
	return nil
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
// ID serializes as null when nil: manufactured error responses (parse
// failures, transport rejections) have no identifier to echo.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// NewResultResponse builds a successful response echoing id.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{
		JSONRPCVersion: Version,
		Result:         b,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error response echoing id, which may be nil.
func NewErrorResponse(id *RequestID, rpcErr *Error) *Response {
	return &Response{
		JSONRPCVersion: Version,
		Error:          rpcErr,
		ID:             id,
	}
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
