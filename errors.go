package httpmcp

import (
	"fmt"
	"net/http"

	"github.com/httpmcp/httpmcp-go/internal/jsonrpc"
)

// ErrorKind enumerates the closed error taxonomy of the gateway. Every
// failure raised by the dispatcher, the registries, or a registered handler
// is expressed as one of these kinds; the mappings to JSON-RPC error objects
// and HTTP status codes both live here so the two cannot drift apart.
type ErrorKind int

const (
	KindParseError ErrorKind = iota
	KindInvalidRequest
	KindMethodNotFound
	KindInvalidParams
	KindInternalError
	KindResourceNotFound
	KindToolNotFound
	KindPromptNotFound
	KindAuthenticationRequired
	KindAuthorizationFailed
	KindSerializationError
	KindIOError
	KindProtocolError
)

// Error is the gateway's error type. Subject holds the offending identifier
// for the not-found kinds (URI, tool name, prompt name); Err optionally wraps
// an underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewParseError reports malformed JSON on the wire.
func NewParseError(msg string) *Error {
	return &Error{Kind: KindParseError, Message: "Parse error: " + msg}
}

// NewInvalidRequest reports a structurally invalid JSON-RPC request.
func NewInvalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

// NewMethodNotFound reports an unrecognized JSON-RPC method.
func NewMethodNotFound(method string) *Error {
	return &Error{Kind: KindMethodNotFound, Message: "Method not found: " + method, Subject: method}
}

// NewInvalidParams reports parameters that failed to decode or validate.
func NewInvalidParams(msg string) *Error {
	return &Error{Kind: KindInvalidParams, Message: msg}
}

// NewInternalError reports an unexpected failure inside a handler or the
// gateway itself.
func NewInternalError(msg string) *Error {
	return &Error{Kind: KindInternalError, Message: msg}
}

// NewResourceNotFound reports that no provider recognized uri.
func NewResourceNotFound(uri string) *Error {
	return &Error{Kind: KindResourceNotFound, Message: "Resource not found: " + uri, Subject: uri}
}

// NewToolNotFound reports a tools/call against an unregistered name.
func NewToolNotFound(name string) *Error {
	return &Error{Kind: KindToolNotFound, Message: "Tool not found: " + name, Subject: name}
}

// NewPromptNotFound reports a prompts/get against an unregistered name.
func NewPromptNotFound(name string) *Error {
	return &Error{Kind: KindPromptNotFound, Message: "Prompt not found: " + name, Subject: name}
}

// NewAuthenticationRequired reports a missing bearer credential.
func NewAuthenticationRequired() *Error {
	return &Error{Kind: KindAuthenticationRequired, Message: "Authentication required"}
}

// NewAuthorizationFailed reports a rejected bearer credential.
func NewAuthorizationFailed(msg string) *Error {
	return &Error{Kind: KindAuthorizationFailed, Message: "Authorization failed: " + msg}
}

// NewSerializationError wraps a JSON encode/decode failure.
func NewSerializationError(err error) *Error {
	return &Error{Kind: KindSerializationError, Message: "Serialization error", Err: err}
}

// NewIOError wraps a transport I/O failure.
func NewIOError(err error) *Error {
	return &Error{Kind: KindIOError, Message: "IO error", Err: err}
}

// NewProtocolError is the catch-all for wrapped protocol failures.
func NewProtocolError(msg string) *Error {
	return &Error{Kind: KindProtocolError, Message: msg}
}

// JSONRPCError maps the error to its JSON-RPC representation. The not-found
// kinds for tools and prompts reuse the method-not-found code but identify
// the missing entity in data; resource-not-found uses the MCP-specific code
// and carries the URI.
func (e *Error) JSONRPCError() *jsonrpc.Error {
	switch e.Kind {
	case KindParseError:
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeParseError, Message: e.Error()}
	case KindInvalidRequest, KindAuthenticationRequired, KindAuthorizationFailed:
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidRequest, Message: e.Error()}
	case KindMethodNotFound:
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeMethodNotFound, Message: e.Error()}
	case KindInvalidParams:
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: e.Error()}
	case KindResourceNotFound:
		return &jsonrpc.Error{
			Code:    jsonrpc.ErrorCodeResourceNotFound,
			Message: e.Error(),
			Data:    map[string]string{"uri": e.Subject},
		}
	case KindToolNotFound:
		return &jsonrpc.Error{
			Code:    jsonrpc.ErrorCodeMethodNotFound,
			Message: e.Error(),
			Data:    map[string]string{"tool": e.Subject},
		}
	case KindPromptNotFound:
		return &jsonrpc.Error{
			Code:    jsonrpc.ErrorCodeMethodNotFound,
			Message: e.Error(),
			Data:    map[string]string{"prompt": e.Subject},
		}
	default:
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeInternalError, Message: e.Error()}
	}
}

// HTTPStatus maps the error to the transport status class used when the
// response is written directly on the HTTP connection.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindParseError, KindInvalidRequest, KindInvalidParams:
		return http.StatusBadRequest
	case KindMethodNotFound, KindResourceNotFound, KindToolNotFound, KindPromptNotFound:
		return http.StatusNotFound
	case KindAuthenticationRequired:
		return http.StatusUnauthorized
	case KindAuthorizationFailed:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// asError coerces any handler failure into the taxonomy, passing *Error
// through untouched and wrapping everything else as internal.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	if me, ok := err.(*Error); ok {
		return me
	}
	return &Error{Kind: KindInternalError, Err: err}
}
