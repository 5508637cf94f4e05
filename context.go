package httpmcp

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RequestContext is the per-call ambient data handed to every registered
// handler: the inbound headers, a freshly generated request identifier, and
// the HTTP method, path and peer address. A new context is constructed for
// each inbound call and is read-only to handlers.
type RequestContext struct {
	// Headers is the inbound request header set.
	Headers http.Header

	// RequestID is a unique identifier for this call, usable for tracing.
	RequestID string

	// Method is the HTTP method of the inbound request.
	Method string

	// Path is the request path.
	Path string

	// RemoteAddr is the peer address as reported by the HTTP substrate. Empty
	// when unknown.
	RemoteAddr string
}

// newRequestContext captures the transport-level facts of one inbound call.
func newRequestContext(r *http.Request) *RequestContext {
	return &RequestContext{
		Headers:    r.Header.Clone(),
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
	}
}

// Header returns the first value of the named header, or "".
func (rc *RequestContext) Header(name string) string {
	return rc.Headers.Get(name)
}

// Authorization returns the Authorization header, or "".
func (rc *RequestContext) Authorization() string {
	return rc.Header("Authorization")
}

// BearerToken extracts the token from a "Bearer ..." Authorization header.
// The second return is false when no bearer credential is present.
func (rc *RequestContext) BearerToken() (string, bool) {
	auth := rc.Authorization()
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return "", false
	}
	return token, true
}
