package httpmcp

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
)

// EndpointHandler serves a custom (non-protocol) HTTP endpoint. body is the
// raw JSON request body, or nil when the request had none. A returned error
// produces a 500 with a generic {"error": ...} body; note that this shape is
// deliberately distinct from the JSON-RPC error object used on the protocol
// endpoint.
type EndpointHandler func(ctx context.Context, rc *RequestContext, body json.RawMessage) (*EndpointResponse, error)

// MultipartHandler serves a custom file-upload endpoint. The handler consumes
// parts directly from the multipart reader.
type MultipartHandler func(ctx context.Context, rc *RequestContext, form *multipart.Reader) (*EndpointResponse, error)

// EndpointResponse is the reply produced by a custom endpoint handler.
type EndpointResponse struct {
	// Status is the HTTP status code; zero means 200.
	Status int
	// ContentType labels Body; empty means application/json.
	ContentType string
	// Body is written verbatim.
	Body []byte
}

// NewJSONResponse marshals v into an EndpointResponse with the given status.
func NewJSONResponse(status int, v any) (*EndpointResponse, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, NewSerializationError(err)
	}
	return &EndpointResponse{Status: status, ContentType: "application/json", Body: b}, nil
}

func (er *EndpointResponse) write(w http.ResponseWriter) {
	ct := er.ContentType
	if ct == "" {
		ct = "application/json"
	}
	status := er.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(status)
	_, _ = w.Write(er.Body)
}

type registeredEndpoint struct {
	meta    EndpointMeta
	handler EndpointHandler
}

type registeredMultipartEndpoint struct {
	meta    EndpointMeta
	handler MultipartHandler
}
