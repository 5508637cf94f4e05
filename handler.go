package httpmcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/httpmcp/httpmcp-go/broker"
	"github.com/httpmcp/httpmcp-go/internal/jsonrpc"
	"github.com/httpmcp/httpmcp-go/internal/logctx"
)

var _ http.Handler = (*Server)(nil)

// postMediaTypes are the representations offered during Accept negotiation on
// the message endpoint. JSON comes first: a wildcard Accept (curl's default
// */*) negotiates to direct JSON delivery, and only an explicit
// text/event-stream preference wins streaming.
var postMediaTypes = []contenttype.MediaType{
	contenttype.NewMediaType("application/json"),
	contenttype.NewMediaType("text/event-stream"),
}

// buildMux wires the protocol endpoint and every custom endpoint into one
// route table. Called exactly once, from Build.
func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+mcpPath, s.handlePostMCP)
	mux.HandleFunc("GET "+mcpPath, s.handleGetMCP)

	for _, ep := range s.endpoints {
		mux.HandleFunc(routePattern(ep.meta), s.endpointHandler(ep))
	}
	for _, ep := range s.multipartEndpoints {
		mux.HandleFunc(routePattern(ep.meta), s.multipartHandler(ep))
	}

	if s.enableCORS {
		mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	return mux
}

func routePattern(meta EndpointMeta) string {
	return strings.ToUpper(meta.Method()) + " " + meta.Route()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.enableCORS {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Last-Event-ID")
	}
	s.mux.ServeHTTP(w, r)
}

// handlePostMCP accepts one JSON-RPC message and picks the delivery path:
// direct JSON response, 202-accepted with publication to the streaming
// channel, or 204 for notifications.
func (s *Server) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	rc := newRequestContext(r)
	ctx := s.requestContext(r, rc)

	if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		s.writeError(w, nil, NewInvalidRequest("Invalid Content-Type. Expected application/json"))
		return
	}

	if s.oauth != nil {
		if err := s.oauth.ValidateToken(ctx, rc); err != nil {
			s.writeError(w, nil, asError(err))
			return
		}
	}

	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, NewParseError(err.Error()))
		return
	}

	// Structural validation precedes routing. A malformed notification still
	// gets no body: the identifier-free contract outranks error reporting.
	if verr := req.Validate(); verr != nil {
		if req.IsNotification() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeError(w, req.ID, NewInvalidRequest(verr.Message))
		return
	}

	// The client opts into streaming delivery through content negotiation. An
	// absent Accept header means direct delivery.
	acceptSSE := false
	if r.Header.Get("Accept") != "" {
		if mt, _, err := contenttype.GetAcceptableMediaType(r, postMediaTypes); err == nil {
			acceptSSE = mt.Type == "text" && mt.Subtype == "event-stream"
		}
	}

	res, derr := s.dispatch(ctx, &req, rc)

	if req.IsNotification() {
		if derr != nil {
			s.log.DebugContext(ctx, "notification processing failed", slog.String("err", derr.Error()))
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if derr != nil {
		s.writeError(w, req.ID, derr)
		return
	}

	if acceptSSE {
		if s.publishResponse(ctx, res) {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		s.log.WarnContext(ctx, "no streaming subscribers, falling back to direct response")
	}

	s.writeJSON(w, http.StatusOK, res)
}

// publishResponse pushes res onto the streaming channel. It reports false,
// without publishing, when no subscription is active so the caller can fall
// back to direct delivery; the computed response is never discarded.
func (s *Server) publishResponse(ctx context.Context, res *jsonrpc.Response) bool {
	n, err := s.responses.Subscribers(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "subscriber count unavailable", slog.String("err", err.Error()))
		return false
	}
	if n == 0 {
		return false
	}

	payload, merr := json.Marshal(res)
	if merr != nil {
		s.log.ErrorContext(ctx, "failed to marshal response for publication", slog.String("err", merr.Error()))
		return false
	}

	eventID, err := s.responses.Publish(ctx, payload)
	if err != nil {
		s.log.WarnContext(ctx, "publish failed, falling back to direct response", slog.String("err", err.Error()))
		return false
	}

	s.log.DebugContext(ctx, "response published",
		slog.String("event_id", eventID),
		slog.Int("subscribers", n),
	)
	return true
}

// handleGetMCP opens the long-lived streaming connection and pumps every
// event the delivery channel publishes, as SSE message frames, until the
// client disconnects or the server shuts down. Delivery is fan-out: this
// connection sees every published response, including ones computed for
// other callers. A lagging consumer gets a gap frame telling it how many
// events it missed.
func (s *Server) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	rc := newRequestContext(r)
	ctx := s.requestContext(r, rc)

	if s.oauth != nil {
		if err := s.oauth.ValidateToken(ctx, rc); err != nil {
			s.writeError(w, nil, asError(err))
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, nil, NewProtocolError("streaming not supported by connection"))
		return
	}

	// Accepted for protocol compatibility; no backlog exists to replay from.
	lastEventID := r.Header.Get("Last-Event-ID")

	sub, err := s.responses.Subscribe(ctx, lastEventID)
	if err != nil {
		s.writeError(w, nil, asError(err))
		return
	}
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.log.DebugContext(ctx, "sse stream connected")

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lag *broker.LagError
			if errors.As(err, &lag) {
				gap := sseEvent{
					ID:    uuid.NewString(),
					Event: "gap",
					Data:  []byte(fmt.Sprintf(`{"skipped":%d}`, lag.Skipped)),
				}
				if werr := gap.writeTo(w); werr != nil {
					return
				}
				flusher.Flush()
				continue
			}
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.WarnContext(ctx, "sse stream error", slog.String("err", err.Error()))
			}
			s.log.DebugContext(ctx, "sse stream disconnected")
			return
		}

		frame := sseEvent{ID: ev.ID, Event: "message", Data: ev.Data}
		if err := frame.writeTo(w); err != nil {
			return
		}
		flusher.Flush()
	}
}

// endpointHandler adapts a custom endpoint into the route table. Failures
// produce a generic {"error": ...} body, not a JSON-RPC error object; custom
// endpoints sit outside the protocol surface and keep their own error shape.
func (s *Server) endpointHandler(ep registeredEndpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := newRequestContext(r)
		ctx := s.requestContext(r, rc)

		if s.oauth != nil {
			if err := s.oauth.ValidateToken(ctx, rc); err != nil {
				me := asError(err)
				s.writeEndpointError(w, me.HTTPStatus(), me)
				return
			}
		}

		var body json.RawMessage
		if raw, err := io.ReadAll(r.Body); err == nil && len(raw) > 0 {
			body = raw
		}

		res, err := ep.handler(ctx, rc, body)
		if err != nil {
			s.writeEndpointError(w, http.StatusInternalServerError, err)
			return
		}
		res.write(w)
	}
}

// multipartHandler adapts a custom file-upload endpoint into the route table.
func (s *Server) multipartHandler(ep registeredMultipartEndpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := newRequestContext(r)
		ctx := s.requestContext(r, rc)

		if s.oauth != nil {
			if err := s.oauth.ValidateToken(ctx, rc); err != nil {
				me := asError(err)
				s.writeEndpointError(w, me.HTTPStatus(), me)
				return
			}
		}

		form, err := r.MultipartReader()
		if err != nil {
			s.writeEndpointError(w, http.StatusBadRequest, err)
			return
		}

		res, err := ep.handler(ctx, rc, form)
		if err != nil {
			s.writeEndpointError(w, http.StatusInternalServerError, err)
			return
		}
		res.write(w)
	}
}

// requestContext stamps the call's transport facts onto the context for
// structured logging.
func (s *Server) requestContext(r *http.Request, rc *RequestContext) context.Context {
	return logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  rc.RequestID,
		Method:     rc.Method,
		Path:       rc.Path,
		RemoteAddr: rc.RemoteAddr,
	})
}

// writeError emits a JSON-RPC error response on the protocol endpoint using
// the taxonomy's transport status. id is nil for manufactured errors, which
// serialize with "id": null.
func (s *Server) writeError(w http.ResponseWriter, id *jsonrpc.RequestID, e *Error) {
	res := jsonrpc.NewErrorResponse(id, e.JSONRPCError())
	s.writeJSON(w, e.HTTPStatus(), res)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response body", slog.String("err", err.Error()))
	}
}

func (s *Server) writeEndpointError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
