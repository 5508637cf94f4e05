package httpmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tmaxmax/go-sse"

	"github.com/httpmcp/httpmcp-go/broker"
	"github.com/httpmcp/httpmcp-go/broker/memory"
	"github.com/httpmcp/httpmcp-go/mcp"
)

func TestPostRejectsWrongContentType(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeRPC(t, rec)
	require.NotNil(t, env.Error)
	require.Equal(t, -32600, env.Error.Code)
	require.Equal(t, "Invalid Content-Type. Expected application/json", env.Error.Message)
	require.Nil(t, env.ID)
}

func TestPostParseError(t *testing.T) {
	srv := newTestServer(t)

	rec := postRPC(t, srv, `{"jsonrpc":"2.0",`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeRPC(t, rec)
	require.NotNil(t, env.Error)
	require.Equal(t, -32700, env.Error.Code)
	require.True(t, strings.HasPrefix(env.Error.Message, "Parse error: "))
	require.Nil(t, env.ID)
	// A manufactured error response still carries an explicit null id.
	require.Contains(t, rec.Body.String(), `"id":null`)
}

func TestPostRejectsWrongVersion(t *testing.T) {
	srv := newTestServer(t)

	rec := postRPC(t, srv, `{"jsonrpc":"1.0","id":9,"method":"ping"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeRPC(t, rec)
	require.NotNil(t, env.Error)
	require.Equal(t, -32600, env.Error.Code)
	require.EqualValues(t, 9, env.ID)
}

func TestNotificationNeverGetsBody(t *testing.T) {
	srv := newTestServer(t)

	cases := map[string]string{
		"well-formed":    `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		"null id":        `{"jsonrpc":"2.0","id":null,"method":"notifications/initialized"}`,
		"unknown method": `{"jsonrpc":"2.0","method":"no/such/thing"}`,
		"bad version":    `{"jsonrpc":"1.0","method":"notifications/initialized"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postRPC(t, srv, body)
			require.Equal(t, http.StatusNoContent, rec.Code)
			require.Zero(t, rec.Body.Len())
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)

	rec := postRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	pre := httptest.NewRecorder()
	srv.ServeHTTP(pre, req)
	require.Equal(t, http.StatusOK, pre.Code)
	require.Equal(t, "*", pre.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDisabled(t *testing.T) {
	srv, err := newTestBuilder().EnableCORS(false).Build()
	require.NoError(t, err)

	rec := postRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOAuthPresenceCheck(t *testing.T) {
	srv, err := newTestBuilder().WithOAuth("client", "secret").Build()
	require.NoError(t, err)

	post := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	rec := post("")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeRPC(t, rec)
	require.Equal(t, "Authentication required", env.Error.Message)

	rec = post("Bearer ")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = post("Bearer anything")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamingFallbackWithoutSubscribers(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	// No stream is connected, so the response comes back directly.
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeRPC(t, rec)
	require.Nil(t, env.Error)
}

func TestStreamingDelivery(t *testing.T) {
	br := memory.New()
	srv, err := newTestBuilder().WithBroker(br).Build()
	require.NoError(t, err)
	defer func() { _ = br.Close() }()

	ts := httptest.NewServer(srv)
	defer ts.Close()

	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	greq, err := http.NewRequestWithContext(streamCtx, http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	greq.Header.Set("Accept", "text/event-stream")

	gres, err := ts.Client().Do(greq)
	require.NoError(t, err)
	defer func() { _ = gres.Body.Close() }()
	require.Equal(t, http.StatusOK, gres.StatusCode)
	require.Equal(t, "text/event-stream", gres.Header.Get("Content-Type"))

	events := make(chan sse.Event, 4)
	go func() {
		for ev, rerr := range sse.Read(gres.Body, nil) {
			if rerr != nil {
				return
			}
			events <- ev
		}
	}()

	require.Eventually(t, func() bool {
		n, serr := br.Subscribers(context.Background())
		return serr == nil && n == 1
	}, time.Second, 5*time.Millisecond)

	preq, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}`))
	require.NoError(t, err)
	preq.Header.Set("Content-Type", "application/json")
	preq.Header.Set("Accept", "text/event-stream")

	pres, err := ts.Client().Do(preq)
	require.NoError(t, err)
	body, _ := io.ReadAll(pres.Body)
	_ = pres.Body.Close()

	// Accepted for streaming delivery: nothing comes back on the POST.
	require.Equal(t, http.StatusAccepted, pres.StatusCode)
	require.Empty(t, body)

	select {
	case ev := <-events:
		require.Equal(t, "message", ev.Type)
		require.NotEmpty(t, ev.LastEventID)

		var env rpcEnvelope
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &env))
		require.EqualValues(t, 7, env.ID)
		require.Nil(t, env.Error)

		var result mcp.CallToolResult
		require.NoError(t, json.Unmarshal(env.Result, &result))
		require.JSONEq(t, `{"result":5}`, result.Content[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for streamed response")
	}
}

func TestStreamingFanOutToAllSubscribers(t *testing.T) {
	br := memory.New()
	srv, err := newTestBuilder().WithBroker(br).Build()
	require.NoError(t, err)
	defer func() { _ = br.Close() }()

	ts := httptest.NewServer(srv)
	defer ts.Close()

	openStream := func() (<-chan sse.Event, func()) {
		ctx, cancel := context.WithCancel(context.Background())
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp", nil)
		require.NoError(t, rerr)
		req.Header.Set("Accept", "text/event-stream")

		res, rerr := ts.Client().Do(req)
		require.NoError(t, rerr)

		ch := make(chan sse.Event, 4)
		go func() {
			defer func() { _ = res.Body.Close() }()
			for ev, serr := range sse.Read(res.Body, nil) {
				if serr != nil {
					return
				}
				ch <- ev
			}
		}()
		return ch, cancel
	}

	chA, closeA := openStream()
	defer closeA()
	chB, closeB := openStream()
	defer closeB()

	require.Eventually(t, func() bool {
		n, serr := br.Subscribers(context.Background())
		return serr == nil && n == 2
	}, time.Second, 5*time.Millisecond)

	preq, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":"fan","method":"ping"}`))
	require.NoError(t, err)
	preq.Header.Set("Content-Type", "application/json")
	preq.Header.Set("Accept", "text/event-stream")

	pres, err := ts.Client().Do(preq)
	require.NoError(t, err)
	_ = pres.Body.Close()
	require.Equal(t, http.StatusAccepted, pres.StatusCode)

	for _, ch := range []<-chan sse.Event{chA, chB} {
		select {
		case ev := <-ch:
			var env rpcEnvelope
			require.NoError(t, json.Unmarshal([]byte(ev.Data), &env))
			require.Equal(t, "fan", env.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("a subscriber did not receive the broadcast")
		}
	}
}

func TestCustomEndpoint(t *testing.T) {
	srv, err := newTestBuilder().
		Endpoint(
			NewEndpointMeta("/status", "GET").Description("status probe"),
			func(_ context.Context, _ *RequestContext, _ json.RawMessage) (*EndpointResponse, error) {
				return NewJSONResponse(http.StatusOK, map[string]string{"status": "ok"})
			}).
		Endpoint(
			NewEndpointMeta("/explode", "POST"),
			func(_ context.Context, _ *RequestContext, _ json.RawMessage) (*EndpointResponse, error) {
				return nil, errors.New("kaboom")
			}).
		Build()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	// Custom endpoints fail with a plain error object, not a JSON-RPC one.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/explode", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"kaboom"}`, rec.Body.String())
}

func TestCustomEndpointReceivesBody(t *testing.T) {
	srv, err := newTestBuilder().
		Endpoint(
			NewEndpointMeta("/echo", "POST"),
			func(_ context.Context, _ *RequestContext, body json.RawMessage) (*EndpointResponse, error) {
				return &EndpointResponse{Body: body}, nil
			}).
		Build()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"a":1}`, rec.Body.String())
}

func TestMultipartEndpoint(t *testing.T) {
	srv, err := newTestBuilder().
		MultipartEndpoint(
			NewEndpointMeta("/upload", "POST"),
			func(_ context.Context, _ *RequestContext, form *multipart.Reader) (*EndpointResponse, error) {
				sizes := map[string]int64{}
				for {
					part, perr := form.NextPart()
					if perr == io.EOF {
						break
					}
					if perr != nil {
						return nil, perr
					}
					n, cerr := io.Copy(io.Discard, part)
					if cerr != nil {
						return nil, cerr
					}
					sizes[part.FormName()] = n
				}
				return NewJSONResponse(http.StatusOK, sizes)
			}).
		Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("report", "report.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("twelve bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"report":12}`, rec.Body.String())
}

func TestWildcardAcceptStaysDirect(t *testing.T) {
	br := memory.New()
	srv, err := newTestBuilder().WithBroker(br).Build()
	require.NoError(t, err)
	defer func() { _ = br.Close() }()

	// An active stream makes streaming delivery possible, but a wildcard
	// Accept must not opt the caller into it.
	sub, err := br.Subscribe(context.Background(), "")
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	post := func(accept string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", accept)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	rec := post("*/*")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeRPC(t, rec)
	require.Nil(t, env.Error)

	rec = post("application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	// Nothing was broadcast for either direct response.
	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sub.Next(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The explicit preference still streams.
	rec = post("text/event-stream")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Zero(t, rec.Body.Len())

	ev, err := sub.Next(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(ev.Data), `"id":1`)
}

// scriptedSubscription feeds handleGetMCP a predetermined sequence of Next
// outcomes, ending with io.EOF when the feed closes.
type scriptedSubscription struct {
	feed chan scriptedNext
}

type scriptedNext struct {
	ev  broker.Event
	err error
}

func (s *scriptedSubscription) Next(ctx context.Context) (broker.Event, error) {
	select {
	case step, ok := <-s.feed:
		if !ok {
			return broker.Event{}, io.EOF
		}
		return step.ev, step.err
	case <-ctx.Done():
		return broker.Event{}, ctx.Err()
	}
}

func (s *scriptedSubscription) Close() error { return nil }

type scriptedBroker struct {
	sub *scriptedSubscription
}

func (b *scriptedBroker) Publish(_ context.Context, _ []byte) (string, error) {
	return "", nil
}

func (b *scriptedBroker) Subscribe(_ context.Context, _ string) (broker.Subscription, error) {
	return b.sub, nil
}

func (b *scriptedBroker) Subscribers(_ context.Context) (int, error) { return 1, nil }

func (b *scriptedBroker) Close() error { return nil }

func TestStreamEmitsGapFrameOnLag(t *testing.T) {
	sub := &scriptedSubscription{feed: make(chan scriptedNext, 2)}
	sub.feed <- scriptedNext{err: &broker.LagError{Skipped: 2}}
	sub.feed <- scriptedNext{ev: broker.Event{ID: "e1", Data: []byte(`{"jsonrpc":"2.0","result":{},"id":1}`)}}
	close(sub.feed)

	srv, err := newTestBuilder().WithBroker(&scriptedBroker{sub: sub}).Build()
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var events []sse.Event
	for ev, rerr := range sse.Read(res.Body, nil) {
		if rerr != nil {
			break
		}
		events = append(events, ev)
	}

	// A lagging consumer sees a gap frame telling it how much it missed,
	// then delivery resumes with the surviving events.
	require.Len(t, events, 2)
	require.Equal(t, "gap", events[0].Type)
	require.JSONEq(t, `{"skipped":2}`, events[0].Data)
	require.NotEmpty(t, events[0].LastEventID)

	require.Equal(t, "message", events[1].Type)
	require.Equal(t, "e1", events[1].LastEventID)
	require.JSONEq(t, `{"jsonrpc":"2.0","result":{},"id":1}`, events[1].Data)
}

func TestMultipartEndpointRejectsNonMultipart(t *testing.T) {
	srv, err := newTestBuilder().
		MultipartEndpoint(
			NewEndpointMeta("/upload", "POST"),
			func(_ context.Context, _ *RequestContext, _ *multipart.Reader) (*EndpointResponse, error) {
				return NewJSONResponse(http.StatusOK, nil)
			}).
		Build()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
