package httpmcp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestContextCapturesTransportFacts(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("X-Trace", "abc")

	rc := newRequestContext(req)
	require.NotEmpty(t, rc.RequestID)
	require.Equal(t, http.MethodPost, rc.Method)
	require.Equal(t, "/mcp", rc.Path)
	require.Equal(t, "abc", rc.Header("X-Trace"))

	// Each call gets a fresh identifier.
	rc2 := newRequestContext(req)
	require.NotEqual(t, rc.RequestID, rc2.RequestID)
}

func TestBearerToken(t *testing.T) {
	rcWith := func(auth string) *RequestContext {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		return newRequestContext(req)
	}

	token, ok := rcWith("Bearer abc123").BearerToken()
	require.True(t, ok)
	require.Equal(t, "abc123", token)

	token, ok = rcWith("Bearer ").BearerToken()
	require.True(t, ok)
	require.Empty(t, token)

	_, ok = rcWith("Basic dXNlcg==").BearerToken()
	require.False(t, ok)

	_, ok = rcWith("").BearerToken()
	require.False(t, ok)
}
