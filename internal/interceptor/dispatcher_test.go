package interceptor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatchForwardsBodyAndHeaders(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotContentType string
	var gotBody map[string]interface{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"tx-1"}`))
	}))
	defer upstream.Close()

	d, err := NewDispatcher(upstream.URL, time.Second, nil, zap.NewNop())
	require.NoError(t, err)

	req := NewOutboundRequest(http.MethodPost, "/wallet/deposit", map[string]interface{}{"amount": 5000.0})
	req = req.WithHeader("Authorization", "Bearer token-1")

	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.JSONEq(t, `{"id":"tx-1"}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Headers.Get("Content-Type"))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/wallet/deposit", gotPath)
	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, 5000.0, gotBody["amount"])
}

func TestDispatchNoBodyOmitsContentType(t *testing.T) {
	var gotContentType string
	var hadBody bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		hadBody = len(raw) > 0
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	d, err := NewDispatcher(upstream.URL, time.Second, nil, zap.NewNop())
	require.NoError(t, err)

	resp, err := d.Dispatch(context.Background(), NewOutboundRequest(http.MethodGet, "/products", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, gotContentType)
	assert.False(t, hadBody)
}

func TestDispatchSingleAttempt(t *testing.T) {
	var attempts int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	d, err := NewDispatcher(upstream.URL, time.Second, nil, zap.NewNop())
	require.NoError(t, err)

	// A 5xx is still a response; it is returned, not retried.
	resp, err := d.Dispatch(context.Background(), NewOutboundRequest(http.MethodGet, "/products", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, 1, attempts)
}

func TestDispatchUnreachableUpstream(t *testing.T) {
	d, err := NewDispatcher("http://127.0.0.1:1", 100*time.Millisecond, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), NewOutboundRequest(http.MethodGet, "/products", nil))
	assert.Error(t, err)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
}
