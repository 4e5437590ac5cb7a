package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestProxy(t *testing.T, upstream http.HandlerFunc) *httptest.Server {
	t.Helper()
	up := httptest.NewServer(upstream)
	t.Cleanup(up.Close)

	s := New(Config{Upstream: up.URL, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestProxyForwardsIdenticalBody(t *testing.T) {
	const order = `{"permit":{"permitted":[],"nonce":"1","deadline":"2"},"owner":"0x0000000000000000000000000000000000000001","signature":"0x01","outputs":[]}`
	var received string
	srv := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		received = string(b)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	})

	resp, err := http.Post(srv.URL+Route, "application/json", strings.NewReader(order))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	require.Equal(t, true, out["success"])
	require.Equal(t, "abc", out["data"].(map[string]interface{})["id"])
	require.JSONEq(t, order, received)
}

func TestProxyPreservesUpstreamStatus(t *testing.T) {
	srv := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	})

	resp, err := http.Post(srv.URL+Route, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	out := decode(t, resp)
	require.Equal(t, "Transaction cache error", out["error"])
	require.Equal(t, float64(500), out["status"])
	details := out["details"].(map[string]interface{})
	require.Equal(t, "Internal Server Error", strings.TrimSpace(details["message"].(string)))
}

func TestProxyRejectsNonJSONBody(t *testing.T) {
	called := false
	srv := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	resp, err := http.Post(srv.URL+Route, "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.False(t, called)
}

func TestProxyUpstreamDown(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := up.URL
	up.Close()

	srv := httptest.NewServer(New(Config{Upstream: url, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+Route, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, "Failed to forward request", decode(t, resp)["error"])
}

func TestProxyConnectivityCheck(t *testing.T) {
	srv := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"orders":[]}`))
	})

	resp, err := http.Get(srv.URL + Route)
	require.NoError(t, err)
	out := decode(t, resp)
	require.Equal(t, "Transaction cache proxy is running", out["message"])
	require.Equal(t, float64(200), out["txCacheStatus"])
	require.Equal(t, `{"orders":[]}`, out["txCacheResponse"])
}

func TestProxyServesMetrics(t *testing.T) {
	srv := newTestProxy(t, func(http.ResponseWriter, *http.Request) {})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
