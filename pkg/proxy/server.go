package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signet-swap/pkg/metrics"
)

// Route is where the proxy accepts orders
const Route = "/api/tx-cache"

const maxBodyBytes = 1 << 20

// HTTPDoer abstracts http.Client for ease of testing
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds proxy settings
type Config struct {
	Listen   string
	Upstream string
	Client   HTTPDoer
	Logger   *slog.Logger
	Metrics  *metrics.Swap
}

// Server relays order submissions to the transaction cache so a browser
// client can post same-origin.
type Server struct {
	upstream string
	client   HTTPDoer
	logger   *slog.Logger
	metrics  *metrics.Swap
	srv      *http.Server
}

// New creates a proxy server
func New(cfg Config) *Server {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		upstream: strings.TrimRight(cfg.Upstream, "/"),
		client:   client,
		logger:   logger.With("component", "proxy"),
		metrics:  cfg.Metrics,
	}
	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the proxy routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post(Route, s.forwardOrder)
	r.Get(Route, s.checkUpstream)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("proxy listening", "addr", s.srv.Addr, "upstream", s.upstream)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) forwardOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Invalid request body",
			"details": map[string]string{"message": "body must be a JSON order"},
		})
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.upstream+"/orders", bytes.NewReader(body))
	if err != nil {
		s.fail(w, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		s.fail(w, err)
		return
	}
	data := asJSON(respBody)

	s.logger.Debug("transaction cache responded", "status", resp.StatusCode, "body", string(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.metrics.CacheRequest("proxy", "rejected")
		writeJSON(w, resp.StatusCode, map[string]interface{}{
			"error":   "Transaction cache error",
			"status":  resp.StatusCode,
			"details": data,
		})
		return
	}

	s.metrics.CacheRequest("proxy", "ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": data})
}

func (s *Server) checkUpstream(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{"message": "Transaction cache proxy is running"}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.upstream+"/orders", nil)
	if err == nil {
		req.Header.Set("Accept", "application/json")
		var resp *http.Response
		resp, err = s.client.Do(req)
		if err == nil {
			defer resp.Body.Close()
			text, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			out["txCacheStatus"] = resp.StatusCode
			out["txCacheResponse"] = string(text)
		}
	}
	if err != nil {
		out["txCacheError"] = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// fail reports an upstream transport failure
func (s *Server) fail(w http.ResponseWriter, err error) {
	s.metrics.CacheRequest("proxy", "unreachable")
	s.logger.Error("failed to forward order", "error", err)
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{
		"error":   "Failed to forward request",
		"details": map[string]string{"message": err.Error()},
	})
}

// asJSON returns the body as JSON, wrapping plain text as {"message": text}
func asJSON(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	wrapped, _ := json.Marshal(map[string]string{"message": string(body)})
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
