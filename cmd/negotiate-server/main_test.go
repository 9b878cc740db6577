package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-negotiate/internal/testprovider"
	"github.com/smnsjas/go-negotiate/negotiate"
	"github.com/smnsjas/go-negotiate/secctx"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	p := testprovider.New().
		On("T1", testprovider.Step{Status: secctx.StatusOK, Output: []byte("O1"), Identity: &secctx.Identity{
			Principal: "alice@EXAMPLE.COM",
			User:      "alice",
			Domain:    "EXAMPLE.COM",
		}})

	reg := prometheus.NewRegistry()
	cfg := negotiate.DefaultConfig()
	cfg.Provider = p
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Registerer = reg
	cfg.SweepInterval = time.Hour
	cfg.RequireAuth = true
	auth, err := negotiate.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = auth.Close() })
	return newRouter(auth, reg)
}

func TestRouter_Public(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouter_WhoAmI(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Negotiate", rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Negotiate "+negotiate.EncodeToken([]byte("T1")))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var s negotiate.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	assert.Equal(t, "alice", s.User)
}

func TestNewLogger(t *testing.T) {
	_, _, err := newLogger("chatty", "", 0, 0)
	assert.Error(t, err)

	logger, closeFn, err := newLogger("debug", filepath.Join(t.TempDir(), "server.log"), 0, 0)
	require.NoError(t, err)
	logger.Debug("hello", "authorization", "Negotiate abc")
	closeFn()
}
