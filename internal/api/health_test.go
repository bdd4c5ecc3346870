package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"quote-service/internal/common/config"
	"quote-service/internal/common/logger"
	"quote-service/internal/render"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getHealth(t *testing.T, s *testServer) HealthStatus {
	t.Helper()
	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status), w.Body.String())
	return status
}

// ==========================
// Health Tests
// ==========================

func TestHealth_Report(t *testing.T) {
	s := createTestServer(t, func(cfg *config.Config) {
		cfg.SMTP.Host = "smtp.gmail.com"
		cfg.SMTP.User = "devis@bedouielec.tn"
		cfg.SMTP.Pass = "secret"
	})

	status := getHealth(t, s)

	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, testNow.Format(time.RFC3339), status.Timestamp)
	require.NotNil(t, status.Chrome)
	assert.Equal(t, "HeadlessChrome/131.0.6778.85", *status.Chrome)
	assert.Equal(t, runtime.Version(), status.GoVersion)
	assert.Equal(t, "development", status.Environment)
	require.NotNil(t, status.Memory)
	assert.Equal(t, "ok", status.PDFDirectory)

	require.NotNil(t, status.SMTP)
	assert.True(t, status.SMTP.Configured)
	assert.Equal(t, "smtp.gmail.com", status.SMTP.Host)
	assert.Equal(t, "configuré", status.SMTP.User)
	assert.NotContains(t, status.SMTP.User, "devis@")

	require.NotNil(t, status.Dedup)
	assert.Equal(t, "memory", status.Dedup.Backend)
	assert.True(t, status.Dedup.OK)
	assert.Empty(t, status.Note)
}

func TestHealth_SMTPNotConfigured(t *testing.T) {
	s := createTestServer(t, nil)

	status := getHealth(t, s)
	require.NotNil(t, status.SMTP)
	assert.False(t, status.SMTP.Configured)
	assert.Equal(t, "non configuré", status.SMTP.Host)
	assert.Equal(t, "non configuré", status.SMTP.User)
}

func TestHealth_Cached(t *testing.T) {
	s := createTestServer(t, nil)

	first := getHealth(t, s)
	s.clock.Add(30 * time.Second)
	second := getHealth(t, s)

	assert.Equal(t, 1, s.engine.versionCalls())
	assert.Equal(t, first.Timestamp, second.Timestamp)

	s.clock.Add(31 * time.Second)
	third := getHealth(t, s)
	assert.Equal(t, 2, s.engine.versionCalls())
	assert.NotEqual(t, first.Timestamp, third.Timestamp)
	assert.Equal(t, int64(61), third.Uptime)
}

func TestHealth_FallbackOnPanic(t *testing.T) {
	s := createTestServer(t, nil)
	s.engine.panicMsg = "devtools socket closed"

	status := getHealth(t, s)

	assert.Equal(t, "healthy", status.Status)
	assert.NotEmpty(t, status.Note)
	assert.Equal(t, "devtools socket closed", status.Error)
	assert.Nil(t, status.Chrome)
	assert.Nil(t, status.SMTP)
}

func TestHealth_FallbackHidesErrorInProduction(t *testing.T) {
	s := createTestServer(t, func(cfg *config.Config) { cfg.App.Environment = "production" })
	s.engine.panicMsg = "devtools socket closed"

	status := getHealth(t, s)
	assert.Equal(t, "erreur interne", status.Error)
}

func TestHealth_UnwritableStorage(t *testing.T) {
	s := createTestServer(t, nil)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	h := NewHealthHandler(Dependencies{
		Config:  s.config,
		Storage: render.NewDiskStorage(blocker, s.clock),
		Store:   s.store,
		Clock:   s.clock,
		Logger:  logger.NewTestLogger(t),
	})

	status := h.Status(httptest.NewRequest(http.MethodGet, "/health", nil).Context())
	assert.Equal(t, "erreur", status.PDFDirectory)
	assert.Nil(t, status.Chrome)
}

// ==========================
// Info Tests
// ==========================

func TestInfo(t *testing.T) {
	s := createTestServer(t, nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Name      string   `json:"name"`
		Version   string   `json:"version"`
		Status    string   `json:"status"`
		Timestamp string   `json:"timestamp"`
		Endpoints []string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "quote-service", body.Name)
	assert.Equal(t, "1.0.0", body.Version)
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, testNow.Format(time.RFC3339), body.Timestamp)
	assert.Contains(t, body.Endpoints, "/send-quote")
	assert.Contains(t, body.Endpoints, "/download-devis/:name")
}

func TestMetricsEndpoint(t *testing.T) {
	s := createTestServer(t, nil)
	s.postQuote(validQuote)

	w := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quote_requests_total")
}

func TestNoRoute(t *testing.T) {
	s := createTestServer(t, nil)
	w := s.do(httptest.NewRequest(http.MethodGet, "/admin/cart/1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
