package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"quote-service/internal/common/clock"
	"quote-service/internal/common/config"
	"quote-service/internal/common/logger"
	"quote-service/internal/dedup"
	"quote-service/internal/models"
	"quote-service/internal/render"
	"quote-service/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testAPIKey = "test-api-key"
	validQuote = `{"name":"A","email":"a@x.com","phone":"1","products":[{"product":{"name":"P","price":10},"quantity":3}]}`
)

var testNow = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// ==========================
// Fakes
// ==========================

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*models.Job
	err  error
}

func (q *fakeQueue) Enqueue(job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *fakeQueue) setErr(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
}

type fakeEngine struct {
	mu       sync.Mutex
	pdf      []byte
	err      error
	version  string
	versions int
	panicMsg string
	rendered []string
}

func (e *fakeEngine) Render(_ context.Context, html string) ([]byte, error) {
	e.mu.Lock()
	e.rendered = append(e.rendered, html)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.pdf, nil
}

func (e *fakeEngine) Version(_ context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.versions++
	if e.panicMsg != "" {
		panic(e.panicMsg)
	}
	return e.version, nil
}

func (e *fakeEngine) renderedHTML() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.rendered...)
}

func (e *fakeEngine) versionCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versions
}

// ==========================
// Test Helpers
// ==========================

type testServer struct {
	router  *gin.Engine
	config  *config.Config
	store   *dedup.MemoryStore
	queue   *fakeQueue
	storage *render.DiskStorage
	tokens  *token.Codec
	engine  *fakeEngine
	clock   *clock.MockClock
}

func createTestConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Name: "quote-service", Version: "1.0.0", Environment: "development"},
		Server:    config.ServerConfig{Port: 5000, BodyLimitBytes: DefaultBodyLimit},
		API:       config.APIConfig{Key: testAPIKey},
		Download:  config.DownloadConfig{TokenSecret: "test-secret", TokenTTLSeconds: 3600},
		Duplicate: config.DuplicateConfig{WindowSeconds: 15},
		Dedup:     config.DedupConfig{Backend: "memory"},
		Mail:      config.MailConfig{Transport: "smtp"},
		SMTP:      config.SMTPConfig{Port: 587},
		Company:   config.CompanyConfig{Name: "Bedouielec Transformateurs", Currency: "TND"},
		Frontend:  config.FrontendConfig{Origin: "https://shop.bedouielec.tn"},
	}
}

func createTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := createTestConfig()
	if mutate != nil {
		mutate(cfg)
	}

	clk := clock.NewMockClock(testNow)
	codec, err := token.NewCodec([]byte(cfg.Download.TokenSecret), cfg.Download.TokenTTL(), clk)
	require.NoError(t, err)

	s := &testServer{
		config:  cfg,
		store:   dedup.NewMemoryStore(cfg.Duplicate.Window(), clk, logger.NewTestLogger(t)),
		queue:   &fakeQueue{},
		storage: render.NewDiskStorage(filepath.Join(t.TempDir(), "generated-pdfs"), clk),
		tokens:  codec,
		engine:  &fakeEngine{version: "HeadlessChrome/131.0.6778.85"},
		clock:   clk,
	}
	require.NoError(t, s.storage.EnsureDir())

	s.router = NewRouter(Dependencies{
		Config:            cfg,
		Store:             s.store,
		Queue:             s.queue,
		Storage:           s.storage,
		Tokens:            codec,
		Engine:            s.engine,
		FingerprintSecret: []byte(cfg.Download.TokenSecret),
		Clock:             clk,
		Logger:            logger.NewTestLogger(t),
	})
	return s
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postQuote(body string) *httptest.ResponseRecorder {
	return s.do(newQuoteRequest(body, testAPIKey))
}

func newQuoteRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/send-quote", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	return req
}

func decodeQuoteResponse(t *testing.T, w *httptest.ResponseRecorder) QuoteResponse {
	t.Helper()
	var resp QuoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func decodeErrorResponse(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}
