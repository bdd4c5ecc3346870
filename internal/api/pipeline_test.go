package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"quote-service/internal/common/clock"
	"quote-service/internal/common/logger"
	"quote-service/internal/dedup"
	"quote-service/internal/queue"
	"quote-service/internal/render"
	"quote-service/internal/token"
	emailsend "quote-service/internal/workers/communication/email-send"
	dispatchquote "quote-service/internal/workers/quote/dispatch-quote"
	processquote "quote-service/internal/workers/quote/process-quote"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var downloadLink = regexp.MustCompile(`download-devis/(devis-\d+\.pdf)\?token=([A-Za-z0-9_\-.]+)`)

type recordingSender struct {
	mu   sync.Mutex
	sent []*emailsend.Input
}

func (r *recordingSender) Execute(_ context.Context, input *emailsend.Input) (*emailsend.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, input)
	return &emailsend.Output{Success: true, Provider: "fake"}, nil
}

func (r *recordingSender) TestConnection(context.Context) error { return nil }

func (r *recordingSender) messages() []*emailsend.Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*emailsend.Input(nil), r.sent...)
}

type pipeline struct {
	router *gin.Engine
	queue  *queue.Queue
	sender *recordingSender
	engine *fakeEngine
}

// createTestPipeline wires the real store, queue, disk storage and stage chain
// behind the router; only the browser and the mail transport are faked.
func createTestPipeline(t *testing.T) *pipeline {
	t.Helper()
	cfg := createTestConfig()
	clk := clock.NewMockClock(testNow)
	log := logger.NewNoOpLogger()

	codec, err := token.NewCodec([]byte(cfg.Download.TokenSecret), cfg.Download.TokenTTL(), clk)
	require.NoError(t, err)
	store := dedup.NewMemoryStore(cfg.Duplicate.Window(), clk, log)
	storage := render.NewDiskStorage(filepath.Join(t.TempDir(), "generated-pdfs"), clk)
	require.NoError(t, storage.EnsureDir())

	// The shipped quote template lives at the repository root.
	root, err := filepath.Abs(filepath.Join("..", ".."))
	require.NoError(t, err)

	sender := &recordingSender{}
	engine := &fakeEngine{pdf: []byte("%PDF-1.4 e2e quote")}
	dispatcher := dispatchquote.NewDispatcher(&dispatchquote.Config{
		Enabled:         true,
		AdminRecipients: []string{"admin1@x.com", "admin2@x.com"},
		Currency:        "TND",
	}, store, sender, log)

	handler := processquote.NewHandler(processquote.DefaultConfig(), processquote.HandlerDependencies{
		Renderer: render.NewHTMLRenderer(render.TemplateConfig{
			SearchDirs:  []string{root},
			CompanyName: cfg.Company.Name,
			Currency:    cfg.Company.Currency,
		}, log),
		Engine:     engine,
		Storage:    storage,
		Tokens:     codec,
		Dispatcher: dispatcher,
		Logger:     log,
	})

	q := queue.New(handler.Handle, queue.Options{MaxDepth: 10}, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})

	router := NewRouter(Dependencies{
		Config:            cfg,
		Store:             store,
		Queue:             q,
		Storage:           storage,
		Tokens:            codec,
		FingerprintSecret: []byte(cfg.Download.TokenSecret),
		Clock:             clk,
		Logger:            log,
	})
	return &pipeline{router: router, queue: q, sender: sender, engine: engine}
}

func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.queue.Drain(ctx))
}

func (p *pipeline) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	p.router.ServeHTTP(w, req)
	return w
}

// ==========================
// End-to-End Tests
// ==========================

func TestPipeline_QuoteToDownload(t *testing.T) {
	p := createTestPipeline(t)

	w := p.do(newQuoteRequest(validQuote, testAPIKey))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	require.True(t, decodeQuoteResponse(t, w).Queued)

	p.drain(t)

	rendered := p.engine.renderedHTML()
	require.Len(t, rendered, 1)
	assert.Contains(t, rendered[0], "30 TND")
	assert.Contains(t, rendered[0], "<td>P</td>")
	assert.Contains(t, rendered[0], "a@x.com")

	msgs := p.sender.messages()
	require.Len(t, msgs, 3)

	var recipients []string
	var customer *emailsend.Input
	for _, m := range msgs {
		recipients = append(recipients, m.To)
		require.Len(t, m.Attachments, 1, m.To)
		assert.Equal(t, "application/pdf", m.Attachments[0].ContentType)
		assert.Equal(t, []byte("%PDF-1.4 e2e quote"), m.Attachments[0].Content)
		if m.To == "a@x.com" {
			customer = m
		} else {
			assert.Equal(t, "🔔 Nouvelle demande de devis - A (30 TND)", m.Subject)
		}
	}
	sort.Strings(recipients)
	assert.Equal(t, []string{"a@x.com", "admin1@x.com", "admin2@x.com"}, recipients)

	require.NotNil(t, customer)
	assert.Equal(t, "Votre devis - A (30 TND)", customer.Subject)
	assert.Contains(t, customer.Body, "30 TND")

	match := downloadLink.FindStringSubmatch(customer.Body)
	require.Len(t, match, 3, customer.Body)
	name, tok := match[1], match[2]

	dl := p.do(httptest.NewRequest(http.MethodGet, "/download-devis/"+name+"?token="+tok, nil))
	require.Equal(t, http.StatusOK, dl.Code, dl.Body.String())
	assert.Equal(t, "application/pdf", dl.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4 e2e quote", dl.Body.String())

	denied := p.do(httptest.NewRequest(http.MethodGet, "/download-devis/"+name+"?token="+tok+"x", nil))
	assert.Equal(t, http.StatusForbidden, denied.Code)
}

func TestPipeline_ResubmissionSendsNothingMore(t *testing.T) {
	p := createTestPipeline(t)

	require.Equal(t, http.StatusAccepted, p.do(newQuoteRequest(validQuote, testAPIKey)).Code)
	p.drain(t)
	require.Len(t, p.sender.messages(), 3)

	for i := 0; i < 3; i++ {
		w := p.do(newQuoteRequest(validQuote, testAPIKey))
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.True(t, decodeQuoteResponse(t, w).Duplicate)
	}
	p.drain(t)

	assert.Len(t, p.sender.messages(), 3)
}
