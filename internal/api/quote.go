// internal/api/quote.go
package api

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"quote-service/internal/common/clock"
	"quote-service/internal/common/errors"
	"quote-service/internal/common/logger"
	"quote-service/internal/common/metrics"
	"quote-service/internal/common/validation"
	"quote-service/internal/dedup"
	"quote-service/internal/models"
	"quote-service/internal/queue"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	MessageDuplicateInProgress = "Demande en double ignorée."
	MessageDuplicateSent       = "Demande déjà traitée."
	MessageQueued              = "La demande a été acceptée et sera traitée en arrière-plan. Vous recevrez un email."
)

var quoteSchema = validation.MustCompile(models.QuoteRequestSchema)

// QuoteResponse is the 202 body of POST /send-quote.
type QuoteResponse struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Queued    bool   `json:"queued,omitempty"`
	JobID     string `json:"jobId,omitempty"`
	Message   string `json:"message"`
}

type QuoteHandler struct {
	store  dedup.Store
	queue  JobQueue
	secret []byte
	clock  clock.Clock
	logger logger.Logger
}

func NewQuoteHandler(deps Dependencies) *QuoteHandler {
	return &QuoteHandler{
		store:  deps.Store,
		queue:  deps.Queue,
		secret: deps.FingerprintSecret,
		clock:  deps.Clock,
		logger: deps.Logger.WithFields(map[string]interface{}{"handler": "send-quote"}),
	}
}

// SendQuote validates a quote request, drops duplicates and queues the rest.
// Processing happens in the background, so the answer is always 202 on success.
func (h *QuoteHandler) SendQuote(c *gin.Context) {
	log := h.logger.WithFields(map[string]interface{}{"request_id": GetRequestID(c)})

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.reject(c, "rejected", errors.NewBodyTooLargeError(tooLarge.Limit))
			return
		}
		h.reject(c, "invalid", errors.NewMalformedBodyError(err))
		return
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		if err == nil {
			err = stderrors.New("body must be a JSON object")
		}
		h.reject(c, "invalid", errors.NewMalformedBodyError(err))
		return
	}

	if result := quoteSchema.Validate(body); !result.Valid {
		log.Warn("Quote request rejected", map[string]interface{}{"errors": result.Summary()})
		h.reject(c, "invalid", errors.NewValidationError(result.Summary()))
		return
	}

	var req models.QuoteRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.reject(c, "invalid", errors.NewValidationError(err.Error()))
		return
	}

	fp, err := dedup.Fingerprint(h.secret, body)
	if err != nil {
		h.reject(c, "rejected", errors.NewInternalError(err))
		return
	}

	ctx := c.Request.Context()
	status, err := h.store.CheckAndReserve(ctx, fp)
	if err != nil {
		log.Error("Duplicate check failed", map[string]interface{}{"error": err.Error()})
		h.reject(c, "rejected", errors.NewStoreFailedError(err))
		return
	}

	switch status {
	case dedup.StatusInProgress:
		metrics.QuotesReceived.WithLabelValues(status.String()).Inc()
		log.Info("Duplicate quote request ignored", map[string]interface{}{"fingerprint": fp[:12], "status": status.String()})
		c.JSON(http.StatusAccepted, QuoteResponse{Success: true, Duplicate: true, Message: MessageDuplicateInProgress})
		return
	case dedup.StatusAlreadySent:
		metrics.QuotesReceived.WithLabelValues(status.String()).Inc()
		log.Info("Duplicate quote request ignored", map[string]interface{}{"fingerprint": fp[:12], "status": status.String()})
		c.JSON(http.StatusAccepted, QuoteResponse{Success: true, Duplicate: true, Message: MessageDuplicateSent})
		return
	}

	job := &models.Job{
		ID:          uuid.NewString(),
		Body:        body,
		Request:     req,
		Headers:     jobHeaders(c),
		Fingerprint: fp,
		ReceivedAt:  h.clock.Now(),
		BaseURL:     requestBaseURL(c.Request),
	}

	if err := h.queue.Enqueue(job); err != nil {
		if rerr := h.store.Release(ctx, fp); rerr != nil {
			log.Error("Failed to release reservation", map[string]interface{}{"error": rerr.Error()})
		}
		switch {
		case stderrors.Is(err, queue.ErrQueueFull):
			log.Warn("Queue full, quote refused", map[string]interface{}{"depth": h.queue.Len()})
			h.reject(c, "rejected", errors.NewQueueFullError(h.queue.Len()))
		case stderrors.Is(err, queue.ErrQueueClosed):
			h.reject(c, "rejected", errors.New(errors.ErrCodeServiceStopped, "Service en cours d'arrêt", ""))
		default:
			h.reject(c, "rejected", errors.NewInternalError(err))
		}
		return
	}

	metrics.QuotesReceived.WithLabelValues("queued").Inc()
	log.Info("Quote request queued", map[string]interface{}{
		"jobId":       job.ID,
		"fingerprint": fp[:12],
		"products":    len(req.Products),
	})
	c.JSON(http.StatusAccepted, QuoteResponse{Success: true, Queued: true, JobID: job.ID, Message: MessageQueued})
}

func (h *QuoteHandler) reject(c *gin.Context, outcome string, err error) {
	metrics.QuotesReceived.WithLabelValues(outcome).Inc()
	respondError(c, err)
}

// requestBaseURL rebuilds the public origin of the request, honouring a
// reverse proxy's X-Forwarded-Proto and X-Forwarded-Host.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = proto
	}
	host := r.Host
	if fwd := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func jobHeaders(c *gin.Context) map[string]string {
	headers := map[string]string{HeaderRequestID: GetRequestID(c)}
	for _, name := range []string{"User-Agent", "Origin"} {
		if v := c.GetHeader(name); v != "" {
			headers[name] = v
		}
	}
	return headers
}
