// internal/api/health.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"quote-service/internal/common/clock"
	"quote-service/internal/common/config"
	"quote-service/internal/common/logger"
	"quote-service/internal/dedup"
	"quote-service/internal/render"

	"github.com/gin-gonic/gin"
)

const (
	HealthCacheTTL     = 60 * time.Second
	healthProbeTimeout = 5 * time.Second
)

type HealthStatus struct {
	Status       string        `json:"status"`
	Timestamp    string        `json:"timestamp"`
	Chrome       *string       `json:"chrome"`
	GoVersion    string        `json:"goVersion"`
	Environment  string        `json:"environment"`
	Memory       *MemoryStatus `json:"memory,omitempty"`
	Uptime       int64         `json:"uptime"`
	PDFDirectory string        `json:"pdfDirectory,omitempty"`
	SMTP         *SMTPStatus   `json:"smtp,omitempty"`
	Dedup        *DedupStatus  `json:"dedup,omitempty"`
	Note         string        `json:"note,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type MemoryStatus struct {
	AllocMB uint64 `json:"allocMB"`
	SysMB   uint64 `json:"sysMB"`
}

type SMTPStatus struct {
	Transport  string `json:"transport"`
	Configured bool   `json:"configured"`
	Host       string `json:"host"`
	User       string `json:"user"`
}

type DedupStatus struct {
	Backend string `json:"backend"`
	OK      bool   `json:"ok"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and dependency state. The probe launches a
// browser, so results are cached for HealthCacheTTL.
type HealthHandler struct {
	config  *config.Config
	engine  render.PDFEngine
	storage *render.DiskStorage
	store   dedup.Store
	clock   clock.Clock
	logger  logger.Logger
	started time.Time

	mu       sync.Mutex
	cached   *HealthStatus
	cachedAt time.Time
}

func NewHealthHandler(deps Dependencies) *HealthHandler {
	return &HealthHandler{
		config:  deps.Config,
		engine:  deps.Engine,
		storage: deps.Storage,
		store:   deps.Store,
		clock:   deps.Clock,
		logger:  deps.Logger.WithFields(map[string]interface{}{"handler": "health"}),
		started: deps.Clock.Now(),
	}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.Status(c.Request.Context()))
}

// Status returns the cached report or builds a fresh one.
func (h *HealthHandler) Status(ctx context.Context) *HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	if h.cached != nil && now.Sub(h.cachedAt) < HealthCacheTTL {
		return h.cached
	}

	h.cached = h.check(ctx, now)
	h.cachedAt = now
	return h.cached
}

func (h *HealthHandler) check(ctx context.Context, now time.Time) (status *HealthStatus) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("Health check failed", map[string]interface{}{"panic": rec})
			status = h.fallback(now, fmt.Errorf("%v", rec))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status = &HealthStatus{
		Status:      "healthy",
		Timestamp:   now.UTC().Format(time.RFC3339),
		Chrome:      h.chromeVersion(ctx),
		GoVersion:   runtime.Version(),
		Environment: h.config.App.Environment,
		Memory: &MemoryStatus{
			AllocMB: mem.Alloc / 1024 / 1024,
			SysMB:   mem.Sys / 1024 / 1024,
		},
		Uptime:       int64(now.Sub(h.started).Seconds()),
		PDFDirectory: "ok",
		SMTP:         h.smtpStatus(),
		Dedup:        h.dedupStatus(ctx),
	}

	if h.storage == nil {
		status.PDFDirectory = "erreur"
	} else if err := h.storage.Writable(); err != nil {
		h.logger.Warn("PDF directory is not writable", map[string]interface{}{"error": err.Error()})
		status.PDFDirectory = "erreur"
	}
	return status
}

func (h *HealthHandler) fallback(now time.Time, err error) *HealthStatus {
	status := &HealthStatus{
		Status:      "healthy",
		Timestamp:   now.UTC().Format(time.RFC3339),
		GoVersion:   runtime.Version(),
		Environment: h.config.App.Environment,
		Note:        "vérification de santé partiellement échouée",
		Error:       "erreur interne",
	}
	if !h.config.App.IsProduction() {
		status.Error = err.Error()
	}
	return status
}

func (h *HealthHandler) chromeVersion(ctx context.Context) *string {
	if h.engine == nil {
		return nil
	}
	version, err := h.engine.Version(ctx)
	if err != nil {
		h.logger.Warn("Chrome version probe failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return &version
}

func (h *HealthHandler) smtpStatus() *SMTPStatus {
	smtp := h.config.SMTP
	status := &SMTPStatus{
		Transport:  h.config.Mail.Transport,
		Configured: smtp.Configured(),
		Host:       "non configuré",
		User:       "non configuré",
	}
	if smtp.Host != "" {
		status.Host = smtp.Host
	}
	if smtp.User != "" {
		status.User = "configuré"
	}
	return status
}

func (h *HealthHandler) dedupStatus(ctx context.Context) *DedupStatus {
	if h.store == nil {
		return nil
	}
	status := &DedupStatus{Backend: h.store.Backend(), OK: true}
	if p, ok := h.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Duplicate store ping failed", map[string]interface{}{"error": err.Error()})
			status.OK = false
		}
	}
	return status
}
