// internal/api/router.go
package api

import (
	"net/http"

	"quote-service/internal/common/clock"
	"quote-service/internal/common/config"
	"quote-service/internal/common/logger"
	"quote-service/internal/dedup"
	"quote-service/internal/models"
	"quote-service/internal/render"
	"quote-service/internal/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DownloadRoute = "/download-devis/"

// JobQueue is the part of *queue.Queue the intake endpoint needs.
type JobQueue interface {
	Enqueue(job *models.Job) error
	Len() int
}

type Dependencies struct {
	Config  *config.Config
	Store   dedup.Store
	Queue   JobQueue
	Storage *render.DiskStorage
	Tokens  *token.Codec
	// Engine is only asked for its version by /health. Optional.
	Engine render.PDFEngine
	// FingerprintSecret keys the HMAC that identifies duplicate submissions.
	FingerprintSecret []byte
	Clock             clock.Clock
	Logger            logger.Logger
}

// NewRouter wires middleware and routes onto a fresh gin engine.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	cfg := deps.Config

	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery(deps.Logger))
	router.Use(RequestLogger(deps.Logger))
	router.Use(CORS(cfg.AllowedOrigins(), cfg.App.IsProduction(), deps.Logger))

	quotes := NewQuoteHandler(deps)
	downloads := NewDownloadHandler(deps.Storage, deps.Tokens, deps.Logger)
	health := NewHealthHandler(deps)
	info := NewInfoHandler(cfg, deps.Clock)

	router.GET("/", info.Info)
	router.GET("/health", health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET(DownloadRoute+":name", downloads.Download)

	intake := router.Group("/send-quote")
	intake.Use(APIKey(cfg.API.Key, deps.Logger))
	intake.Use(BodyLimit(cfg.Server.BodyLimitBytes))
	{
		intake.POST("", quotes.SendQuote)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Non trouvé"})
	})

	return router
}
