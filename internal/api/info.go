package api

import (
	"net/http"
	"time"

	"quote-service/internal/common/clock"
	"quote-service/internal/common/config"

	"github.com/gin-gonic/gin"
)

var publicEndpoints = []string{"/health", "/send-quote", DownloadRoute + ":name", "/metrics"}

type InfoHandler struct {
	name    string
	version string
	clock   clock.Clock
}

func NewInfoHandler(cfg *config.Config, clk clock.Clock) *InfoHandler {
	return &InfoHandler{name: cfg.App.Name, version: cfg.App.Version, clock: clk}
}

func (h *InfoHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":      h.name,
		"version":   h.version,
		"status":    "running",
		"timestamp": h.clock.Now().UTC().Format(time.RFC3339),
		"endpoints": publicEndpoints,
	})
}
