// internal/api/download.go
package api

import (
	"net/http"
	"strconv"

	"quote-service/internal/common/errors"
	"quote-service/internal/common/logger"
	"quote-service/internal/common/metrics"
	"quote-service/internal/render"
	"quote-service/internal/token"

	"github.com/gin-gonic/gin"
)

// DownloadHandler serves generated PDFs to holders of a matching token.
type DownloadHandler struct {
	storage *render.DiskStorage
	tokens  *token.Codec
	logger  logger.Logger
}

func NewDownloadHandler(storage *render.DiskStorage, tokens *token.Codec, log logger.Logger) *DownloadHandler {
	return &DownloadHandler{
		storage: storage,
		tokens:  tokens,
		logger:  log.WithFields(map[string]interface{}{"handler": "download"}),
	}
}

func (h *DownloadHandler) Download(c *gin.Context) {
	name := c.Param("name")
	tok := c.Query("token")

	if tok == "" {
		h.fail(c, errors.NewTokenMissingError())
		return
	}
	if !render.IsBareName(name) {
		h.fail(c, errors.NewTokenInvalidError(nil))
		return
	}
	if _, err := h.tokens.VerifyFor(tok, name); err != nil {
		h.logger.Warn("Download token refused", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
		h.fail(c, errors.NewTokenInvalidError(err))
		return
	}

	path, _ := h.storage.Path(name)
	if !h.storage.Exists(name) {
		h.logger.Error("Requested PDF not found", map[string]interface{}{"path": path})
		h.fail(c, errors.NewFileNotFoundError(name))
		return
	}

	metrics.DownloadsServed.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	c.FileAttachment(path, name)
}

// Download errors answer in plain text, the link is opened by a browser.
func (h *DownloadHandler) fail(c *gin.Context, err *errors.StandardError) {
	status := err.HTTPStatus()
	metrics.DownloadsServed.WithLabelValues(strconv.Itoa(status)).Inc()
	c.String(status, err.Message)
}
