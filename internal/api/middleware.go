// internal/api/middleware.go
package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"quote-service/internal/common/errors"
	"quote-service/internal/common/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAPIKey    = "X-API-Key"

	requestIDKey = "request_id"

	// DefaultBodyLimit matches the JSON limit of the quote form (2 MiB).
	DefaultBodyLimit int64 = 2 << 20
)

// RequestID reuses an incoming X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(HeaderRequestID, requestID)
		c.Set(requestIDKey, requestID)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Recovery turns a handler panic into a 500 JSON answer.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("Panic recovered", map[string]interface{}{
					"panic":      rec,
					"request_id": GetRequestID(c),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"stack":      string(debug.Stack()),
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success":    false,
					"error":      "Erreur interne",
					"code":       errors.ErrCodeInternal,
					"request_id": GetRequestID(c),
				})
			}
		}()
		c.Next()
	}
}

// RequestLogger logs one line per request, at a level picked from the status.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"request_id": GetRequestID(c),
		}

		switch {
		case status >= 500:
			log.Error("Request completed", fields)
		case status >= 400:
			log.Warn("Request completed", fields)
		default:
			log.Info("Request completed", fields)
		}
	}
}

// APIKey guards the intake route. Both sides are trimmed so a trailing newline
// in an env file does not lock clients out.
func APIKey(serverKey string, log logger.Logger) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(serverKey))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			log.Error("API_KEY is not configured, refusing quote intake", nil)
			abortWithError(c, errors.NewAPIKeyNotConfiguredError())
			return
		}

		provided := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			masked := "(empty)"
			if provided != "" {
				masked = logger.MaskSecret(provided)
			}
			log.Warn("Invalid API key", map[string]interface{}{
				"key":        masked,
				"client_ip":  c.ClientIP(),
				"request_id": GetRequestID(c),
			})
			abortWithError(c, errors.NewUnauthorizedError())
			return
		}
		c.Next()
	}
}

// BodyLimit caps the request body. Declared oversize bodies are refused
// up front; chunked ones fail when the handler reads past the limit.
func BodyLimit(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			abortWithError(c, errors.NewBodyTooLargeError(limit))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Set(bodyLimitKey, limit)
		c.Next()
	}
}

const bodyLimitKey = "body_limit"

// CORS allows the configured origins, any *.onrender.com or *.vercel.app
// origin and, outside production, localhost and private network addresses.
func CORS(allowed []string, production bool, log logger.Logger) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowOriginFunc = OriginPolicy(allowed, production, log)
	cfg.AllowCredentials = true
	cfg.AddAllowHeaders(HeaderAPIKey, HeaderRequestID)
	cfg.AddExposeHeaders(HeaderRequestID, "Content-Disposition")
	log.Info("CORS middleware initialized", map[string]interface{}{"allowedOrigins": allowed})
	return cors.New(cfg)
}

// OriginPolicy returns the origin predicate used by CORS.
func OriginPolicy(allowed []string, production bool, log logger.Logger) func(origin string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(origin string) bool {
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			log.Warn("CORS origin blocked", map[string]interface{}{"origin": origin})
			return false
		}
		host := strings.ToLower(u.Hostname())

		if strings.HasSuffix(host, ".onrender.com") || strings.HasSuffix(host, ".vercel.app") {
			return true
		}
		if !production && isLocalHost(host) {
			return true
		}

		log.Warn("CORS origin blocked", map[string]interface{}{"origin": origin})
		return false
	}
}

func isLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() != nil && (ip.IsLoopback() || ip.IsPrivate())
}
