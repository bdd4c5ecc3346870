// cmd/quote-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quote-service/internal/api"
	awsclient "quote-service/internal/common/aws"
	"quote-service/internal/common/clock"
	"quote-service/internal/common/config"
	"quote-service/internal/common/database"
	"quote-service/internal/common/logger"
	"quote-service/internal/common/observability"
	"quote-service/internal/dedup"
	"quote-service/internal/queue"
	"quote-service/internal/render"
	"quote-service/internal/token"

	es "quote-service/internal/workers/communication/email-send"
	dq "quote-service/internal/workers/quote/dispatch-quote"
	pq "quote-service/internal/workers/quote/process-quote"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting quote server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)
	if cfg.GeneratedSecret {
		zapLog.Warn("DOWNLOAD_TOKEN_SECRET is not set; using a per-process secret, download links will not survive a restart")
	}
	if cfg.API.Key == "" {
		zapLog.Error("API_KEY is not set; /send-quote will answer 500")
	}

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("OpenTelemetry metrics disabled", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.NewRealClock()

	// --- Duplicate store ---
	store, closeStore := buildStore(ctx, cfg, clk, log, zapLog)
	defer closeStore()

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	if mem, ok := store.(*dedup.MemoryStore); ok {
		go mem.Run(sweepCtx, cfg.Dedup.SweepInterval())
	}

	// --- Rendering ---
	storage := render.NewDiskStorage(cfg.PDF.StoragePath, clk)
	if err := storage.EnsureDir(); err != nil {
		zapLog.Fatal("PDF storage directory unavailable", zap.Error(err))
	}
	zapLog.Info("PDF storage ready", zap.String("dir", storage.Dir()))

	renderer := render.NewHTMLRenderer(render.TemplateConfig{
		TemplatePath: cfg.PDF.TemplatePath,
		CompanyName:  cfg.Company.Name,
		Currency:     cfg.Company.Currency,
	}, log)
	engine := render.NewChromeEngine(render.ChromeConfig{
		ExecPath:    cfg.Chrome.Bin,
		LoadTimeout: cfg.PDF.LoadTimeout(),
	}, log)

	var archiver render.Archiver
	if cfg.Minio.Enabled() {
		minioArchiver, err := render.NewMinioArchiver(cfg.Minio)
		if err != nil {
			zapLog.Fatal("minio archiver init failed", zap.Error(err))
		}
		err = retryWithBackoff(func() error {
			return minioArchiver.EnsureBucket(ctx)
		}, 5, 2*time.Second, zapLog, "MinIO bucket check")
		if err != nil {
			zapLog.Warn("PDF archive disabled", zap.Error(err))
		} else {
			archiver = minioArchiver
			zapLog.Info("PDF archive enabled", zap.String("bucket", cfg.Minio.Bucket))
		}
	}

	tokens, err := token.NewCodec([]byte(cfg.Download.TokenSecret), cfg.Download.TokenTTL(), clk)
	if err != nil {
		zapLog.Fatal("download token codec init failed", zap.Error(err))
	}

	// --- Delivery ---
	sender, transportReady := buildSender(ctx, cfg, log, zapLog)
	dispatcher := dq.NewDispatcher(dq.CreateConfigFromAppConfig(cfg, transportReady), store, sender, log)

	handler := pq.NewHandler(pq.CreateConfigFromAppConfig(cfg), pq.HandlerDependencies{
		Renderer:   renderer,
		Engine:     engine,
		Storage:    storage,
		Archiver:   archiver,
		Tokens:     tokens,
		Dispatcher: dispatcher,
		Logger:     log,
	})

	jobs := queue.New(handler.Handle, queue.Options{
		MaxDepth: cfg.Queue.MaxDepth,
		Recorder: obs,
	}, log)

	// --- HTTP ---
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Dependencies{
		Config:            cfg,
		Store:             store,
		Queue:             jobs,
		Storage:           storage,
		Tokens:            tokens,
		Engine:            engine,
		FingerprintSecret: []byte(cfg.Download.TokenSecret),
		Clock:             clk,
		Logger:            log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping intake...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		zapLog.Warn("Job queue did not drain before shutdown deadline", zap.Error(err))
	}
	stopSweeper()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("OpenTelemetry shutdown failed", zap.Error(err))
	}

	zapLog.Info("Quote server stopped")
}

// buildStore picks the duplicate store backend. The returned func releases it.
func buildStore(ctx context.Context, cfg *config.Config, clk clock.Clock, log logger.Logger, zapLog *zap.Logger) (dedup.Store, func()) {
	if cfg.Dedup.Backend != "redis" {
		zapLog.Info("Duplicate store: memory", zap.Duration("window", cfg.Duplicate.Window()))
		return dedup.NewMemoryStore(cfg.Duplicate.Window(), clk, log), func() {}
	}

	var redis *database.RedisClient
	err := retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	zapLog.Info("Duplicate store: redis", zap.String("address", cfg.Redis.Address))

	return dedup.NewRedisStore(redis.Client, cfg.Duplicate.Window()), func() {
		if err := redis.Close(); err != nil {
			zapLog.Warn("redis close failed", zap.Error(err))
		}
	}
}

// buildSender returns the configured mail transport and whether it can send.
// Connectivity is only logged; a transport that is down at boot may recover.
func buildSender(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger) (es.Sender, bool) {
	mailCfg := es.CreateConfigFromAppConfig(cfg)
	if !mailCfg.Configured() {
		zapLog.Warn("Mail transport not configured; quotes will be rendered but not emailed",
			zap.String("transport", mailCfg.Transport))
		return nil, false
	}
	if err := mailCfg.Validate(); err != nil {
		zapLog.Fatal("invalid mail configuration", zap.Error(err))
	}

	deps := es.ServiceDependencies{Logger: log}
	var sender es.Sender
	switch mailCfg.Transport {
	case es.TransportSES:
		client, err := awsclient.NewSESClient(ctx, mailCfg.SESRegion)
		if err != nil {
			zapLog.Fatal("SES client init failed", zap.Error(err))
		}
		sender = es.NewSESService(deps, client, mailCfg)
	default:
		sender = es.NewService(deps, mailCfg)
	}

	probeCtx, cancel := context.WithTimeout(ctx, mailCfg.Timeout)
	defer cancel()
	if err := sender.TestConnection(probeCtx); err != nil {
		zapLog.Warn("Mail transport unreachable at startup", zap.String("transport", mailCfg.Transport), zap.Error(err))
	} else {
		zapLog.Info("Mail transport ready", zap.String("transport", mailCfg.Transport))
	}
	return sender, true
}
