package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"quote-service/internal/common/logger"
	"quote-service/internal/common/metrics"
)

// ErrEmptyPDF is returned when the browser produced no bytes.
var ErrEmptyPDF = errors.New("render: browser returned an empty PDF")

const (
	defaultLoadTimeout = 30 * time.Second
	versionTimeout     = 10 * time.Second

	// A4 in inches, 10mm margins.
	paperWidthIn  = 8.27
	paperHeightIn = 11.69
	marginIn      = 0.3937
	printScale    = 0.8
)

// PDFEngine turns a complete HTML document into PDF bytes.
type PDFEngine interface {
	Render(ctx context.Context, html string) ([]byte, error)
	Version(ctx context.Context) (string, error)
}

type ChromeConfig struct {
	// ExecPath is CHROME_BIN. Empty lets chromedp find a browser on PATH.
	ExecPath    string
	LoadTimeout time.Duration
}

// ChromeEngine renders PDFs with a headless Chrome driven over the DevTools protocol.
// Every call launches its own browser process bound to the caller's context.
type ChromeEngine struct {
	config ChromeConfig
	logger logger.Logger
}

func NewChromeEngine(cfg ChromeConfig, log logger.Logger) *ChromeEngine {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ChromeEngine{config: cfg, logger: log}
}

func (e *ChromeEngine) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if e.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.config.ExecPath))
	}
	return opts
}

func (e *ChromeEngine) Render(ctx context.Context, html string) ([]byte, error) {
	start := time.Now()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, e.allocatorOptions()...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, e.config.LoadTimeout)
	defer cancelTimeout()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	var pdf []byte
	err := chromedp.Run(taskCtx,
		chromedp.EmulateViewport(1920, 1080, chromedp.EmulateScale(2)),
		chromedp.Navigate(dataURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPaperWidth(paperWidthIn).
				WithPaperHeight(paperHeightIn).
				WithMarginTop(marginIn).
				WithMarginBottom(marginIn).
				WithMarginLeft(marginIn).
				WithMarginRight(marginIn).
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithScale(printScale).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)

	elapsed := time.Since(start)
	if err != nil {
		metrics.PDFRenderDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
		return nil, fmt.Errorf("chrome print to pdf: %w", err)
	}
	if len(pdf) == 0 {
		metrics.PDFRenderDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
		return nil, ErrEmptyPDF
	}

	metrics.PDFRenderDuration.WithLabelValues("success").Observe(elapsed.Seconds())
	e.logger.Debug("PDF rendered", map[string]interface{}{
		"bytes":      len(pdf),
		"durationMs": elapsed.Milliseconds(),
	})
	return pdf, nil
}

// Version starts a browser just long enough to read its product string.
func (e *ChromeEngine) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, e.allocatorOptions()...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var product string
	err := chromedp.Run(taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, p, _, _, _, err := browser.GetVersion().Do(ctx)
		product = p
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("chrome version: %w", err)
	}
	return product, nil
}
