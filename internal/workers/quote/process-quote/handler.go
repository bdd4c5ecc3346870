// internal/workers/quote/process-quote/handler.go
package processquote

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"quote-service/internal/common/errors"
	"quote-service/internal/common/logger"
	"quote-service/internal/models"
	"quote-service/internal/render"
	"quote-service/internal/token"
	emailsend "quote-service/internal/workers/communication/email-send"
	dispatchquote "quote-service/internal/workers/quote/dispatch-quote"
)

const TaskType = "process-quote"

type DocumentRenderer interface {
	RenderHTML(reference string, req *models.QuoteRequest, total float64) string
	RenderEmail(data render.EmailData) (string, error)
}

type Dispatcher interface {
	Execute(ctx context.Context, input *dispatchquote.Input) (*dispatchquote.Output, error)
}

type HandlerDependencies struct {
	Renderer   DocumentRenderer
	Engine     render.PDFEngine
	Storage    *render.DiskStorage
	Archiver   render.Archiver // optional
	Tokens     *token.Codec
	Dispatcher Dispatcher
	Logger     logger.Logger
}

// Handler runs the background stages for one accepted quote: total, HTML,
// PDF, storage, download token, email bodies and dispatch.
type Handler struct {
	config *Config
	deps   HandlerDependencies
	logger logger.Logger
}

func NewHandler(config *Config, deps HandlerDependencies) *Handler {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Handler{
		config: config,
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Handle has the queue.HandlerFunc signature.
func (h *Handler) Handle(ctx context.Context, job *models.Job) error {
	_, err := h.Execute(ctx, job)
	return err
}

// Execute only returns an error when dispatch could not run safely; every
// other failing stage is recorded in the output and the chain continues.
func (h *Handler) Execute(ctx context.Context, job *models.Job) (*Output, error) {
	log := h.logger.WithFields(map[string]interface{}{"jobId": job.ID})
	out := &Output{JobID: job.ID}
	req := &job.Request

	total := render.ComputeTotal(req.Products)
	out.Total = total
	out.record(StageTotal, StageStatusOK, nil)

	name := h.deps.Storage.NextName()
	document := h.deps.Renderer.RenderHTML(name, req, total)
	out.record(StageHTML, StageStatusOK, nil)

	pdf, err := h.deps.Engine.Render(ctx, document)
	if err != nil {
		stdErr := errors.NewPDFRenderFailedError(err)
		log.Error("PDF rendering failed, emails go out without attachment", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"error":     err.Error(),
		})
		out.record(StagePDF, StageStatusFailed, stdErr)
		pdf = nil
	} else {
		out.record(StagePDF, StageStatusOK, nil)
	}

	if pdf != nil {
		if _, err := h.deps.Storage.Save(name, pdf); err != nil {
			stdErr := errors.NewStorageFailedError(err)
			log.Error("Saving PDF failed", map[string]interface{}{"error": err.Error()})
			out.record(StageSave, StageStatusFailed, stdErr)
		} else {
			out.DocumentName = name
			out.record(StageSave, StageStatusOK, nil)
		}
	} else {
		out.record(StageSave, StageStatusSkipped, nil)
	}

	h.archive(ctx, log, out, pdf)

	if out.DocumentName != "" {
		tok, _, err := h.deps.Tokens.Issue(out.DocumentName)
		if err != nil {
			log.Error("Issuing download token failed", map[string]interface{}{"error": err.Error()})
			out.record(StageToken, StageStatusFailed, err)
		} else {
			out.DownloadURL = h.downloadURL(job.BaseURL, out.DocumentName, tok)
			out.record(StageToken, StageStatusOK, nil)
		}
	} else {
		out.record(StageToken, StageStatusSkipped, nil)
	}

	adminBody, customerBody := h.emailBodies(log, out, req, pdf != nil)

	var attachment *emailsend.Attachment
	if pdf != nil {
		attachment = &emailsend.Attachment{Filename: name, ContentType: "application/pdf", Content: pdf}
	}

	res, err := h.deps.Dispatcher.Execute(ctx, &dispatchquote.Input{
		Fingerprint:   job.Fingerprint,
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		Total:         total,
		Attachment:    attachment,
		AdminBody:     adminBody,
		CustomerBody:  customerBody,
	})
	if err != nil {
		out.record(StageDispatch, StageStatusFailed, err)
		return out, fmt.Errorf("dispatch quote %s: %w", job.ID, err)
	}
	out.Dispatch = res
	if res.Skipped {
		out.record(StageDispatch, StageStatusSkipped, fmt.Errorf("%s", res.Reason))
	} else {
		out.record(StageDispatch, StageStatusOK, nil)
	}

	log.Info("Quote processed", map[string]interface{}{
		"total":    total,
		"document": out.DocumentName,
		"pdf":      pdf != nil,
	})
	return out, nil
}

func (h *Handler) archive(ctx context.Context, log logger.Logger, out *Output, pdf []byte) {
	if h.deps.Archiver == nil || out.DocumentName == "" {
		out.record(StageArchive, StageStatusSkipped, nil)
		return
	}
	if err := h.deps.Archiver.Upload(ctx, out.DocumentName, pdf); err != nil {
		log.Warn("Archiving PDF failed", map[string]interface{}{
			"document": out.DocumentName,
			"error":    err.Error(),
		})
		out.record(StageArchive, StageStatusFailed, err)
		return
	}
	out.record(StageArchive, StageStatusOK, nil)
}

func (h *Handler) emailBodies(log logger.Logger, out *Output, req *models.QuoteRequest, hasPDF bool) (string, string) {
	base := render.EmailData{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Company:       req.Company,
		Message:       req.Message,
		Total:         render.FormatAmount(out.Total),
		ItemCount:     len(req.Products),
		Items:         render.ItemRows(req),
		DownloadURL:   out.DownloadURL,
		HasAttachment: hasPDF,
	}

	admin, err := h.deps.Renderer.RenderEmail(base)
	if err != nil {
		log.Warn("Admin email body failed to render", map[string]interface{}{"error": err.Error()})
		admin = plainBody(base)
	}

	customerData := base
	customerData.ForCustomer = true
	customer, cerr := h.deps.Renderer.RenderEmail(customerData)
	if cerr != nil {
		log.Warn("Customer email body failed to render", map[string]interface{}{"error": cerr.Error()})
		customer = plainBody(customerData)
	}

	if err != nil || cerr != nil {
		out.record(StageEmail, StageStatusFailed, firstErr(err, cerr))
	} else {
		out.record(StageEmail, StageStatusOK, nil)
	}
	return admin, customer
}

func (h *Handler) downloadURL(requestBase, name, tok string) string {
	base := h.config.PublicBaseURL
	if base == "" {
		base = strings.TrimRight(requestBase, "/")
	}
	return fmt.Sprintf("%s%s%s?token=%s", base, h.config.DownloadPath, url.PathEscape(name), url.QueryEscape(tok))
}

func plainBody(d render.EmailData) string {
	return fmt.Sprintf("<p>Devis %s : %s</p>", html.EscapeString(d.Name), html.EscapeString(d.Total))
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
