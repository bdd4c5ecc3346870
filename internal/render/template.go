package render

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "quote-service/internal/common/errors"
	"quote-service/internal/common/logger"
	"quote-service/internal/models"
)

const (
	defaultTemplateCacheTTL = 5 * time.Minute
	defaultCompanyName      = "Bedouielec Transformateurs"
	defaultCurrency         = "TND"
)

var defaultTemplateNames = []string{"devis-pdf.html", "devis-pdf.tmpl"}

var fallbackTemplate = template.Must(template.New("fallback").Parse(
	`<!doctype html><html><head><meta charset="utf-8"/><title>Devis</title></head>` +
		`<body><h1>Devis</h1><p>Client: {{.Name}} - {{.Email}} - {{.Phone}}</p></body></html>`))

var emailTemplate = template.Must(template.New("email").Parse(`<!doctype html>
<html><head><meta charset="utf-8"/><title>Devis</title></head>
<body style="font-family:Arial,Helvetica,sans-serif;color:#222">
{{if .ForCustomer}}<p>Bonjour {{.Name}},</p>
<p>Merci pour votre demande. Le montant de votre devis est de <strong>{{.Total}} {{.Currency}}</strong>.{{if .HasAttachment}} Vous le trouverez en pièce jointe.{{end}}</p>
{{else}}<p>Nouvelle demande de devis de <strong>{{.Name}}</strong> ({{.Email}}, {{.Phone}}{{if .Company}}, {{.Company}}{{end}}).</p>
<p>Montant total : <strong>{{.Total}} {{.Currency}}</strong> pour {{.ItemCount}} article(s).</p>
{{if .Message}}<p>Message : {{.Message}}</p>{{end}}{{end}}
{{if not .HasAttachment}}<p>Le PDF n'a pas pu être généré{{if .Items}} ; le détail de la demande figure ci-dessous{{end}}.</p>{{end}}
{{if .Items}}<table cellpadding="6" style="border-collapse:collapse;border:1px solid #ccc">
<thead><tr><th align="left">Produit</th><th align="right">Quantité</th><th align="right">Prix unitaire</th><th align="right">Total</th></tr></thead>
<tbody>{{range .Items}}<tr><td>{{.Name}}</td><td align="right">{{.Quantity}}</td><td align="right">{{.UnitPrice}} {{$.Currency}}</td><td align="right">{{.LineTotal}} {{$.Currency}}</td></tr>
{{end}}</tbody></table>{{end}}
{{if .DownloadURL}}<p><a href="{{.DownloadURL}}">Télécharger le devis (PDF)</a></p>{{end}}
<p>{{.CompanyName}}</p>
</body></html>`))

// TemplateConfig locates the quote template and fills the company fields.
type TemplateConfig struct {
	// TemplatePath is PDF_TEMPLATE_PATH: absolute, or relative to the working
	// directory, app/ or backend/.
	TemplatePath string
	// SearchDirs are the directories holding templates/devis-pdf.*. Defaults to the working directory.
	SearchDirs  []string
	CompanyName string
	Currency    string
	CacheTTL    time.Duration
}

// TemplateData is what the quote template sees.
type TemplateData struct {
	Reference   string
	Name        string
	Email       string
	Phone       string
	Company     string
	Message     string
	Items       []ItemRow
	Total       string
	TotalValue  float64
	Currency    string
	CompanyName string
	Date        string
}

type ItemRow struct {
	Index     int
	Name      string
	Quantity  string
	UnitPrice string
	LineTotal string
}

// EmailData is what the email body template sees.
type EmailData struct {
	Name          string
	Email         string
	Phone         string
	Company       string
	Message       string
	Total         string
	Currency      string
	ItemCount     int
	Items         []ItemRow
	DownloadURL   string
	CompanyName   string
	ForCustomer   bool
	HasAttachment bool
}

type cachedTemplate struct {
	tmpl     *template.Template
	path     string
	loadedAt time.Time
}

// HTMLRenderer merges quote requests into the HTML template.
type HTMLRenderer struct {
	config TemplateConfig
	logger logger.Logger

	mu    sync.RWMutex
	cache *cachedTemplate
	now   func() time.Time
}

func NewHTMLRenderer(cfg TemplateConfig, log logger.Logger) *HTMLRenderer {
	if cfg.CompanyName == "" {
		cfg.CompanyName = defaultCompanyName
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultTemplateCacheTTL
	}
	if len(cfg.SearchDirs) == 0 {
		if wd, err := os.Getwd(); err == nil {
			cfg.SearchDirs = []string{wd}
		}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &HTMLRenderer{config: cfg, logger: log, now: time.Now}
}

func (r *HTMLRenderer) CompanyName() string { return r.config.CompanyName }
func (r *HTMLRenderer) Currency() string    { return r.config.Currency }

// CandidatePaths lists template locations in lookup order.
func (r *HTMLRenderer) CandidatePaths() []string {
	var out []string
	if p := r.config.TemplatePath; p != "" {
		if filepath.IsAbs(p) {
			out = append(out, p)
		} else {
			for _, dir := range r.config.SearchDirs {
				out = append(out,
					filepath.Join(dir, p),
					filepath.Join(dir, "app", p),
					filepath.Join(dir, "backend", p),
				)
			}
		}
	}
	for _, dir := range r.config.SearchDirs {
		for _, name := range defaultTemplateNames {
			out = append(out,
				filepath.Join(dir, "templates", name),
				filepath.Join(dir, "backend", "templates", name),
				filepath.Join(dir, "app", "templates", name),
			)
		}
	}
	return out
}

// RenderHTML never fails: a missing or broken template yields the inline fallback document.
func (r *HTMLRenderer) RenderHTML(reference string, req *models.QuoteRequest, total float64) string {
	data := r.buildData(reference, req, total)

	tmpl, path, err := r.loadTemplate()
	if err != nil {
		r.logger.Warn("Quote template unavailable, using fallback HTML", map[string]interface{}{
			"error": err.Error(),
		})
		return r.fallback(data)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		r.logger.Warn("Quote template failed to render, using fallback HTML", map[string]interface{}{
			"template": path,
			"error":    err.Error(),
		})
		return r.fallback(data)
	}
	return buf.String()
}

// RenderEmail builds the body of an admin or customer email.
func (r *HTMLRenderer) RenderEmail(data EmailData) (string, error) {
	if data.Currency == "" {
		data.Currency = r.config.Currency
	}
	if data.CompanyName == "" {
		data.CompanyName = r.config.CompanyName
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email body: %w", err)
	}
	return buf.String(), nil
}

func (r *HTMLRenderer) fallback(data TemplateData) string {
	var buf bytes.Buffer
	if err := fallbackTemplate.Execute(&buf, data); err != nil {
		return "<!doctype html><html><body><h1>Devis</h1></body></html>"
	}
	return buf.String()
}

// ItemRows formats the request's line items for the quote and email templates.
func ItemRows(req *models.QuoteRequest) []ItemRow {
	items := make([]ItemRow, 0, len(req.Products))
	for i, item := range req.Products {
		items = append(items, ItemRow{
			Index:     i + 1,
			Name:      item.Product.Name,
			Quantity:  FormatAmount(item.Quantity.Value),
			UnitPrice: FormatAmount(item.Product.Price.Value),
			LineTotal: FormatAmount(LineTotal(item)),
		})
	}
	return items
}

func (r *HTMLRenderer) buildData(reference string, req *models.QuoteRequest, total float64) TemplateData {
	items := ItemRows(req)
	return TemplateData{
		Reference:   reference,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Company:     req.Company,
		Message:     req.Message,
		Items:       items,
		Total:       FormatAmount(total),
		TotalValue:  total,
		Currency:    r.config.Currency,
		CompanyName: r.config.CompanyName,
		Date:        r.now().Format("02/01/2006"),
	}
}

func (r *HTMLRenderer) loadTemplate() (*template.Template, string, error) {
	r.mu.RLock()
	if c := r.cache; c != nil && r.now().Sub(c.loadedAt) < r.config.CacheTTL {
		r.mu.RUnlock()
		return c.tmpl, c.path, nil
	}
	r.mu.RUnlock()

	candidates := r.CandidatePaths()
	for _, p := range candidates {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		tmpl, err := template.New(filepath.Base(p)).Funcs(templateFuncs).ParseFiles(p)
		if err != nil {
			return nil, p, fmt.Errorf("parse template %s: %w", p, err)
		}

		r.mu.Lock()
		r.cache = &cachedTemplate{tmpl: tmpl, path: p, loadedAt: r.now()}
		r.mu.Unlock()

		r.logger.Debug("Quote template loaded", map[string]interface{}{"template": p})
		return tmpl, p, nil
	}

	return nil, "", apperrors.NewTemplateNotFoundError(candidates)
}

var templateFuncs = template.FuncMap{
	"amount": FormatAmount,
}
