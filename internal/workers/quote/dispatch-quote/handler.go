// internal/workers/quote/dispatch-quote/handler.go
package dispatchquote

import (
	"context"
	"fmt"

	"quote-service/internal/common/errors"
	"quote-service/internal/common/logger"
	"quote-service/internal/common/metrics"
	"quote-service/internal/dedup"
	"quote-service/internal/render"
	emailsend "quote-service/internal/workers/communication/email-send"
)

const TaskType = "dispatch-quote"

// Dispatcher emails a rendered quote to the admin list and the customer, at
// most once per recipient for a given fingerprint.
type Dispatcher struct {
	config *Config
	store  dedup.Store
	sender emailsend.Sender
	logger logger.Logger
}

func NewDispatcher(config *Config, store dedup.Store, sender emailsend.Sender, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Dispatcher{
		config: config,
		store:  store,
		sender: sender,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// AdminSubject and CustomerSubject embed the customer name and the formatted total.
func (d *Dispatcher) AdminSubject(name string, total float64) string {
	return fmt.Sprintf("🔔 Nouvelle demande de devis - %s (%s %s)", name, render.FormatAmount(total), d.config.Currency)
}

func (d *Dispatcher) CustomerSubject(name string, total float64) string {
	return fmt.Sprintf("Votre devis - %s (%s %s)", name, render.FormatAmount(total), d.config.Currency)
}

func (d *Dispatcher) Execute(ctx context.Context, input *Input) (*Output, error) {
	log := d.logger.WithFields(map[string]interface{}{"fingerprint": shortFingerprint(input.Fingerprint)})

	if !d.config.Enabled || d.sender == nil {
		log.Warn("Mail transport not configured, skipping dispatch", nil)
		return &Output{Skipped: true, Reason: "mail transport not configured"}, nil
	}

	notified, err := d.store.NotifiedRecipients(ctx, input.Fingerprint)
	if err != nil {
		// Without the recipient set a send could repeat one; stop here.
		return nil, errors.NewStoreFailedError(err)
	}

	out := &Output{}
	admins := uniqueAddresses(d.config.AdminRecipients)
	isAdmin := make(map[string]struct{}, len(admins))

	for _, addr := range admins {
		isAdmin[addr] = struct{}{}
		if _, done := notified[addr]; done {
			out.Outcomes = append(out.Outcomes, RecipientOutcome{Address: addr, Role: RoleAdmin, Status: StatusSkipped, Reason: "already notified"})
			continue
		}
		out.Outcomes = append(out.Outcomes, d.send(ctx, log, input, addr, RoleAdmin))
	}

	if customer := dedup.NormalizeAddress(input.CustomerEmail); customer != "" {
		_, admin := isAdmin[customer]
		_, done := notified[customer]
		switch {
		case admin:
			out.Outcomes = append(out.Outcomes, RecipientOutcome{Address: customer, Role: RoleCustomer, Status: StatusSkipped, Reason: "customer is an admin recipient"})
		case done:
			out.Outcomes = append(out.Outcomes, RecipientOutcome{Address: customer, Role: RoleCustomer, Status: StatusSkipped, Reason: "already notified"})
		default:
			out.Outcomes = append(out.Outcomes, d.send(ctx, log, input, customer, RoleCustomer))
		}
	}

	if err := d.store.MarkCompleted(ctx, input.Fingerprint); err != nil {
		log.Error("Failed to record completed dispatch", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Dispatch finished", map[string]interface{}{
		"sent":    out.Count(StatusSent),
		"skipped": out.Count(StatusSkipped),
		"failed":  out.Count(StatusFailed),
	})
	return out, nil
}

func (d *Dispatcher) send(ctx context.Context, log logger.Logger, input *Input, addr, role string) RecipientOutcome {
	msg := &emailsend.Input{
		To:     addr,
		IsHTML: true,
	}
	if role == RoleAdmin {
		msg.Subject = d.AdminSubject(input.CustomerName, input.Total)
		msg.Body = input.AdminBody
	} else {
		msg.Subject = d.CustomerSubject(input.CustomerName, input.Total)
		msg.Body = input.CustomerBody
	}
	if input.Attachment != nil {
		msg.Attachments = []emailsend.Attachment{*input.Attachment}
	}

	if _, err := d.sender.Execute(ctx, msg); err != nil {
		metrics.EmailsSent.WithLabelValues(role, StatusFailed).Inc()
		log.Error("Email send failed", map[string]interface{}{
			"to":    addr,
			"role":  role,
			"error": err.Error(),
		})
		return RecipientOutcome{Address: addr, Role: role, Status: StatusFailed, Reason: err.Error()}
	}

	metrics.EmailsSent.WithLabelValues(role, StatusSent).Inc()
	if err := d.store.MarkNotified(ctx, input.Fingerprint, addr); err != nil {
		log.Error("Failed to record notified recipient", map[string]interface{}{
			"to":    addr,
			"error": err.Error(),
		})
	}
	return RecipientOutcome{Address: addr, Role: role, Status: StatusSent}
}

func uniqueAddresses(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, raw := range list {
		addr := dedup.NormalizeAddress(raw)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
