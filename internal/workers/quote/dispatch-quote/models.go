package dispatchquote

import (
	emailsend "quote-service/internal/workers/communication/email-send"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"

	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

type Input struct {
	Fingerprint   string
	CustomerName  string
	CustomerEmail string
	Total         float64
	// Attachment is nil when the PDF could not be produced.
	Attachment   *emailsend.Attachment
	AdminBody    string
	CustomerBody string
}

type RecipientOutcome struct {
	Address string `json:"address"`
	Role    string `json:"role"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

type Output struct {
	// Skipped is true when nothing was attempted because the transport is unconfigured.
	Skipped  bool               `json:"skipped"`
	Reason   string             `json:"reason,omitempty"`
	Outcomes []RecipientOutcome `json:"outcomes"`
}

func (o *Output) Count(status string) int {
	n := 0
	for _, oc := range o.Outcomes {
		if oc.Status == status {
			n++
		}
	}
	return n
}
