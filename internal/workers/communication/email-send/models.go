package emailsend

import (
	"context"
	"time"

	"quote-service/internal/common/logger"
)

type Input struct {
	// From defaults to Config.DefaultFrom.
	From        string                 `json:"from,omitempty"`
	FromName    string                 `json:"fromName,omitempty"`
	To          string                 `json:"to"`
	Subject     string                 `json:"subject"`
	Body        string                 `json:"body"`
	IsHTML      bool                   `json:"isHtml"`
	Attachments []Attachment           `json:"attachments,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"` // Base64 encoded in JSON
}

type Output struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	MessageID string    `json:"messageId,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	SentAt    time.Time `json:"sentAt,omitempty"`
}

// Sender delivers one individually addressed message.
type Sender interface {
	Execute(ctx context.Context, input *Input) (*Output, error)
	TestConnection(ctx context.Context) error
}

type ServiceDependencies struct {
	Logger logger.Logger
}
