package emailsend

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"quote-service/internal/common/errors"
	"quote-service/internal/common/logger"
)

// SESAPI is the part of the SES client the transport needs.
type SESAPI interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
	GetSendQuota(ctx context.Context, params *ses.GetSendQuotaInput, optFns ...func(*ses.Options)) (*ses.GetSendQuotaOutput, error)
}

// SESService sends the same MIME message as Service through Amazon SES.
type SESService struct {
	client SESAPI
	config *Config
	logger logger.Logger
}

func NewSESService(deps ServiceDependencies, client SESAPI, config *Config) *SESService {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &SESService{client: client, config: config, logger: log}
}

func (s *SESService) Execute(ctx context.Context, input *Input) (*Output, error) {
	if !s.config.Configured() {
		return nil, errors.New(errors.ErrCodeSMTPNotConfigured, "Mail transport not configured", "SES_FROM and AWS_REGION are required")
	}

	from := strings.TrimSpace(input.From)
	if from == "" {
		from = s.config.DefaultFrom
	}
	fromName := input.FromName
	if fromName == "" {
		fromName = s.config.FromName
	}

	if err := validateEmailAddresses(from, input.To); err != nil {
		return nil, errors.NewInvalidAddressError(err.Error())
	}

	messageID := generateMessageID(from)
	raw, err := buildEmailMessage(input, from, fromName, messageID, time.Now())
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	out, err := s.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(from),
		Destinations: []string{input.To},
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		return nil, errors.NewSESError(err)
	}

	sesID := aws.ToString(out.MessageId)
	s.logger.Info("Email sent via SES", map[string]interface{}{
		"to":        input.To,
		"messageId": sesID,
	})

	return &Output{
		Success:   true,
		Message:   "Email sent successfully",
		MessageID: sesID,
		Provider:  "SES",
		SentAt:    time.Now(),
	}, nil
}

// TestConnection checks credentials by reading the account's send quota.
func (s *SESService) TestConnection(ctx context.Context) error {
	out, err := s.client.GetSendQuota(ctx, &ses.GetSendQuotaInput{})
	if err != nil {
		return errors.NewSESError(err)
	}
	s.logger.Debug("SES quota", map[string]interface{}{
		"max24h":    out.Max24HourSend,
		"sent24h":   out.SentLast24Hours,
		"maxPerSec": out.MaxSendRate,
	})
	return nil
}
