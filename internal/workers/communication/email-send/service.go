package emailsend

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"quote-service/internal/common/errors"
	"quote-service/internal/common/logger"
)

// Service sends mail over SMTP. Port 465 uses implicit TLS, any other port
// upgrades with STARTTLS when the server offers it.
type Service struct {
	config *Config
	logger logger.Logger
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		config: config,
		logger: log,
	}
}

func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	if !s.config.Configured() {
		return nil, errors.NewSMTPNotConfiguredError()
	}

	from, fromName := s.sender(input)

	s.logger.Info("Executing email send", map[string]interface{}{
		"to":          input.To,
		"subject":     input.Subject,
		"from":        from,
		"attachments": len(input.Attachments),
	})

	if err := validateEmailAddresses(from, input.To); err != nil {
		return nil, errors.NewInvalidAddressError(err.Error())
	}

	messageID := generateMessageID(from)
	message, err := buildEmailMessage(input, from, fromName, messageID, time.Now())
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if err := s.sendSMTP(ctx, from, []string{input.To}, message); err != nil {
		return nil, errors.NewSMTPError(err)
	}

	s.logger.Info("Email sent successfully", map[string]interface{}{
		"to":        input.To,
		"messageId": messageID,
	})

	return &Output{
		Success:   true,
		Message:   "Email sent successfully",
		MessageID: messageID,
		Provider:  "SMTP",
		SentAt:    time.Now(),
	}, nil
}

func (s *Service) sender(input *Input) (string, string) {
	from := strings.TrimSpace(input.From)
	if from == "" {
		from = s.config.DefaultFrom
	}
	name := input.FromName
	if name == "" {
		name = s.config.FromName
	}
	return from, name
}

func (s *Service) sendSMTP(ctx context.Context, from string, to []string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before sending email: %w", err)
	}

	client, closeConn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer closeConn()

	if err := s.authenticate(client); err != nil {
		return err
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, addr := range to {
		if err = client.Rcpt(addr); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", addr, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// dial connects, applies the context deadline to the socket and negotiates TLS.
// The returned func releases the connection.
func (s *Service) dial(ctx context.Context) (*smtp.Client, func(), error) {
	addr := net.JoinHostPort(s.config.SMTPHost, strconv.Itoa(s.config.SMTPPort))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	if s.config.ImplicitTLS() {
		tlsConn := tls.Client(conn, s.tlsConfig())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			stop()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		stop()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to start SMTP session: %w", err)
	}
	release := func() {
		stop()
		_ = client.Close()
	}

	if !s.config.ImplicitTLS() {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(s.tlsConfig()); err != nil {
				release()
				return nil, nil, fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}
	return client, release, nil
}

func (s *Service) authenticate(client *smtp.Client) error {
	if s.config.SMTPUsername == "" || s.config.SMTPPassword == "" {
		return nil
	}
	if ok, _ := client.Extension("AUTH"); !ok {
		return nil
	}
	auth := smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	return nil
}

func (s *Service) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName: s.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}
}

// TestConnection opens a session, negotiates TLS and authenticates without sending anything.
func (s *Service) TestConnection(ctx context.Context) error {
	if !s.config.Configured() {
		return errors.NewSMTPNotConfiguredError()
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	client, closeConn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer closeConn()

	if err := s.authenticate(client); err != nil {
		return err
	}
	return client.Quit()
}
