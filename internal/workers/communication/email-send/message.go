package emailsend

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

const base64LineLength = 76

func validateEmailAddresses(from, to string) error {
	if !isValidEmail(to) {
		return fmt.Errorf("invalid 'to' email address: %s", to)
	}
	if !isValidEmail(from) {
		return fmt.Errorf("invalid 'from' email address: %s", from)
	}
	return nil
}

func isValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(addr.Address, '@')
	return at > 0 && strings.Contains(addr.Address[at+1:], ".")
}

// buildEmailMessage renders a multipart/mixed message: one body part followed
// by one base64 part per attachment.
func buildEmailMessage(input *Input, from, fromName, messageID string, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	contentType := "text/plain; charset=UTF-8"
	if input.IsHTML {
		contentType = "text/html; charset=UTF-8"
	}
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, fmt.Errorf("create body part: %w", err)
	}
	if err := writeBase64(part, []byte(input.Body)); err != nil {
		return nil, err
	}

	for _, att := range input.Attachments {
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(ct, map[string]string{"name": att.Filename})},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, fmt.Errorf("create attachment part %s: %w", att.Filename, err)
		}
		if err := writeBase64(part, att.Content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var builder bytes.Buffer
	sender := &mail.Address{Name: fromName, Address: from}
	recipient := &mail.Address{Address: input.To}

	// Headers
	fmt.Fprintf(&builder, "From: %s\r\n", sender.String())
	fmt.Fprintf(&builder, "To: %s\r\n", recipient.String())
	fmt.Fprintf(&builder, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", input.Subject))
	fmt.Fprintf(&builder, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&builder, "Message-ID: %s\r\n", messageID)

	// MIME headers
	builder.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&builder, "Content-Type: multipart/mixed; boundary=%q\r\n", mw.Boundary())
	builder.WriteString("\r\n")

	builder.Write(body.Bytes())
	return builder.Bytes(), nil
}

func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 0 {
		n := base64LineLength
		if len(encoded) < n {
			n = len(encoded)
		}
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return fmt.Errorf("write base64 part: %w", err)
		}
		encoded = encoded[n:]
	}
	return nil
}

func generateMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(from, '@'); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
