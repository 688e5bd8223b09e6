package channel

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/noah-isme/sma-fee-api/pkg/config"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridSender delivers plain text email through the SendGrid v3 API.
type SendgridSender struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

// NewSendgridSender builds a sender. host overrides the API host when non-empty.
func NewSendgridSender(cfg config.EmailConfig, instituteName, host string) *SendgridSender {
	if host == "" {
		host = sendgridHost
	}
	prefix := ""
	if instituteName != "" {
		prefix = "[" + instituteName + "] "
	}
	return &SendgridSender{
		key:        cfg.SendgridAPIKey,
		host:       host,
		from:       sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		subjPrefix: prefix,
	}
}

// Configured reports whether an API key is present.
func (s *SendgridSender) Configured() bool { return s.key != "" }

// SendEmail implements EmailSender.
func (s *SendgridSender) SendEmail(ctx context.Context, address, subject, body string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(address) == "" {
		return ErrNoAddress
	}

	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + subject
	p.AddTos(sgmail.NewEmail("", address))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", body))

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid returned %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
