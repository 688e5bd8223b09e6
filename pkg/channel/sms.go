package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/sma-fee-api/pkg/config"
)

const placeholderSMSURL = "YOUR_THIRD_PARTY_SMS_API_ENDPOINT_URL"

// HTTPSMSSender calls a query-string SMS gateway
// (GET ?userid=&password=&mobile=&msg=[&senderid=][&templateid=]).
type HTTPSMSSender struct {
	cfg    config.SMSConfig
	client *http.Client
}

// NewHTTPSMSSender builds a gateway client. client may be nil.
func NewHTTPSMSSender(cfg config.SMSConfig, client *http.Client) *HTTPSMSSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSMSSender{cfg: cfg, client: client}
}

// Configured reports whether the gateway URL and credentials are present.
func (s *HTTPSMSSender) Configured() bool {
	return s.cfg.APIURL != "" && s.cfg.APIURL != placeholderSMSURL &&
		s.cfg.UserID != "" && s.cfg.Password != ""
}

// SendSMS implements SMSSender.
func (s *HTTPSMSSender) SendSMS(ctx context.Context, phone, message, templateID string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(phone) == "" {
		return ErrNoAddress
	}

	endpoint, err := url.Parse(s.cfg.APIURL)
	if err != nil {
		return fmt.Errorf("parse sms api url: %w", err)
	}
	q := endpoint.Query()
	q.Set("userid", s.cfg.UserID)
	q.Set("password", s.cfg.Password)
	q.Set("mobile", phone)
	q.Set("msg", message)
	if s.cfg.SenderID != "" {
		q.Set("senderid", s.cfg.SenderID)
	}
	if templateID == "" {
		templateID = s.cfg.TemplateID
	}
	if templateID != "" {
		q.Set("templateid", templateID)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		// the request URL carries the gateway password; keep it out of outcomes and logs
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("send sms to %s: %w", endpoint.Host, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 100))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
