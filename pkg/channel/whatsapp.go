package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/noah-isme/sma-fee-api/pkg/config"
)

// HTTPWhatsAppSender posts {"to","message"} JSON to a WhatsApp gateway with a bearer token.
type HTTPWhatsAppSender struct {
	cfg    config.WhatsAppConfig
	client *http.Client
}

// NewHTTPWhatsAppSender builds a gateway client. client may be nil.
func NewHTTPWhatsAppSender(cfg config.WhatsAppConfig, client *http.Client) *HTTPWhatsAppSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPWhatsAppSender{cfg: cfg, client: client}
}

// Configured reports whether the gateway URL and token are present.
func (s *HTTPWhatsAppSender) Configured() bool {
	return s.cfg.APIURL != "" && s.cfg.Token != ""
}

type whatsAppMessage struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendWhatsApp implements WhatsAppSender.
func (s *HTTPWhatsAppSender) SendWhatsApp(ctx context.Context, phone, message string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(phone) == "" {
		return ErrNoAddress
	}

	body, err := json.Marshal(whatsAppMessage{To: phone, Message: message})
	if err != nil {
		return fmt.Errorf("encode whatsapp message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 100))
		return fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
