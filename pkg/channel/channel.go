// Package channel adapts outbound delivery vendors (FCM, SMS gateway,
// WhatsApp gateway, SendGrid) behind small single-method interfaces.
package channel

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured is returned when vendor credentials are missing.
	ErrNotConfigured = errors.New("channel not configured")
	// ErrInvalidToken is returned by push senders for unregistered or malformed device tokens.
	ErrInvalidToken = errors.New("invalid device token")
	// ErrNoAddress is returned when the recipient has nothing to deliver to.
	ErrNoAddress = errors.New("recipient has no address for channel")
)

// PushSender delivers a mobile push notification.
type PushSender interface {
	SendPush(ctx context.Context, token, title, body string, data map[string]string) error
}

// SMSSender delivers a text message. templateID may be empty.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message, templateID string) error
}

// WhatsAppSender delivers a WhatsApp message.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, phone, message string) error
}

// EmailSender delivers a plain text email.
type EmailSender interface {
	SendEmail(ctx context.Context, address, subject, body string) error
}

// Set bundles one sender per channel.
type Set struct {
	Push     PushSender
	SMS      SMSSender
	WhatsApp WhatsAppSender
	Email    EmailSender
}

type unconfigured struct{}

// Unconfigured returns a sender for every channel that always fails with ErrNotConfigured.
func Unconfigured() Set {
	u := unconfigured{}
	return Set{Push: u, SMS: u, WhatsApp: u, Email: u}
}

func (unconfigured) SendPush(context.Context, string, string, string, map[string]string) error {
	return ErrNotConfigured
}

func (unconfigured) SendSMS(context.Context, string, string, string) error { return ErrNotConfigured }

func (unconfigured) SendWhatsApp(context.Context, string, string) error { return ErrNotConfigured }

func (unconfigured) SendEmail(context.Context, string, string, string) error {
	return ErrNotConfigured
}
