package channel

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-api/pkg/config"
)

// NewSet wires senders for the configured driver. With the live driver each
// vendor whose credentials are missing is replaced by an ErrNotConfigured
// sender so dispatch degrades per channel instead of failing startup.
func NewSet(ctx context.Context, cfg *config.Config, logger *zap.Logger) Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := cfg.Notifications
	if n.Driver != config.NotifyDriverLive {
		logger.Info("notification driver: console")
		return NewConsole(logger.Named("console")).Set()
	}

	set := Unconfigured()
	client := &http.Client{Timeout: n.Timeout}

	if sms := NewHTTPSMSSender(n.SMS, client); sms.Configured() {
		set.SMS = sms
	} else {
		logger.Warn("sms gateway not configured")
	}
	if wa := NewHTTPWhatsAppSender(n.WhatsApp, client); wa.Configured() {
		set.WhatsApp = wa
	} else {
		logger.Warn("whatsapp gateway not configured")
	}
	if mail := NewSendgridSender(n.Email, cfg.InstituteName, ""); mail.Configured() {
		set.Email = mail
	} else {
		logger.Warn("sendgrid not configured")
	}

	push, err := NewFCMSender(ctx, n.Push)
	switch {
	case err == nil:
		set.Push = push
	case errors.Is(err, ErrNotConfigured):
		logger.Warn("firebase push not configured")
	default:
		logger.Error("firebase push init failed", zap.Error(err))
	}
	return set
}
