package channel

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/noah-isme/sma-fee-api/pkg/config"
)

// messagingClient is the subset of *messaging.Client used here.
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender delivers push notifications through Firebase Cloud Messaging.
type FCMSender struct {
	client       messagingClient
	isTokenError func(error) bool
}

// NewFCMSender initialises a Firebase app from the configured credentials.
func NewFCMSender(ctx context.Context, cfg config.PushConfig) (*FCMSender, error) {
	if cfg.CredentialsFile == "" {
		return nil, ErrNotConfigured
	}
	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, appCfg, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &FCMSender{client: client, isTokenError: isFCMTokenError}, nil
}

func isFCMTokenError(err error) bool {
	return messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err)
}

// SendPush implements PushSender.
func (s *FCMSender) SendPush(ctx context.Context, token, title, body string, data map[string]string) error {
	if strings.TrimSpace(token) == "" {
		return ErrNoAddress
	}
	msg := &messaging.Message{
		Token:        token,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         data,
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		if s.isTokenError != nil && s.isTokenError(err) {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return fmt.Errorf("send push: %w", err)
	}
	return nil
}
