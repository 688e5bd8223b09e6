package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/pkg/channel"
)

type deviceTokenStore interface {
	ClearDeviceToken(ctx context.Context, userID, token string) error
}

// Notifier dispatches one notification request and reports per-delivery outcomes.
type Notifier interface {
	Notify(ctx context.Context, req models.NotifyRequest) models.NotificationResult
}

// NotificationService is the single dispatch path for every outbound
// message. Delivery problems become outcomes; Notify never fails.
type NotificationService struct {
	channels channel.Set
	tokens   deviceTokenStore
	metrics  *MetricsService
	timeout  time.Duration
	logger   *zap.Logger
}

// NewNotificationService constructs the dispatcher. Nil senders in channels
// behave as unconfigured.
func NewNotificationService(channels channel.Set, tokens deviceTokenStore, metrics *MetricsService, timeout time.Duration, logger *zap.Logger) *NotificationService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := channel.Unconfigured()
	if channels.Push == nil {
		channels.Push = fallback.Push
	}
	if channels.SMS == nil {
		channels.SMS = fallback.SMS
	}
	if channels.WhatsApp == nil {
		channels.WhatsApp = fallback.WhatsApp
	}
	if channels.Email == nil {
		channels.Email = fallback.Email
	}
	return &NotificationService{channels: channels, tokens: tokens, metrics: metrics, timeout: timeout, logger: logger}
}

type delivery struct {
	contact  models.Contact
	audience models.Audience
	title    string
	body     string
}

// Notify delivers req.Payload to every recipient, and to each recipient's
// guardian, on req.Channel.
func (s *NotificationService) Notify(ctx context.Context, req models.NotifyRequest) models.NotificationResult {
	deliveries := s.plan(req)
	outcomes := make([]models.Outcome, 0, len(deliveries))
	for _, d := range deliveries {
		outcomes = append(outcomes, s.deliver(ctx, req, d))
	}
	return models.NotificationResult{Status: models.SummariseOutcomes(outcomes), Outcomes: outcomes}
}

// plan expands recipients into deliveries, keeping the first occurrence of
// each user so one call never contacts the same person twice.
func (s *NotificationService) plan(req models.NotifyRequest) []delivery {
	seen := make(map[string]struct{})
	var out []delivery
	add := func(d delivery) {
		key := d.contact.UserID + "|" + string(req.Channel)
		if d.contact.UserID != "" {
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
		}
		out = append(out, d)
	}

	for _, r := range req.Recipients {
		if !req.GuardianOnly {
			add(delivery{contact: r.Contact, audience: models.AudiencePrimary, title: req.Payload.Title, body: req.Payload.Body})
		}
		if r.Guardian == nil {
			continue
		}
		title := req.Payload.GuardianTitle
		if title == "" {
			title = fmt.Sprintf("Re: %s - %s", r.Name, req.Payload.Title)
		}
		body := req.Payload.GuardianBody
		if body == "" {
			body = req.Payload.Body
		}
		add(delivery{contact: *r.Guardian, audience: models.AudienceGuardian, title: title, body: body})
	}
	return out
}

func (s *NotificationService) deliver(ctx context.Context, req models.NotifyRequest, d delivery) models.Outcome {
	outcome := models.Outcome{UserID: d.contact.UserID, Name: d.contact.Name, Audience: d.audience, Channel: req.Channel}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.send(callCtx, req, d)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		outcome.Status = models.DeliverySent
	case errors.Is(err, channel.ErrNotConfigured):
		outcome.Status = models.DeliveryNotConfigured
		outcome.Error = err.Error()
		elapsed = 0
	case errors.Is(err, channel.ErrNoAddress):
		outcome.Status = models.DeliverySkipped
		outcome.Error = err.Error()
		elapsed = 0
	default:
		outcome.Status = models.DeliveryFailed
		outcome.Error = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			outcome.Error = "delivery timed out"
		}
		if errors.Is(err, channel.ErrInvalidToken) {
			s.forgetToken(ctx, d.contact)
		}
		s.logger.Warn("notification delivery failed",
			zap.String("kind", string(req.Kind)),
			zap.String("channel", string(req.Channel)),
			zap.String("user_id", d.contact.UserID),
			zap.String("audience", string(d.audience)),
			zap.Error(err),
		)
	}

	s.metrics.RecordNotification(req.Kind, req.Channel, outcome.Status, elapsed)
	return outcome
}

func (s *NotificationService) send(ctx context.Context, req models.NotifyRequest, d delivery) error {
	c := d.contact
	switch req.Channel {
	case models.ChannelPush:
		if c.DeviceToken == "" {
			return channel.ErrNoAddress
		}
		return s.channels.Push.SendPush(ctx, c.DeviceToken, d.title, d.body, req.Payload.Data)
	case models.ChannelSMS:
		if c.PhoneNumber == "" {
			return channel.ErrNoAddress
		}
		return s.channels.SMS.SendSMS(ctx, c.PhoneNumber, d.body, req.Payload.TemplateID)
	case models.ChannelWhatsApp:
		if c.PhoneNumber == "" {
			return channel.ErrNoAddress
		}
		return s.channels.WhatsApp.SendWhatsApp(ctx, c.PhoneNumber, d.body)
	case models.ChannelEmail:
		if c.Email == "" {
			return channel.ErrNoAddress
		}
		return s.channels.Email.SendEmail(ctx, c.Email, d.title, d.body)
	default:
		return fmt.Errorf("unsupported channel %q", req.Channel)
	}
}

func (s *NotificationService) forgetToken(ctx context.Context, c models.Contact) {
	if s.tokens == nil {
		return
	}
	if err := s.tokens.ClearDeviceToken(ctx, c.UserID, c.DeviceToken); err != nil {
		s.logger.Warn("clear device token failed", zap.String("user_id", c.UserID), zap.Error(err))
		return
	}
	s.logger.Info("cleared stale device token", zap.String("user_id", c.UserID))
}
