package channel

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Delivery is a message captured by Console.
type Delivery struct {
	Channel string
	To      string
	Title   string
	Body    string
}

// Console logs deliveries instead of calling vendors. It satisfies every
// sender interface and keeps what it sent for inspection.
type Console struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Delivery
}

// NewConsole builds a console sender.
func NewConsole(logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{logger: logger}
}

// Set returns c registered for every channel.
func (c *Console) Set() Set {
	return Set{Push: c, SMS: c, WhatsApp: c, Email: c}
}

// Sent returns a copy of the captured deliveries.
func (c *Console) Sent() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Delivery(nil), c.sent...)
}

func (c *Console) record(d Delivery) {
	c.mu.Lock()
	c.sent = append(c.sent, d)
	c.mu.Unlock()
	c.logger.Info("console delivery",
		zap.String("channel", d.Channel),
		zap.String("to", d.To),
		zap.String("title", d.Title),
		zap.String("body", d.Body),
	)
}

func (c *Console) SendPush(_ context.Context, token, title, body string, _ map[string]string) error {
	if token == "" {
		return ErrNoAddress
	}
	c.record(Delivery{Channel: "PUSH", To: token, Title: title, Body: body})
	return nil
}

func (c *Console) SendSMS(_ context.Context, phone, message, _ string) error {
	if phone == "" {
		return ErrNoAddress
	}
	c.record(Delivery{Channel: "SMS", To: phone, Body: message})
	return nil
}

func (c *Console) SendWhatsApp(_ context.Context, phone, message string) error {
	if phone == "" {
		return ErrNoAddress
	}
	c.record(Delivery{Channel: "WHATSAPP", To: phone, Body: message})
	return nil
}

func (c *Console) SendEmail(_ context.Context, address, subject, body string) error {
	if address == "" {
		return ErrNoAddress
	}
	c.record(Delivery{Channel: "EMAIL", To: address, Title: subject, Body: body})
	return nil
}
