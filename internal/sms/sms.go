package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nalauth/server/internal/logger"
)

// ErrDeliveryFailed marks a provider failure. The challenge is already
// durable when delivery runs, so callers may treat this as non-fatal.
var ErrDeliveryFailed = errors.New("sms delivery failed")

// Sender delivers one-time codes. Implementations must not log the code.
type Sender interface {
	Send(ctx context.Context, phoneNumber, code string) error
}

// MockSender is the development sender: it records that a send happened
// (masked phone, no code) and always succeeds.
type MockSender struct {
	log *slog.Logger
}

// NewMockSender creates a mock sender.
func NewMockSender(log *slog.Logger) *MockSender {
	return &MockSender{log: log}
}

func (m *MockSender) Send(ctx context.Context, phoneNumber, code string) error {
	m.log.InfoContext(ctx, "mock sms send",
		slog.String("phone", logger.MaskPhone(phoneNumber)),
		slog.Int("code_length", len(code)),
	)
	return nil
}

// Config selects and configures the delivery provider.
type Config struct {
	Provider         string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// New creates the configured Sender.
func New(cfg Config, log *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockSender(log), nil
	case "twilio":
		return NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber), nil
	default:
		return nil, fmt.Errorf("unsupported sms provider %q", cfg.Provider)
	}
}
