// Package email delivers transactional mail through an external provider.
package email

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/pkg/config"
)

// SendRequest contains the data needed to send one email.
type SendRequest struct {
	To      []string
	From    string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
	Tags    map[string]string
}

// SendResult contains the response from the email provider.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender is implemented by every provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// NewSender picks the provider configured in cfg. Resend without an API key is
// a configuration error.
func NewSender(cfg config.NotificationsConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case "", config.ProviderNoop:
		return NewNoopSender(logger), nil
	case config.ProviderResend:
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("RESEND_API_KEY is required for the resend provider")
		}
		return NewResendSender(cfg.ResendAPIKey, cfg.From, cfg.ReplyTo, logger), nil
	}
	return nil, fmt.Errorf("unknown notifications provider %q", cfg.Provider)
}
