package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes outbound messages to the log instead of a gateway. It is
// the default delivery backend until SMTP and SMS providers are configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification-sender").Logger()}
}

func (s *LogSender) SendEmail(ctx context.Context, to, subject, body string) error {
	s.logger.Info().
		Str("channel", "email").
		Str("to", to).
		Str("subject", subject).
		Msg(body)
	return nil
}

func (s *LogSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info().
		Str("channel", "sms").
		Str("to", to).
		Msg(body)
	return nil
}
