package notify

import (
	"context"

	"boothbook/internal/logging"
	"boothbook/internal/models"

	"github.com/rs/zerolog"
)

// LogMailer only logs outgoing mail. Used in development.
type LogMailer struct {
	logger *zerolog.Logger
}

func NewLogMailer(logger *zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg models.EmailMessage) error {
	m.logger.Info().
		Str("to", logging.MaskEmail(msg.To)).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("Email (log provider)")
	return nil
}
