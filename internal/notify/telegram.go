package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boothbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender is the subset of the bot API used for admin pings.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts short notices into the admin chats.
type TelegramNotifier struct {
	bot     TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewTelegramNotifier(token string, chatIDs []int64, debug bool, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = debug
	logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(chatIDs)).Msg("Telegram notifier authorized")
	return NewTelegramNotifierWithSender(bot, chatIDs, logger), nil
}

func NewTelegramNotifierWithSender(bot TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, logger: logger}
}

// NotifyAdmins sends text to every configured chat. A failing chat does not
// stop delivery to the others.
func (n *TelegramNotifier) NotifyAdmins(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// AdminText formats a one-message summary of an appointment change.
func AdminText(headline string, appt *models.Appointment, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	b.WriteString(headline)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s (%s)\n", appt.Day, appt.Time, appt.AppointmentDate.In(loc).Format("02.01.2006"))
	b.WriteString(appt.Name)
	if appt.Company != "" {
		b.WriteString(", " + appt.Company)
	}
	b.WriteString("\n")
	b.WriteString(appt.Email + " / " + appt.Phone + "\n")
	b.WriteString("Status: " + string(appt.Status))
	return b.String()
}
