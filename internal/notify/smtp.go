package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"boothbook/internal/config"
	"boothbook/internal/models"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	addr     string
	auth     smtp.Auth
	from     string
	envelope string
	sendMail sendMailFunc
	now      func() time.Time
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	host := strings.TrimSpace(cfg.SMTP.Host)
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@boothbook.local"
	}

	var auth smtp.Auth
	if cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, host)
	}

	return &SMTPSender{
		addr:     host + ":" + strconv.Itoa(cfg.SMTP.Port),
		auth:     auth,
		from:     FormatFrom(cfg.FromName, from),
		envelope: from,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg models.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := EncodeMIME(s.from, msg, s.now())
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.sendMail(s.addr, s.auth, s.envelope, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
