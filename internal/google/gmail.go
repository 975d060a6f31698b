package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"boothbook/internal/models"
	"boothbook/internal/notify"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender sends mail as the impersonated workspace user.
type GmailSender struct {
	service *gmail.Service
	from    string
	guard   *Guard
	now     func() time.Time
}

func NewGmailSender(ctx context.Context, client *http.Client, from string, guard *Guard) (*GmailSender, error) {
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return newGmailSender(srv, from, guard), nil
}

func newGmailSender(srv *gmail.Service, from string, guard *Guard) *GmailSender {
	return &GmailSender{service: srv, from: from, guard: guard, now: time.Now}
}

func (s *GmailSender) Send(ctx context.Context, msg models.EmailMessage) error {
	raw, err := notify.EncodeMIME(s.from, msg, s.now())
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	err = s.guard.Do(func() error {
		_, err := s.service.Users.Messages.
			Send("me", &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}
