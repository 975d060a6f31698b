package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"boothbook/internal/models"
)

// Message kinds produced by the Composer.
const (
	KindReceived       = "received"
	KindConfirmed      = "confirmed"
	KindCancelled      = "cancelled"
	KindRejected       = "rejected"
	KindReminder       = "reminder"
	KindAdminNew       = "admin_new"
	KindAdminCancelled = "admin_cancelled"
)

// ComposerConfig holds what every message needs besides the appointment.
type ComposerConfig struct {
	PublicBaseURL string
	Location      *time.Location
	SlotDuration  time.Duration
	Organizer     string
}

// Composer renders customer and admin emails.
type Composer struct {
	cfg  ComposerConfig
	html *htmltemplate.Template
	text *texttemplate.Template
	now  func() time.Time
}

type messageData struct {
	Appt     *models.Appointment
	Settings models.Settings
	When     string
	URL      string
	Event    string
}

func NewComposer(cfg ComposerConfig) (*Composer, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	html, err := htmltemplate.New("mail").Parse(htmlTemplates)
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.New("mail").Parse(textTemplates)
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Composer{cfg: cfg, html: html, text: text, now: time.Now}, nil
}

// Compose builds the message of the given kind. Admin kinds are addressed to
// settings.AdminEmail, all others to the customer.
func (c *Composer) Compose(kind string, appt *models.Appointment, settings models.Settings) (models.EmailMessage, error) {
	if appt == nil {
		return models.EmailMessage{}, fmt.Errorf("appointment is nil")
	}
	subject, ok := c.subject(kind, settings)
	if !ok {
		return models.EmailMessage{}, fmt.Errorf("unknown message kind %q", kind)
	}

	to := appt.Email
	if isAdminKind(kind) {
		to = settings.AdminEmail
		if to == "" {
			return models.EmailMessage{}, fmt.Errorf("admin email is not configured")
		}
	}

	data := messageData{
		Appt:     appt,
		Settings: settings,
		When:     c.FormatWhen(appt),
		URL:      c.cfg.PublicBaseURL + "/appointment/" + appt.ID,
		Event:    eventName(settings),
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := c.html.ExecuteTemplate(&htmlBuf, kind, data); err != nil {
		return models.EmailMessage{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	if err := c.text.ExecuteTemplate(&textBuf, kind, data); err != nil {
		return models.EmailMessage{}, fmt.Errorf("render %s text: %w", kind, err)
	}

	msg := models.EmailMessage{
		To:      to,
		Subject: subject,
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
	}

	if kind == KindConfirmed || kind == KindCancelled {
		method := "REQUEST"
		if kind == KindCancelled {
			method = "CANCEL"
		}
		invite, err := BuildInvite(appt, settings, InviteOptions{
			Duration:  c.cfg.SlotDuration,
			Organizer: c.cfg.Organizer,
			Method:    method,
			Now:       c.now(),
		})
		if err != nil {
			return models.EmailMessage{}, err
		}
		msg.Attachments = append(msg.Attachments, InviteAttachment(invite, method))
	}
	return msg, nil
}

// FormatWhen renders the appointment time in the event timezone.
func (c *Composer) FormatWhen(appt *models.Appointment) string {
	return appt.AppointmentDate.In(c.cfg.Location).Format("Monday, 02 Jan 2006, 15:04 MST")
}

func (c *Composer) subject(kind string, settings models.Settings) (string, bool) {
	name := eventName(settings)
	switch kind {
	case KindReceived:
		return "Your appointment request for " + name, true
	case KindConfirmed:
		return "Appointment confirmed: " + name, true
	case KindCancelled:
		return "Appointment cancelled: " + name, true
	case KindRejected:
		return "Appointment request declined: " + name, true
	case KindReminder:
		return "Reminder: your appointment tomorrow at " + name, true
	case KindAdminNew:
		return "New appointment request", true
	case KindAdminCancelled:
		return "Appointment cancelled by customer", true
	default:
		return "", false
	}
}

func isAdminKind(kind string) bool {
	return kind == KindAdminNew || kind == KindAdminCancelled
}

func eventName(settings models.Settings) string {
	if settings.EventName != "" {
		return settings.EventName
	}
	return "our booth"
}
