package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"boothbook/internal/config"
	"boothbook/internal/models"

	"github.com/emersion/go-ical"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testAppointment() *models.Appointment {
	return &models.Appointment{
		ID:              "appt-1",
		Day:             "friday",
		Time:            "10:00",
		AppointmentDate: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		Name:            "Ada <Lovelace>",
		Phone:           "+49 30 1234567",
		Email:           "ada@example.com",
		Company:         "Engines Ltd",
		Status:          models.StatusConfirmed,
	}
}

func testSettings() models.Settings {
	return models.Settings{
		EventName:    "Hannover Messe",
		Location:     "Hall 7, Booth B12",
		CompanyName:  "Acme",
		AdminEmail:   "admin@example.com",
		ContactEmail: "booth@example.com",
	}
}

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	c, err := NewComposer(ComposerConfig{
		PublicBaseURL: "https://book.example.com/",
		Location:      loc,
		SlotDuration:  30 * time.Minute,
		Organizer:     "booth@example.com",
	})
	require.NoError(t, err)
	return c
}

func TestComposer_Kinds(t *testing.T) {
	c := newTestComposer(t)
	appt := testAppointment()

	tests := []struct {
		kind        string
		to          string
		subject     string
		attachments int
	}{
		{KindReceived, "ada@example.com", "Your appointment request for Hannover Messe", 0},
		{KindConfirmed, "ada@example.com", "Appointment confirmed: Hannover Messe", 1},
		{KindCancelled, "ada@example.com", "Appointment cancelled: Hannover Messe", 1},
		{KindRejected, "ada@example.com", "Appointment request declined: Hannover Messe", 0},
		{KindReminder, "ada@example.com", "Reminder: your appointment tomorrow at Hannover Messe", 0},
		{KindAdminNew, "admin@example.com", "New appointment request", 0},
		{KindAdminCancelled, "admin@example.com", "Appointment cancelled by customer", 0},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			msg, err := c.Compose(tt.kind, appt, testSettings())
			require.NoError(t, err)
			assert.Equal(t, tt.to, msg.To)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Len(t, msg.Attachments, tt.attachments)
			assert.Contains(t, msg.Text, "Friday, 14 Mar 2025, 10:00 CET")
			assert.NotEmpty(t, msg.HTML)
		})
	}
}

func TestComposer_EscapesHTMLAndLinks(t *testing.T) {
	c := newTestComposer(t)
	msg, err := c.Compose(KindReceived, testAppointment(), testSettings())
	require.NoError(t, err)

	assert.Contains(t, msg.HTML, "Ada &lt;Lovelace&gt;")
	assert.NotContains(t, msg.HTML, "<Lovelace>")
	assert.Contains(t, msg.Text, "https://book.example.com/appointment/appt-1")
}

func TestComposer_Errors(t *testing.T) {
	c := newTestComposer(t)

	_, err := c.Compose("bogus", testAppointment(), testSettings())
	assert.Error(t, err)

	settings := testSettings()
	settings.AdminEmail = ""
	_, err = c.Compose(KindAdminNew, testAppointment(), settings)
	assert.Error(t, err)

	_, err = c.Compose(KindReceived, nil, settings)
	assert.Error(t, err)
}

func TestBuildInvite(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := BuildInvite(testAppointment(), testSettings(), InviteOptions{
		Duration:  30 * time.Minute,
		Organizer: "booth@example.com",
		Now:       now,
	})
	require.NoError(t, err)

	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)
	assert.Equal(t, "REQUEST", cal.Props.Get(ical.PropMethod).Value)

	var events []ical.Event
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent {
			events = append(events, ical.Event{Component: child})
		}
	}
	require.Len(t, events, 1)
	ev := events[0]

	assert.Equal(t, "appt-1@boothbook", ev.Props.Get(ical.PropUID).Value)
	assert.Equal(t, "Hannover Messe - Acme", ev.Props.Get(ical.PropSummary).Value)
	location, err := ev.Props.Text(ical.PropLocation)
	require.NoError(t, err)
	assert.Equal(t, "Hall 7, Booth B12", location)

	start, err := ev.DateTimeStart(time.UTC)
	require.NoError(t, err)
	end, err := ev.DateTimeEnd(time.UTC)
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, 30*time.Minute, end.Sub(start))
	assert.Equal(t, "mailto:ada@example.com", ev.Props.Get(ical.PropAttendee).Value)
}

func TestInviteSummary(t *testing.T) {
	tests := []struct {
		name     string
		settings models.Settings
		want     string
	}{
		{name: "event and company", settings: models.Settings{EventName: "Expo", CompanyName: "Acme"}, want: "Expo - Acme"},
		{name: "event only", settings: models.Settings{EventName: "Expo"}, want: "Expo"},
		{name: "fallback", settings: models.Settings{}, want: "Appointment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inviteSummary(tt.settings))
		})
	}
}

func TestEncodeMIME(t *testing.T) {
	msg := models.EmailMessage{
		To:      "ada@example.com",
		Subject: "Termin bestätigt",
		HTML:    "<p>Hallo</p>",
		Text:    "Hallo",
		Attachments: []models.EmailAttachment{
			InviteAttachment([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), "REQUEST"),
		},
	}
	raw, err := EncodeMIME(FormatFrom("Acme Booth", "booth@example.com"), msg, time.Now())
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Termin bestätigt", subject)
	assert.Contains(t, parsed.Header.Get("From"), "booth@example.com")

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	var types []string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		types = append(types, strings.SplitN(part.Header.Get("Content-Type"), ";", 2)[0])
	}
	assert.Equal(t, []string{"multipart/alternative", "text/calendar"}, types)
}

func TestEncodeMIME_InvalidRecipient(t *testing.T) {
	_, err := EncodeMIME("a@example.com", models.EmailMessage{To: ""}, time.Now())
	assert.Error(t, err)
	_, err = EncodeMIME("a@example.com", models.EmailMessage{To: "not an address"}, time.Now())
	assert.Error(t, err)
}

func TestSMTPSender(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{
		From:     "booth@example.com",
		FromName: "Acme",
		SMTP:     config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"},
	})

	var gotAddr, gotFrom string
	var gotTo []string
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		assert.NotNil(t, a)
		assert.Contains(t, string(msg), "Subject: Hello")
		return nil
	}

	err := s.Send(context.Background(), models.EmailMessage{To: "ada@example.com", Subject: "Hello", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "booth@example.com", gotFrom)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)

	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }
	assert.Error(t, s.Send(context.Background(), models.EmailMessage{To: "ada@example.com", Subject: "x"}))
}

func TestLogMailer(t *testing.T) {
	logger := zerolog.Nop()
	assert.NoError(t, NewLogMailer(&logger).Send(context.Background(), models.EmailMessage{To: "a@b.c"}))
}

type mockTelegram struct {
	mock.Mock
}

func (m *mockTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegramNotifier(t *testing.T) {
	logger := zerolog.Nop()
	bot := new(mockTelegram)
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 1
	})).Return(tgbotapi.Message{}, nil).Once()
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 2
	})).Return(tgbotapi.Message{}, errors.New("blocked")).Once()

	n := NewTelegramNotifierWithSender(bot, []int64{1, 2}, &logger)
	err := n.NotifyAdmins(context.Background(), "hello")
	assert.ErrorContains(t, err, "chat 2")
	bot.AssertExpectations(t)
}

func TestAdminText(t *testing.T) {
	text := AdminText("New appointment", testAppointment(), time.UTC)
	assert.Contains(t, text, "New appointment\nfriday 10:00 (14.03.2025)")
	assert.Contains(t, text, "Engines Ltd")
	assert.Contains(t, text, "Status: confirmed")
}
