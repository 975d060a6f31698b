package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"boothbook/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// CalendarService books confirmed appointments into the organiser calendar.
type CalendarService struct {
	service         *calendar.Service
	calendarID      string
	duration        time.Duration
	timezone        string
	inviteAttendees bool
	guard           *Guard
	logger          *zerolog.Logger
}

// CalendarOptions configures event creation.
type CalendarOptions struct {
	CalendarID string
	Duration   time.Duration
	Timezone   string
	// Service accounts may only add attendees when impersonating a user.
	InviteAttendees bool
}

func NewCalendarService(ctx context.Context, client *http.Client, opts CalendarOptions, guard *Guard, logger *zerolog.Logger) (*CalendarService, error) {
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	return newCalendarService(srv, opts, guard, logger), nil
}

func newCalendarService(srv *calendar.Service, opts CalendarOptions, guard *Guard, logger *zerolog.Logger) *CalendarService {
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}
	if opts.Duration <= 0 {
		opts.Duration = time.Duration(models.DefaultSlotMinutes) * time.Minute
	}
	return &CalendarService{
		service:         srv,
		calendarID:      opts.CalendarID,
		duration:        opts.Duration,
		timezone:        opts.Timezone,
		inviteAttendees: opts.InviteAttendees,
		guard:           guard,
		logger:          logger,
	}
}

// CreateEvent inserts a meeting for appt and returns the Google event id.
func (s *CalendarService) CreateEvent(ctx context.Context, appt *models.Appointment, settings models.Settings) (string, error) {
	event := s.toEvent(appt, settings)

	var created *calendar.Event
	err := s.guard.Do(func() error {
		call := s.service.Events.Insert(s.calendarID, event).Context(ctx)
		if s.inviteAttendees {
			call = call.SendUpdates("all")
		}
		var err error
		created, err = call.Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("calendar insert: %w", err)
	}

	s.logger.Info().Str("appointment_id", appt.ID).Str("event_id", created.Id).Msg("Calendar event created")
	return created.Id, nil
}

// DeleteEvent removes an event. Events that are already gone count as deleted.
func (s *CalendarService) DeleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	err := s.guard.Do(func() error {
		call := s.service.Events.Delete(s.calendarID, eventID).Context(ctx)
		if s.inviteAttendees {
			call = call.SendUpdates("all")
		}
		err := call.Do()
		if isGone(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("calendar delete: %w", err)
	}
	return nil
}

func (s *CalendarService) toEvent(appt *models.Appointment, settings models.Settings) *calendar.Event {
	start := appt.AppointmentDate
	end := start.Add(s.duration)

	summary := "Meeting: " + appt.Name
	if appt.Company != "" {
		summary += " (" + appt.Company + ")"
	}

	details := []string{
		"Email: " + appt.Email,
		"Phone: " + appt.Phone,
	}
	if appt.Message != "" {
		details = append(details, "", appt.Message)
	}
	details = append(details, "", "Appointment ID: "+appt.ID)

	event := &calendar.Event{
		Summary:     summary,
		Location:    settings.Location,
		Description: strings.Join(details, "\n"),
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: s.timezone},
		End:         &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: s.timezone},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{"appointmentId": appt.ID},
		},
	}
	if s.inviteAttendees {
		event.Attendees = []*calendar.EventAttendee{{Email: appt.Email, DisplayName: appt.Name}}
	}
	return event
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
