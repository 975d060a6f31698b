package notify

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"boothbook/internal/models"

	"github.com/emersion/go-ical"
)

const inviteProductID = "-//boothbook//Appointment Invite//EN"

// InviteOptions describes the meeting wrapped around an appointment.
type InviteOptions struct {
	Duration  time.Duration
	Organizer string
	Method    string
	Now       time.Time
}

// BuildInvite renders an iCalendar REQUEST (or CANCEL) for the appointment.
func BuildInvite(appt *models.Appointment, settings models.Settings, opts InviteOptions) ([]byte, error) {
	if appt == nil {
		return nil, fmt.Errorf("appointment is nil")
	}
	if opts.Duration <= 0 {
		opts.Duration = time.Duration(models.DefaultSlotMinutes) * time.Minute
	}
	if opts.Method == "" {
		opts.Method = "REQUEST"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, inviteProductID)
	cal.Props.SetText(ical.PropMethod, opts.Method)

	start := appt.AppointmentDate.UTC()
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, appt.ID+"@boothbook")
	event.Props.SetDateTime(ical.PropDateTimeStamp, opts.Now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(opts.Duration))
	event.Props.SetText(ical.PropSummary, inviteSummary(settings))
	if settings.Location != "" {
		event.Props.SetText(ical.PropLocation, settings.Location)
	}
	event.Props.SetText(ical.PropDescription, inviteDescription(appt, settings))

	status := "CONFIRMED"
	if opts.Method == "CANCEL" {
		status = "CANCELLED"
	}
	event.Props.SetText(ical.PropStatus, status)

	if opts.Organizer != "" {
		organizer := ical.NewProp(ical.PropOrganizer)
		organizer.Value = "mailto:" + opts.Organizer
		event.Props.Set(organizer)
	}
	attendee := ical.NewProp(ical.PropAttendee)
	attendee.Value = "mailto:" + appt.Email
	attendee.Params.Set(ical.ParamCommonName, appt.Name)
	event.Props.Set(attendee)

	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode invite: %w", err)
	}
	return buf.Bytes(), nil
}

// InviteAttachment wraps an encoded invite for an email.
func InviteAttachment(data []byte, method string) models.EmailAttachment {
	if method == "" {
		method = "REQUEST"
	}
	return models.EmailAttachment{
		Filename:    "invite.ics",
		ContentType: "text/calendar; charset=utf-8; method=" + method,
		Data:        data,
	}
}

func inviteSummary(settings models.Settings) string {
	title := settings.EventName
	if title == "" {
		title = "Appointment"
	}
	if settings.CompanyName != "" {
		title += " - " + settings.CompanyName
	}
	return title
}

func inviteDescription(appt *models.Appointment, settings models.Settings) string {
	lines := []string{"Guest: " + appt.Name}
	if appt.Company != "" {
		lines = append(lines, "Company: "+appt.Company)
	}
	if appt.Message != "" {
		lines = append(lines, "Message: "+appt.Message)
	}
	if settings.ContactEmail != "" {
		lines = append(lines, "Contact: "+settings.ContactEmail)
	}
	if settings.ContactPhone != "" {
		lines = append(lines, "Phone: "+settings.ContactPhone)
	}
	return strings.Join(lines, "\n")
}
