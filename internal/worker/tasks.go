package worker

import (
	"boothbook/internal/events"
	"boothbook/internal/models"
	"boothbook/internal/notify"
)

const (
	TaskCalendarCreate = "calendar_create"
	TaskCalendarDelete = "calendar_delete"
	TaskEmailCustomer  = "email_customer"
	TaskEmailAdmin     = "email_admin"
	TaskSheetsUpsert   = "sheets_upsert"
	TaskSheetsDelete   = "sheets_delete"
	TaskTelegramAdmin  = "telegram_admin"
)

// taskPayload is persisted in NotificationTask.Payload as JSON.
type taskPayload struct {
	AppointmentID string              `json:"appointment_id"`
	Appointment   *models.Appointment `json:"appointment,omitempty"`
	Kind          string              `json:"kind,omitempty"`
	EventID       string              `json:"event_id,omitempty"`
	Text          string              `json:"text,omitempty"`
}

type plannedTask struct {
	Type    string
	Payload taskPayload
}

// available reports which integrations are configured.
type available struct {
	calendar bool
	mailer   bool
	sheets   bool
	notifier bool
}

// planTasks maps an appointment event onto the side effects it triggers.
func planTasks(eventType string, p events.AppointmentEventPayload, settings models.Settings, have available, adminText func(string, *models.Appointment) string) []plannedTask {
	appt := p.Appointment
	base := taskPayload{AppointmentID: appt.ID, Appointment: &appt}

	var tasks []plannedTask
	add := func(taskType string, mutate func(*taskPayload)) {
		payload := base
		if mutate != nil {
			mutate(&payload)
		}
		tasks = append(tasks, plannedTask{Type: taskType, Payload: payload})
	}
	customerMail := func(kind string) {
		if have.mailer {
			add(TaskEmailCustomer, func(tp *taskPayload) { tp.Kind = kind })
		}
	}
	adminPing := func(kind, headline string) {
		if !settings.AdminNotifications {
			return
		}
		if have.mailer && settings.AdminEmail != "" {
			add(TaskEmailAdmin, func(tp *taskPayload) { tp.Kind = kind })
		}
		if have.notifier {
			add(TaskTelegramAdmin, func(tp *taskPayload) { tp.Text = adminText(headline, &appt) })
		}
	}
	deleteEvent := func() {
		if have.calendar && appt.GoogleEventID != "" {
			add(TaskCalendarDelete, func(tp *taskPayload) { tp.EventID = appt.GoogleEventID })
		}
	}
	upsertRow := func() {
		if have.sheets {
			add(TaskSheetsUpsert, nil)
		}
	}

	switch eventType {
	case events.EventAppointmentCreated:
		if appt.Status == models.StatusConfirmed {
			customerMail(notify.KindConfirmed)
			if have.calendar {
				add(TaskCalendarCreate, nil)
			}
		} else {
			customerMail(notify.KindReceived)
		}
		adminPing(notify.KindAdminNew, "New appointment")
		upsertRow()
	case events.EventAppointmentConfirmed:
		customerMail(notify.KindConfirmed)
		if have.calendar {
			add(TaskCalendarCreate, nil)
		}
		upsertRow()
	case events.EventAppointmentRejected:
		customerMail(notify.KindRejected)
		deleteEvent()
		upsertRow()
	case events.EventAppointmentCancelled:
		customerMail(notify.KindCancelled)
		if p.ChangedBy == models.ActorCustomer {
			adminPing(notify.KindAdminCancelled, "Appointment cancelled by customer")
		}
		deleteEvent()
		upsertRow()
	case events.EventAppointmentDeleted:
		deleteEvent()
		if have.sheets {
			add(TaskSheetsDelete, nil)
		}
	}
	return tasks
}
