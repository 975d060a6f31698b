package models

import "time"

const (
	AuditAppointmentCreated   = "appointment_created"
	AuditAppointmentConfirmed = "appointment_confirmed"
	AuditAppointmentRejected  = "appointment_rejected"
	AuditAppointmentCancelled = "appointment_cancelled"
	AuditAppointmentDeleted   = "appointment_deleted"
	AuditSettingsUpdated      = "settings_updated"
	AuditNotificationFailed   = "notification_failed"
	AuditCalendarSynced       = "calendar_synced"
	AuditReminderSent         = "reminder_sent"
	AuditAdminLogin           = "admin_login"
)

const (
	ActorCustomer = "customer"
	ActorAdmin    = "admin"
	ActorSystem   = "system"
)

// AuditEntry is an append-only record of a state change.
type AuditEntry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	Details       string    `json:"details"`
	AppointmentID string    `json:"appointmentId,omitempty"`
	User          string    `json:"user"`
}
