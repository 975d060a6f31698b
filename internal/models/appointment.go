package models

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is one of the known appointment statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Appointment is the canonical record of one booking.
type Appointment struct {
	ID              string    `json:"id"`
	Day             string    `json:"day"`
	Time            string    `json:"time"`
	AppointmentDate time.Time `json:"appointmentDate"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
	Company         string    `json:"company,omitempty"`
	Message         string    `json:"message,omitempty"`
	Status          Status    `json:"status"`
	GoogleEventID   string    `json:"googleEventId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// IsActive reports whether the appointment still occupies its slot.
// Only cancellation frees capacity.
func (a *Appointment) IsActive() bool {
	return a.Status != StatusCancelled
}

// SlotKey returns the "day-time" label used by the availability view.
func (a *Appointment) SlotKey() string {
	return a.Day + "-" + a.Time
}

// NormalizeEmail lowercases and trims an address for comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
