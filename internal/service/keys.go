package service

import (
	"fmt"
	"time"

	"boothbook/internal/models"
)

const (
	keyAppointmentPrefix = "appointment:"
	keyAllAppointments   = "appointments:all"
	keySlotPrefix        = "slot:"
	keyRateLimitPrefix   = "ratelimit:"
	keySettings          = "settings"
	keyAuditPrefix       = "audit:"
	keyReminderPrefix    = "reminder_sent:"
)

func appointmentKey(id string) string { return keyAppointmentPrefix + id }

// SlotKey is the store key of a slot's index: slot:<day>-<time>:<date>.
func SlotKey(slot models.Slot) string {
	return keySlotPrefix + slot.Label() + ":" + slot.Date.Format("2006-01-02")
}

func rateLimitKey(ip string) string { return keyRateLimitPrefix + ip }

// auditKey sorts lexically by time; the nanosecond stamp is zero padded.
func auditKey(ts time.Time, id string) string {
	return fmt.Sprintf("%s%020d:%s", keyAuditPrefix, ts.UnixNano(), id)
}

// ReminderKey marks that the reminder for an appointment went out.
func ReminderKey(appointmentID string) string { return keyReminderPrefix + appointmentID }

func slotLockName(slot models.Slot) string { return SlotKey(slot) }

func emailLockName(email string) string { return "email:" + models.NormalizeEmail(email) }

func appointmentLockName(id string) string { return appointmentKey(id) }

const globalListLockName = keyAllAppointments
