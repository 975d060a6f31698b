package models

const (
	// DefaultAuditRetentionDays keeps audit entries for roughly one quarter.
	DefaultAuditRetentionDays = 90

	// ReminderHour час, в который отправляются напоминания
	ReminderHour = 9

	// ReminderMarkerTTL keeps the "reminder sent" marker past the event day.
	ReminderMarkerTTL = 72 * 60 * 60 // секунды

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// RateLimitGraceTTL is added to the rate limit window so entries self-clean.
	RateLimitGraceTTL = 60 // секунды

	// LockTTL bounds how long a crashed request can hold a slot lock.
	LockTTL = 10 // секунды

	// DefaultSlotMinutes is the slot granularity when the config omits it.
	DefaultSlotMinutes = 30
)

// Field length caps applied to booking input after trimming.
const (
	MaxNameLength    = 100
	MaxEmailLength   = 254
	MaxPhoneLength   = 30
	MaxCompanyLength = 150
	MaxMessageLength = 2000
)
