package domain

import (
	"context"
	"time"

	"boothbook/internal/models"
)

// Store is the key-value backend holding all canonical booking state.
// Get returns nil data and no error for a missing key. Individual writes are
// atomic; there are no multi-key transactions.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	DeleteIfValue(ctx context.Context, key string, value []byte) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Calendar creates and removes meetings in the organiser's calendar.
type Calendar interface {
	CreateEvent(ctx context.Context, appt *models.Appointment, settings models.Settings) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

type Mailer interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

type SheetsWriter interface {
	UpsertAppointment(ctx context.Context, appt *models.Appointment) error
	DeleteAppointment(ctx context.Context, appointmentID string) error
}

type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, text string) error
}

type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

type SettingsProvider interface {
	Get(ctx context.Context) (models.Settings, error)
}

// AppointmentReader gives side-effect workers read access to appointments.
type AppointmentReader interface {
	Get(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context) ([]*models.Appointment, error)
}

// AppointmentUpdater lets workers persist fields they own, such as the
// calendar event id.
type AppointmentUpdater interface {
	Update(ctx context.Context, id string, mutate func(*models.Appointment) error) (*models.Appointment, error)
}

type NotificationQueue interface {
	EnqueueTask(ctx context.Context, taskType string, appointmentID string, payload interface{}) error
}
