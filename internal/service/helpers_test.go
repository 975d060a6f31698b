package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"boothbook/internal/config"
	"boothbook/internal/domain"
	"boothbook/internal/models"
	"boothbook/internal/repository"
	"boothbook/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

// flakyStore fails selected operations on top of a memory store.
type flakyStore struct {
	*repository.MemoryStore
	failGet bool
	failPut bool
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errStoreDown
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.failPut {
		return errStoreDown
	}
	return f.MemoryStore.Put(ctx, key, value, ttl)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishJSON(eventType string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func testEventConfig() config.EventConfig {
	return config.EventConfig{
		Name:        "Expo",
		Timezone:    "Europe/Berlin",
		SlotMinutes: 30,
		Days: []config.EventDay{
			{Name: "friday", Date: "2025-03-14", Start: "09:00", End: "12:00"},
			{Name: "saturday", Date: "2025-03-15", Start: "10:00", End: "12:00"},
		},
	}
}

func testSettings() models.Settings {
	return models.Settings{
		MaxAppointmentsPerSlot: 1,
		BookingMode:            models.BookingModeManual,
		PreventDuplicateEmail:  true,
		RateLimitingEnabled:    true,
		RateLimitMaxRequests:   5,
		RateLimitWindowMinutes: 15,
		EventName:              "Expo",
	}
}

type testEnv struct {
	store     domain.Store
	locker    *repository.Locker
	schedule  *schedule.Schedule
	appts     *AppointmentStore
	ledger    *Ledger
	audit     *AuditService
	settings  *SettingsService
	limiter   *RateLimiter
	publisher *recordingPublisher
	booking   *BookingService
}

func newTestEnv(t *testing.T, store domain.Store, defaults models.Settings) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	sched, err := schedule.New(testEventConfig())
	require.NoError(t, err)

	locker := repository.NewLocker(store, 10*time.Second, 2*time.Second)
	appts := NewAppointmentStore(store, locker, &logger)
	ledger := NewLedger(store, appts, sched, &logger)
	audit := NewAuditService(store, 90, &logger)
	publisher := &recordingPublisher{}
	settings := NewSettingsService(store, locker, defaults, audit, publisher, 0, &logger)
	limiter := NewRateLimiter(store, &logger)
	guard := NewDuplicateGuard(appts)
	booking := NewBookingService(settings, limiter, guard, ledger, appts, audit, locker, sched, publisher, "https://book.example.com/", &logger)

	return &testEnv{
		store:     store,
		locker:    locker,
		schedule:  sched,
		appts:     appts,
		ledger:    ledger,
		audit:     audit,
		settings:  settings,
		limiter:   limiter,
		publisher: publisher,
		booking:   booking,
	}
}

func newMemoryEnv(t *testing.T) *testEnv {
	return newTestEnv(t, repository.NewMemoryStore(), testSettings())
}

func bookingRequest(day, hhmm, email string) BookingRequest {
	return BookingRequest{
		Day:      day,
		Time:     hhmm,
		Name:     "Anna Schmidt",
		Phone:    "+49 30 1234567",
		Email:    email,
		Company:  "Schmidt GmbH",
		ClientIP: "203.0.113.7",
	}
}

func (e *testEnv) availability(t *testing.T, label string) models.SlotAvailability {
	t.Helper()
	slots, err := e.booking.Availability(context.Background())
	require.NoError(t, err)
	for _, s := range slots {
		if s.Day+"-"+s.Time == label {
			return s
		}
	}
	t.Fatalf("slot %s not found", label)
	return models.SlotAvailability{}
}
