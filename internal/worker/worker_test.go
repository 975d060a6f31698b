package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"boothbook/internal/database"
	"boothbook/internal/events"
	"boothbook/internal/models"
	"boothbook/internal/notify"
	"boothbook/internal/repository"
	"boothbook/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendar struct {
	mu       sync.Mutex
	created  []string
	deleted  []string
	err      error
	onCreate func()
}

func (f *fakeCalendar) CreateEvent(_ context.Context, appt *models.Appointment, _ models.Settings) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.onCreate != nil {
		f.onCreate()
	}
	f.created = append(f.created, appt.ID)
	return "evt-" + appt.ID, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []models.EmailMessage
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg models.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSheets struct {
	upserts []string
	deletes []string
}

func (f *fakeSheets) UpsertAppointment(_ context.Context, appt *models.Appointment) error {
	f.upserts = append(f.upserts, appt.ID)
	return nil
}

func (f *fakeSheets) DeleteAppointment(_ context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	return nil
}

type fakeNotifier struct {
	texts []string
}

func (f *fakeNotifier) NotifyAdmins(_ context.Context, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

type staticSettings struct {
	settings models.Settings
}

func (s staticSettings) Get(context.Context) (models.Settings, error) {
	return s.settings, nil
}

type testEnv struct {
	db       *database.DB
	worker   *NotificationWorker
	appts    *service.AppointmentStore
	audit    *service.AuditService
	calendar *fakeCalendar
	mailer   *fakeMailer
	sheets   *fakeSheets
	notifier *fakeNotifier
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "outbox.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestEnv(t *testing.T, retry RetryPolicy, redisClient *redis.Client) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	store := repository.NewMemoryStore()
	locker := repository.NewLocker(store, 10*time.Second, time.Second)

	composer, err := notify.NewComposer(notify.ComposerConfig{PublicBaseURL: "https://book.example.com"})
	require.NoError(t, err)

	env := &testEnv{
		db:       newTestDB(t),
		appts:    service.NewAppointmentStore(store, locker, &logger),
		audit:    service.NewAuditService(store, 1, &logger),
		calendar: &fakeCalendar{},
		mailer:   &fakeMailer{},
		sheets:   &fakeSheets{},
		notifier: &fakeNotifier{},
	}
	env.worker = NewNotificationWorker(env.db, redisClient, Dependencies{
		Calendar:     env.calendar,
		Mailer:       env.mailer,
		Sheets:       env.sheets,
		Notifier:     env.notifier,
		Composer:     composer,
		Appointments: env.appts,
		Updater:      env.appts,
		Settings: staticSettings{models.Settings{
			EventName:          "Expo",
			AdminNotifications: true,
			AdminEmail:         "admin@example.com",
		}},
		Audit: env.audit,
	}, retry, 16, &logger)
	return env
}

func testAppointment(status models.Status) *models.Appointment {
	now := time.Now().UTC()
	return &models.Appointment{
		ID:              "appt-1",
		Day:             "friday",
		Time:            "10:00",
		AppointmentDate: now.Add(48 * time.Hour),
		Name:            "Ada",
		Phone:           "+4930123456",
		Email:           "ada@example.com",
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (e *testEnv) save(t *testing.T, appt *models.Appointment) {
	t.Helper()
	require.NoError(t, e.appts.Save(context.Background(), appt))
}

func (e *testEnv) auditActions(t *testing.T) []string {
	t.Helper()
	entries, err := e.audit.List(context.Background(), 50)
	require.NoError(t, err)
	var actions []string
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

func taskTypes(tasks []plannedTask) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Type)
	}
	return out
}

func TestPlanTasks(t *testing.T) {
	all := available{calendar: true, mailer: true, sheets: true, notifier: true}
	settings := models.Settings{AdminNotifications: true, AdminEmail: "admin@example.com"}
	text := func(h string, _ *models.Appointment) string { return h }

	pending := *testAppointment(models.StatusPending)
	confirmed := *testAppointment(models.StatusConfirmed)
	withEvent := *testAppointment(models.StatusCancelled)
	withEvent.GoogleEventID = "evt-9"

	tests := []struct {
		name     string
		event    string
		payload  events.AppointmentEventPayload
		settings models.Settings
		have     available
		want     []string
	}{
		{
			name:     "created pending",
			event:    events.EventAppointmentCreated,
			payload:  events.AppointmentEventPayload{Appointment: pending},
			settings: settings,
			have:     all,
			want:     []string{TaskEmailCustomer, TaskEmailAdmin, TaskTelegramAdmin, TaskSheetsUpsert},
		},
		{
			name:     "created auto-confirmed",
			event:    events.EventAppointmentCreated,
			payload:  events.AppointmentEventPayload{Appointment: confirmed},
			settings: settings,
			have:     all,
			want:     []string{TaskEmailCustomer, TaskCalendarCreate, TaskEmailAdmin, TaskTelegramAdmin, TaskSheetsUpsert},
		},
		{
			name:     "created without admin notifications",
			event:    events.EventAppointmentCreated,
			payload:  events.AppointmentEventPayload{Appointment: pending},
			settings: models.Settings{},
			have:     all,
			want:     []string{TaskEmailCustomer, TaskSheetsUpsert},
		},
		{
			name:     "confirmed",
			event:    events.EventAppointmentConfirmed,
			payload:  events.AppointmentEventPayload{Appointment: confirmed},
			settings: settings,
			have:     all,
			want:     []string{TaskEmailCustomer, TaskCalendarCreate, TaskSheetsUpsert},
		},
		{
			name:     "cancelled by customer",
			event:    events.EventAppointmentCancelled,
			payload:  events.AppointmentEventPayload{Appointment: withEvent, ChangedBy: models.ActorCustomer},
			settings: settings,
			have:     all,
			want:     []string{TaskEmailCustomer, TaskEmailAdmin, TaskTelegramAdmin, TaskCalendarDelete, TaskSheetsUpsert},
		},
		{
			name:     "cancelled by admin",
			event:    events.EventAppointmentCancelled,
			payload:  events.AppointmentEventPayload{Appointment: withEvent, ChangedBy: models.ActorAdmin},
			settings: settings,
			have:     all,
			want:     []string{TaskEmailCustomer, TaskCalendarDelete, TaskSheetsUpsert},
		},
		{
			name:     "rejected",
			event:    events.EventAppointmentRejected,
			payload:  events.AppointmentEventPayload{Appointment: pending},
			settings: settings,
			have:     all,
			want:     []string{TaskEmailCustomer, TaskSheetsUpsert},
		},
		{
			name:     "deleted",
			event:    events.EventAppointmentDeleted,
			payload:  events.AppointmentEventPayload{Appointment: withEvent},
			settings: settings,
			have:     all,
			want:     []string{TaskCalendarDelete, TaskSheetsDelete},
		},
		{
			name:     "no integrations",
			event:    events.EventAppointmentCreated,
			payload:  events.AppointmentEventPayload{Appointment: confirmed},
			settings: settings,
			have:     available{},
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planTasks(tt.event, tt.payload, tt.settings, tt.have, text)
			assert.Equal(t, tt.want, taskTypes(got))
		})
	}
}

func TestEventsBecomeNotifications(t *testing.T) {
	env := newTestEnv(t, RetryPolicy{}, nil)
	appt := testAppointment(models.StatusPending)
	env.save(t, appt)

	bus := events.NewEventBus(nil)
	env.worker.RegisterHandlers(bus)
	require.NoError(t, bus.PublishJSON(events.EventAppointmentCreated, events.AppointmentEventPayload{Appointment: *appt}))

	processed := env.worker.Drain(context.Background())
	assert.Equal(t, 4, processed)

	require.Len(t, env.mailer.sent, 2)
	assert.Equal(t, "ada@example.com", env.mailer.sent[0].To)
	assert.Equal(t, "Your appointment request for Expo", env.mailer.sent[0].Subject)
	assert.Equal(t, "admin@example.com", env.mailer.sent[1].To)
	assert.Equal(t, []string{"appt-1"}, env.sheets.upserts)
	require.Len(t, env.notifier.texts, 1)
	assert.Contains(t, env.notifier.texts[0], "New appointment")
	assert.Empty(t, env.calendar.created)

	counts, err := env.db.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"completed": 4}, counts)
}

func TestProcessTaskRunsOnce(t *testing.T) {
	env := newTestEnv(t, RetryPolicy{}, nil)
	ctx := context.Background()
	appt := testAppointment(models.StatusPending)

	require.NoError(t, env.worker.EnqueueTask(ctx, TaskEmailCustomer, appt.ID, taskPayload{
		AppointmentID: appt.ID, Appointment: appt, Kind: notify.KindReceived,
	}))
	task, ok := env.worker.tryLocalQueue()
	require.True(t, ok)

	env.worker.processTask(ctx, &task)
	env.worker.processTask(ctx, &task)
	assert.Equal(t, 0, env.worker.Drain(ctx))
	assert.Len(t, env.mailer.sent, 1)
}

func TestCalendarCreateStoresEventID(t *testing.T) {
	env := newTestEnv(t, RetryPolicy{}, nil)
	ctx := context.Background()
	appt := testAppointment(models.StatusConfirmed)
	env.save(t, appt)

	require.NoError(t, env.worker.EnqueueTask(ctx, TaskCalendarCreate, appt.ID, taskPayload{AppointmentID: appt.ID}))
	env.worker.Drain(ctx)

	stored, err := env.appts.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-appt-1", stored.GoogleEventID)
	assert.Contains(t, env.auditActions(t), models.AuditCalendarSynced)

	// a second run does not create another event
	require.NoError(t, env.worker.EnqueueTask(ctx, TaskCalendarCreate, appt.ID, taskPayload{AppointmentID: appt.ID}))
	env.worker.Drain(ctx)
	assert.Len(t, env.calendar.created, 1)
}

func TestCalendarCreateSkipsUnconfirmed(t *testing.T) {
	env := newTestEnv(t, RetryPolicy{}, nil)
	ctx := context.Background()
	env.save(t, testAppointment(models.StatusPending))

	require.NoError(t, env.worker.EnqueueTask(ctx, TaskCalendarCreate, "appt-1", taskPayload{AppointmentID: "appt-1"}))
	require.NoError(t, env.worker.EnqueueTask(ctx, TaskCalendarCreate, "gone", taskPayload{AppointmentID: "gone"}))
	env.worker.Drain(ctx)
	assert.Empty(t, env.calendar.created)
}

func TestCalendarCreateCancelledMeanwhile(t *testing.T) {
	env := newTestEnv(t, RetryPolicy{}, nil)
	ctx := context.Background()
	appt := testAppointment(models.StatusConfirmed)
	env.save(t, appt)

	env.calendar.onCreate = func() {
		cancelled := *appt
		cancelled.Status = models.StatusCancelled
		require.NoError(t, env.appts.Save(ctx, &cancelled))
	}

	require.NoError(t, env.worker.EnqueueTask(ctx, TaskCalendarCreate, appt.ID, taskPayload{AppointmentID: appt.ID}))
	env.worker.Drain(ctx)

	assert.Equal(t, []string{"evt-appt-1"}, env.calendar.deleted)
	stored, err := env.appts.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.GoogleEventID)
}

func TestCalendarDeleteClearsEventID(t *testing.T) {
	env := newTestEnv(t, RetryPolicy{}, nil)
	ctx := context.Background()
	appt := testAppointment(models.StatusCancelled)
	appt.GoogleEventID = "evt-7"
	env.save(t, appt)

	require.NoError(t, env.worker.EnqueueTask(ctx, TaskCalendarDelete, appt.ID, taskPayload{AppointmentID: appt.ID, EventID: "evt-7"}))
	env.worker.Drain(ctx)

	assert.Equal(t, []string{"evt-7"}, env.calendar.deleted)
	stored, err := env.appts.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.GoogleEventID)
}

func TestRetryThenFail(t *testing.T) {
	env := newTestEnv(t, RetryPolicy{MaxRetries: 2, InitialDelay: time.Minute}, nil)
	env.mailer.err = errors.New("smtp down")
	ctx := context.Background()
	appt := testAppointment(models.StatusPending)

	require.NoError(t, env.worker.EnqueueTask(ctx, TaskEmailCustomer, appt.ID, taskPayload{
		AppointmentID: appt.ID, Appointment: appt, Kind: notify.KindReceived,
	}))
	task, ok := env.worker.tryLocalQueue()
	require.True(t, ok)

	env.worker.processTask(ctx, &task)
	stored, err := env.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRetry, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.NextRetryAt)
	assert.True(t, stored.NextRetryAt.After(time.Now()))

	// not due yet
	env.worker.processTask(ctx, &task)
	stored, err = env.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RetryCount)

	env.worker.now = func() time.Time { return time.Now().Add(time.Hour) }
	env.worker.processTask(ctx, &task)
	stored, err = env.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "smtp down")

	assert.Contains(t, env.auditActions(t), models.AuditNotificationFailed)
}

func TestUnknownTaskFails(t *testing.T) {
	env := newTestEnv(t, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()
	require.NoError(t, env.worker.EnqueueTask(ctx, "bogus", "appt-1", taskPayload{AppointmentID: "appt-1"}))
	env.worker.Drain(ctx)

	failed, err := env.db.GetFailedTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bogus", failed[0].TaskType)
}

func TestEnqueueValidation(t *testing.T) {
	env := newTestEnv(t, RetryPolicy{}, nil)
	assert.Error(t, env.worker.EnqueueTask(context.Background(), "", "a", nil))
	assert.Error(t, env.worker.EnqueueTask(context.Background(), TaskSheetsDelete, "", nil))
}

func TestRedisQueueAndDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := newTestEnv(t, RetryPolicy{MaxRetries: 1}, client)
	env.mailer.err = errors.New("rejected")
	ctx := context.Background()
	appt := testAppointment(models.StatusPending)

	require.NoError(t, env.worker.EnqueueTask(ctx, TaskEmailCustomer, appt.ID, taskPayload{
		AppointmentID: appt.ID, Appointment: appt, Kind: notify.KindReceived,
	}))
	_, ok := env.worker.tryLocalQueue()
	assert.False(t, ok, "redis takes precedence over the local queue")

	task, ok := env.worker.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, TaskEmailCustomer, task.TaskType)

	env.worker.processTask(ctx, &task)
	n, err := client.LLen(ctx, "notifications:deadletter").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}
	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 10*time.Second, p.NextDelay(10))
	assert.Equal(t, 10*time.Second, p.NextDelay(200))

	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(1))
}
