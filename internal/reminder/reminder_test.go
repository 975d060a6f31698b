package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"boothbook/internal/config"
	"boothbook/internal/models"
	"boothbook/internal/notify"
	"boothbook/internal/repository"
	"boothbook/internal/schedule"
	"boothbook/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	sent []models.EmailMessage
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg models.EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type staticSettings struct{}

func (staticSettings) Get(context.Context) (models.Settings, error) {
	return models.Settings{EventName: "Expo"}, nil
}

type fixture struct {
	job    *Job
	mailer *fakeMailer
	store  *repository.RedisStore
	audit  *service.AuditService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := repository.NewRedisStore(client)

	sched, err := schedule.New(config.EventConfig{
		Timezone:    "Europe/Berlin",
		SlotMinutes: 30,
		Days: []config.EventDay{
			{Name: "friday", Date: "2025-03-14", Start: "09:00", End: "12:00"},
			{Name: "saturday", Date: "2025-03-15", Start: "10:00", End: "12:00"},
		},
	})
	require.NoError(t, err)

	locker := repository.NewLocker(store, 10*time.Second, time.Second)
	appts := service.NewAppointmentStore(store, locker, &logger)
	audit := service.NewAuditService(store, 1, &logger)

	ctx := context.Background()
	for _, a := range []struct {
		id     string
		day    string
		at     string
		status models.Status
	}{
		{"due", "friday", "10:00", models.StatusConfirmed},
		{"pending", "friday", "10:30", models.StatusPending},
		{"cancelled", "friday", "11:00", models.StatusCancelled},
		{"later", "saturday", "10:00", models.StatusConfirmed},
	} {
		slot, err := sched.Slot(a.day, a.at)
		require.NoError(t, err)
		appt := &models.Appointment{
			ID:              a.id,
			Day:             a.day,
			Time:            a.at,
			AppointmentDate: slot.Date,
			Name:            "Guest " + a.id,
			Email:           a.id + "@example.com",
			Status:          a.status,
		}
		require.NoError(t, appts.Save(ctx, appt))
		require.NoError(t, appts.AddToIndex(ctx, appt.ID))
	}

	composer, err := notify.NewComposer(notify.ComposerConfig{Location: sched.Location()})
	require.NoError(t, err)

	mailer := &fakeMailer{}
	job := NewJob(appts, store, mailer, composer, staticSettings{}, audit, sched, &logger)
	job.now = func() time.Time { return time.Date(2025, 3, 13, 18, 0, 0, 0, sched.Location()) }

	return &fixture{job: job, mailer: mailer, store: store, audit: audit}
}

func TestJob_SendsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1}, res)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "due@example.com", f.mailer.sent[0].To)
	assert.Equal(t, "Reminder: your appointment tomorrow at Expo", f.mailer.sent[0].Subject)

	res, err = f.job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)
	assert.Len(t, f.mailer.sent, 1)

	marker, err := f.store.Get(ctx, service.ReminderKey("due"))
	require.NoError(t, err)
	assert.NotNil(t, marker)

	entries, err := f.audit.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditReminderSent, entries[0].Action)
}

func TestJob_FailureReleasesMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mailer.err = errors.New("smtp down")
	res, err := f.job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, res)

	marker, err := f.store.Get(ctx, service.ReminderKey("due"))
	require.NoError(t, err)
	assert.Nil(t, marker)

	f.mailer.err = nil
	res, err = f.job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1}, res)
}

func TestJob_NothingDueOnOtherDays(t *testing.T) {
	f := newFixture(t)
	f.job.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }

	res, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Empty(t, f.mailer.sent)
}

type countingRunner struct{ runs int }

func (c *countingRunner) Run(context.Context) (Result, error) {
	c.runs++
	return Result{}, nil
}

func TestScheduler_UntilNext(t *testing.T) {
	logger := zerolog.Nop()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	s, err := NewScheduler(&countingRunner{}, "09:30", loc, &logger)
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2025, 3, 13, 8, 0, 0, 0, loc) }
	assert.Equal(t, 90*time.Minute, s.untilNext())

	s.now = func() time.Time { return time.Date(2025, 3, 13, 9, 30, 0, 0, loc) }
	assert.Equal(t, 24*time.Hour, s.untilNext())
}

func TestScheduler_InvalidTime(t *testing.T) {
	logger := zerolog.Nop()
	for _, at := range []string{"", "25:00", "9:75", "noon"} {
		_, err := NewScheduler(&countingRunner{}, at, nil, &logger)
		assert.Error(t, err, at)
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	runner := &countingRunner{}
	s, err := NewScheduler(runner, "09:00", time.UTC, &logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 0, runner.runs)
}
