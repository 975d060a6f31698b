// Package reminder sends the day-before email for confirmed appointments.
package reminder

import (
	"context"
	"fmt"
	"time"

	"boothbook/internal/domain"
	"boothbook/internal/metrics"
	"boothbook/internal/models"
	"boothbook/internal/notify"
	"boothbook/internal/schedule"
	"boothbook/internal/service"

	"github.com/rs/zerolog"
)

// Result summarizes one run.
type Result struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Job finds tomorrow's confirmed appointments and mails each customer once.
type Job struct {
	appointments domain.AppointmentReader
	store        domain.Store
	mailer       domain.Mailer
	composer     *notify.Composer
	settings     domain.SettingsProvider
	audit        domain.AuditRecorder
	schedule     *schedule.Schedule
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewJob(
	appointments domain.AppointmentReader,
	store domain.Store,
	mailer domain.Mailer,
	composer *notify.Composer,
	settings domain.SettingsProvider,
	audit domain.AuditRecorder,
	sched *schedule.Schedule,
	logger *zerolog.Logger,
) *Job {
	return &Job{
		appointments: appointments,
		store:        store,
		mailer:       mailer,
		composer:     composer,
		settings:     settings,
		audit:        audit,
		schedule:     sched,
		logger:       logger,
		now:          time.Now,
	}
}

// Run sends due reminders. The marker key is claimed before sending, so
// overlapping or repeated runs send each reminder at most once.
func (j *Job) Run(ctx context.Context) (Result, error) {
	var res Result
	if j.mailer == nil {
		return res, fmt.Errorf("no mailer configured")
	}

	settings, err := j.settings.Get(ctx)
	if err != nil {
		return res, err
	}
	appts, err := j.appointments.List(ctx)
	if err != nil {
		return res, err
	}

	now := j.now()
	for _, appt := range appts {
		if appt.Status != models.StatusConfirmed || !j.schedule.IsTomorrow(appt.AppointmentDate, now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sent, err := j.remind(ctx, appt, settings)
		switch {
		case err != nil:
			res.Failed++
			j.logger.Error().Err(err).Str("appointment_id", appt.ID).Msg("reminder failed")
		case sent:
			res.Sent++
		default:
			res.Skipped++
		}
	}

	j.logger.Info().Int("sent", res.Sent).Int("skipped", res.Skipped).Int("failed", res.Failed).Msg("reminder run finished")
	return res, nil
}

func (j *Job) remind(ctx context.Context, appt *models.Appointment, settings models.Settings) (bool, error) {
	key := service.ReminderKey(appt.ID)
	claimed, err := j.store.PutIfAbsent(ctx, key, []byte(j.now().UTC().Format(time.RFC3339)), models.ReminderMarkerTTL*time.Second)
	if err != nil {
		return false, fmt.Errorf("claim reminder marker: %w", err)
	}
	if !claimed {
		return false, nil
	}

	msg, err := j.composer.Compose(notify.KindReminder, appt, settings)
	if err == nil {
		err = j.mailer.Send(ctx, msg)
	}
	if err != nil {
		// release the claim so the next run retries
		if delErr := j.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			j.logger.Warn().Err(delErr).Str("appointment_id", appt.ID).Msg("reminder marker cleanup failed")
		}
		return false, err
	}

	metrics.IncReminderSent()
	if j.audit != nil {
		entry := models.AuditEntry{
			Action:        models.AuditReminderSent,
			Details:       "reminder sent for " + appt.SlotKey(),
			AppointmentID: appt.ID,
			User:          models.ActorSystem,
		}
		if err := j.audit.Record(ctx, entry); err != nil {
			j.logger.Warn().Err(err).Msg("audit reminder failed")
		}
	}
	return true, nil
}
