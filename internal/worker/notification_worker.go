package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boothbook/internal/database"
	"boothbook/internal/domain"
	"boothbook/internal/events"
	"boothbook/internal/metrics"
	"boothbook/internal/models"
	"boothbook/internal/notify"
	"boothbook/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Dependencies are the collaborators a NotificationWorker dispatches to.
// Nil integrations are skipped.
type Dependencies struct {
	Calendar     domain.Calendar
	Mailer       domain.Mailer
	Sheets       domain.SheetsWriter
	Notifier     domain.AdminNotifier
	Composer     *notify.Composer
	Appointments domain.AppointmentReader
	Updater      domain.AppointmentUpdater
	Settings     domain.SettingsProvider
	Audit        domain.AuditRecorder
	Location     *time.Location
}

// NotificationWorker consumes notification_tasks and performs the external
// side effects of appointment changes.
type NotificationWorker struct {
	db            *database.DB
	redis         *redis.Client
	deps          Dependencies
	retryPolicy   RetryPolicy
	queue         chan models.NotificationTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	purgeAfter    time.Duration
	logger        *zerolog.Logger
	now           func() time.Time
}

// NewNotificationWorker builds a worker with sane defaults.
func NewNotificationWorker(db *database.DB, redisClient *redis.Client, deps Dependencies, retry RetryPolicy, queueSize int, logger *zerolog.Logger) *NotificationWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if queueSize <= 0 {
		queueSize = models.WorkerQueueSize
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotificationWorker{
		db:            db,
		redis:         redisClient,
		deps:          deps,
		retryPolicy:   retry,
		queue:         make(chan models.NotificationTask, queueSize),
		redisQueueKey: "notifications:queue",
		deadLetterKey: "notifications:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		purgeAfter:    7 * 24 * time.Hour,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterHandlers subscribes the worker to appointment events.
func (w *NotificationWorker) RegisterHandlers(bus *events.EventBus) {
	for _, eventType := range []string{
		events.EventAppointmentCreated,
		events.EventAppointmentConfirmed,
		events.EventAppointmentRejected,
		events.EventAppointmentCancelled,
		events.EventAppointmentDeleted,
	} {
		bus.Subscribe(eventType, w.handleEvent)
	}
}

func (w *NotificationWorker) handleEvent(event *events.Event) error {
	var payload events.AppointmentEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	settings, err := w.deps.Settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	have := available{
		calendar: w.deps.Calendar != nil,
		mailer:   w.deps.Mailer != nil && w.deps.Composer != nil,
		sheets:   w.deps.Sheets != nil,
		notifier: w.deps.Notifier != nil,
	}
	adminText := func(headline string, appt *models.Appointment) string {
		return notify.AdminText(headline, appt, w.deps.Location)
	}

	var errs []error
	for _, t := range planTasks(event.Type, payload, settings, have, adminText) {
		if err := w.EnqueueTask(ctx, t.Type, t.Payload.AppointmentID, t.Payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Type, err))
		}
	}
	return errors.Join(errs...)
}

// EnqueueTask persists task to DB and schedules it via redis or in-memory queue.
func (w *NotificationWorker) EnqueueTask(ctx context.Context, taskType, appointmentID string, payload interface{}) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if appointmentID == "" {
		return errors.New("appointment id is required")
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.NotificationTask{
		TaskType:      taskType,
		AppointmentID: appointmentID,
		Payload:       string(payloadBytes),
		Status:        models.TaskStatusPending,
	}
	if err := w.db.CreateTask(ctx, &task); err != nil {
		return fmt.Errorf("persist notification task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notification worker started")
	defer w.logger.Info().Msg("notification worker stopped")

	lastPurge := w.now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.now().Sub(lastPurge) > 24*time.Hour {
			w.purge(ctx)
			lastPurge = w.now()
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

// Drain processes every due task once. Used by tests and the CLI.
func (w *NotificationWorker) Drain(ctx context.Context) int {
	processed := 0
	for {
		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			processed++
			continue
		}
		break
	}
	tasks, err := w.db.GetPendingTasks(ctx, w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch pending tasks")
		return processed
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
		processed++
	}
	return processed
}

func (w *NotificationWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *NotificationWorker) purge(ctx context.Context) {
	n, err := w.db.PurgeCompleted(ctx, w.now().Add(-w.purgeAfter))
	if err != nil {
		w.logger.Warn().Err(err).Msg("purge completed tasks")
		return
	}
	if n > 0 {
		w.logger.Info().Int64("purged", n).Msg("completed notification tasks purged")
	}
}

func (w *NotificationWorker) tryLocalQueue() (models.NotificationTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.NotificationTask{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.NotificationTask, bool) {
	if w.redis == nil {
		return models.NotificationTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.NotificationTask{}, false
		}
		w.logger.Warn().Err(err).Msg("redis BRPOP error")
		return models.NotificationTask{}, false
	}
	if len(res) != 2 {
		return models.NotificationTask{}, false
	}
	var task models.NotificationTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("decode redis task")
		return models.NotificationTask{}, false
	}
	return task, true
}

// processTask reloads the task so a copy delivered through a queue and the
// polling path never run twice.
func (w *NotificationWorker) processTask(ctx context.Context, queued *models.NotificationTask) {
	task, err := w.db.GetTask(ctx, queued.ID)
	if err != nil {
		w.logger.Warn().Err(err).Int64("task_id", queued.ID).Msg("load task")
		return
	}
	switch task.Status {
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		return
	case models.TaskStatusRetry:
		if task.NextRetryAt != nil && task.NextRetryAt.After(w.now()) {
			return
		}
	}

	log := w.logger.With().
		Int64("task_id", task.ID).
		Str("task_type", task.TaskType).
		Str("appointment_id", task.AppointmentID).
		Logger()

	var payload taskPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleTask(ctx, task.TaskType, payload); err != nil {
		log.Warn().Err(err).Int("attempt", task.RetryCount+1).Msg("notification task failed")
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("mark completed")
	}
	metrics.IncNotification(task.TaskType, "sent")
	log.Debug().Msg("notification task completed")
}

func (w *NotificationWorker) handleTask(ctx context.Context, taskType string, payload taskPayload) error {
	switch taskType {
	case TaskCalendarCreate:
		return w.createCalendarEvent(ctx, payload)
	case TaskCalendarDelete:
		return w.deleteCalendarEvent(ctx, payload)
	case TaskEmailCustomer, TaskEmailAdmin:
		return w.sendEmail(ctx, taskType, payload)
	case TaskSheetsUpsert:
		if w.deps.Sheets == nil {
			return nil
		}
		appt, err := w.deps.Appointments.Get(ctx, payload.AppointmentID)
		if errors.Is(err, service.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return w.deps.Sheets.UpsertAppointment(ctx, appt)
	case TaskSheetsDelete:
		if w.deps.Sheets == nil {
			return nil
		}
		return w.deps.Sheets.DeleteAppointment(ctx, payload.AppointmentID)
	case TaskTelegramAdmin:
		if w.deps.Notifier == nil || payload.Text == "" {
			return nil
		}
		return w.deps.Notifier.NotifyAdmins(ctx, payload.Text)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

var errEventAlreadySet = errors.New("calendar event already recorded")

func (w *NotificationWorker) createCalendarEvent(ctx context.Context, payload taskPayload) error {
	if w.deps.Calendar == nil {
		return nil
	}
	appt, err := w.deps.Appointments.Get(ctx, payload.AppointmentID)
	if errors.Is(err, service.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if appt.Status != models.StatusConfirmed || appt.GoogleEventID != "" {
		return nil
	}

	settings, err := w.deps.Settings.Get(ctx)
	if err != nil {
		return err
	}
	eventID, err := w.deps.Calendar.CreateEvent(ctx, appt, settings)
	if err != nil {
		return err
	}

	updated, err := w.deps.Updater.Update(ctx, appt.ID, func(a *models.Appointment) error {
		if a.GoogleEventID != "" {
			return errEventAlreadySet
		}
		a.GoogleEventID = eventID
		a.UpdatedAt = w.now().UTC()
		return nil
	})
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, errEventAlreadySet):
		// deleted or synced concurrently: the new event is orphaned
		return w.deps.Calendar.DeleteEvent(ctx, eventID)
	case err != nil:
		return err
	}

	if updated.Status != models.StatusConfirmed {
		// cancelled or rejected while the event was being created
		if err := w.deps.Calendar.DeleteEvent(ctx, eventID); err != nil {
			return err
		}
		return w.clearEventID(ctx, appt.ID, eventID)
	}

	w.audit(ctx, models.AuditEntry{
		Action:        models.AuditCalendarSynced,
		Details:       "calendar event " + eventID,
		AppointmentID: appt.ID,
	})
	return nil
}

func (w *NotificationWorker) deleteCalendarEvent(ctx context.Context, payload taskPayload) error {
	if w.deps.Calendar == nil || payload.EventID == "" {
		return nil
	}
	if err := w.deps.Calendar.DeleteEvent(ctx, payload.EventID); err != nil {
		return err
	}
	return w.clearEventID(ctx, payload.AppointmentID, payload.EventID)
}

func (w *NotificationWorker) clearEventID(ctx context.Context, appointmentID, eventID string) error {
	_, err := w.deps.Updater.Update(ctx, appointmentID, func(a *models.Appointment) error {
		if a.GoogleEventID != eventID {
			return errEventAlreadySet
		}
		a.GoogleEventID = ""
		a.UpdatedAt = w.now().UTC()
		return nil
	})
	if err == nil || errors.Is(err, service.ErrNotFound) || errors.Is(err, errEventAlreadySet) {
		return nil
	}
	return err
}

func (w *NotificationWorker) sendEmail(ctx context.Context, taskType string, payload taskPayload) error {
	if w.deps.Mailer == nil || w.deps.Composer == nil {
		return nil
	}
	if payload.Appointment == nil {
		return errors.New("appointment snapshot missing")
	}

	settings, err := w.deps.Settings.Get(ctx)
	if err != nil {
		return err
	}
	if taskType == TaskEmailAdmin && settings.AdminEmail == "" {
		return nil
	}

	msg, err := w.deps.Composer.Compose(payload.Kind, payload.Appointment, settings)
	if err != nil {
		return fmt.Errorf("compose %s: %w", payload.Kind, err)
	}
	return w.deps.Mailer.Send(ctx, msg)
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.now().UTC().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	metrics.IncNotification(task.TaskType, "retry")
}

func (w *NotificationWorker) failTask(ctx context.Context, task *models.NotificationTask, cause error) {
	if err := w.db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncNotification(task.TaskType, "failed")
	w.logger.Error().Err(cause).
		Int64("task_id", task.ID).
		Str("task_type", task.TaskType).
		Str("appointment_id", task.AppointmentID).
		Msg("notification task gave up")

	w.audit(ctx, models.AuditEntry{
		Action:        models.AuditNotificationFailed,
		Details:       fmt.Sprintf("%s: %v", task.TaskType, cause),
		AppointmentID: task.AppointmentID,
	})
	if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil && w.redis != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}

func (w *NotificationWorker) audit(ctx context.Context, entry models.AuditEntry) {
	if w.deps.Audit == nil {
		return
	}
	entry.User = models.ActorSystem
	if err := w.deps.Audit.Record(ctx, entry); err != nil {
		w.logger.Warn().Err(err).Str("action", entry.Action).Msg("audit record failed")
	}
}

func (w *NotificationWorker) pushRedis(ctx context.Context, key string, task models.NotificationTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
