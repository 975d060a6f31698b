// Package app assembles the booking services from configuration. It is shared
// by the API server and the boothctl tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boothbook/internal/config"
	"boothbook/internal/database"
	"boothbook/internal/domain"
	"boothbook/internal/events"
	"boothbook/internal/google"
	"boothbook/internal/logging"
	"boothbook/internal/models"
	"boothbook/internal/notify"
	"boothbook/internal/reminder"
	"boothbook/internal/repository"
	"boothbook/internal/schedule"
	"boothbook/internal/service"
	"boothbook/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"
)

// App holds the wired services. Integrations that are not configured stay nil.
type App struct {
	Config   *config.Config
	Logger   *zerolog.Logger
	Redis    *redis.Client
	Store    domain.Store
	Locker   *repository.Locker
	Schedule *schedule.Schedule
	Bus      *events.EventBus
	Outbox   *database.DB

	Appointments *service.AppointmentStore
	Audit        *service.AuditService
	Settings     *service.SettingsService
	Booking      *service.BookingService

	Composer  *notify.Composer
	Mailer    domain.Mailer
	Calendar  *google.CalendarService
	Sheets    *google.SheetsService
	Telegram  *notify.TelegramNotifier
	Forwarder *events.AMQPForwarder
	Worker    *worker.NotificationWorker
	Reminders *reminder.Job

	closers []func() error
}

// Options switch off parts a short-lived command does not need.
type Options struct {
	// SkipIntegrations leaves Google, Telegram and RabbitMQ unconnected.
	SkipIntegrations bool
}

func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.init(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	sched, err := schedule.New(cfg.Event)
	if err != nil {
		return fmt.Errorf("event schedule: %w", err)
	}
	a.Schedule = sched

	a.initStore(ctx)
	a.Locker = repository.NewLocker(a.Store,
		models.LockTTL*time.Second,
		time.Duration(cfg.Booking.LockTimeoutMillis)*time.Millisecond)

	outbox, err := database.NewDB(cfg.Database.Path, logging.Component(a.Logger, "database"))
	if err != nil {
		return fmt.Errorf("init outbox database: %w", err)
	}
	a.Outbox = outbox
	a.closers = append(a.closers, outbox.Close)

	a.Bus = events.NewEventBus(logging.Component(a.Logger, "events"))
	svcLogger := logging.Component(a.Logger, "booking")
	a.Appointments = service.NewAppointmentStore(a.Store, a.Locker, svcLogger)
	a.Audit = service.NewAuditService(a.Store, cfg.Audit.RetentionDays, logging.Component(a.Logger, "audit"))
	a.Settings = service.NewSettingsService(a.Store, a.Locker, cfg.DefaultSettings(), a.Audit, a.Bus,
		time.Duration(cfg.Booking.SettingsCacheSeconds)*time.Second, logging.Component(a.Logger, "settings"))
	a.Booking = service.NewBookingService(
		a.Settings,
		service.NewRateLimiter(a.Store, svcLogger),
		service.NewDuplicateGuard(a.Appointments),
		service.NewLedger(a.Store, a.Appointments, sched, svcLogger),
		a.Appointments,
		a.Audit,
		a.Locker,
		sched,
		a.Bus,
		cfg.App.PublicBaseURL,
		svcLogger,
	)

	composer, err := notify.NewComposer(notify.ComposerConfig{
		PublicBaseURL: cfg.App.PublicBaseURL,
		Location:      sched.Location(),
		SlotDuration:  sched.SlotDuration(),
		Organizer:     cfg.Mail.From,
	})
	if err != nil {
		return err
	}
	a.Composer = composer

	if !opts.SkipIntegrations {
		a.initGoogle(ctx)
		a.initTelegram()
		a.initAMQP()
	}
	if err := a.initMailer(); err != nil {
		return err
	}

	a.initWorker()
	a.Reminders = reminder.NewJob(a.Appointments, a.Store, a.Mailer, a.Composer, a.Settings, a.Audit, sched,
		logging.Component(a.Logger, "reminder"))
	return nil
}

// initStore prefers Redis and keeps serving from memory while it is down.
func (a *App) initStore(ctx context.Context) {
	cfg := a.Config
	memory := repository.NewMemoryStore()
	if cfg.Redis.Address == "" {
		a.Logger.Warn().Msg("redis address not set, using in-memory store")
		a.Store = memory
		return
	}

	client := repository.NewRedisClient(cfg.Redis)
	a.closers = append(a.closers, func() error { return repository.Close(client) })
	if err := repository.Ping(ctx, client); err != nil {
		a.Logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis unavailable at startup")
	} else {
		a.Logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	a.Redis = client
	a.Store = repository.NewFailoverStore(repository.NewRedisStore(client), memory, logging.Component(a.Logger, "store"))
}

func (a *App) initGoogle(ctx context.Context) {
	gcfg := a.Config.Google
	if gcfg.CredentialsFile == "" {
		return
	}
	log := logging.Component(a.Logger, "google")
	client, err := google.NewHTTPClient(ctx, gcfg.CredentialsFile, gcfg.ImpersonateUser,
		calendar.CalendarEventsScope, gmail.GmailSendScope, sheets.SpreadsheetsScope)
	if err != nil {
		log.Warn().Err(err).Msg("google credentials unusable, continuing without google")
		return
	}
	breakerTimeout := time.Duration(gcfg.BreakerTimeoutSeconds) * time.Second

	if gcfg.CalendarID != "" {
		cal, err := google.NewCalendarService(ctx, client, google.CalendarOptions{
			CalendarID:      gcfg.CalendarID,
			Duration:        a.Schedule.SlotDuration(),
			Timezone:        a.Schedule.Location().String(),
			InviteAttendees: gcfg.ImpersonateUser != "",
		}, google.NewGuard("calendar", gcfg.BreakerFailures, breakerTimeout, log), log)
		if err != nil {
			log.Warn().Err(err).Msg("calendar init failed")
		} else {
			a.Calendar = cal
		}
	}

	if gcfg.SpreadsheetID != "" {
		sh, err := google.NewSheetsService(ctx, client, gcfg.SpreadsheetID, gcfg.SheetName, a.Schedule.Location(),
			google.NewGuard("sheets", gcfg.BreakerFailures, breakerTimeout, log), log)
		if err != nil {
			log.Warn().Err(err).Msg("sheets init failed")
		} else {
			a.Sheets = sh
		}
	}

	if a.Config.Mail.Provider == "gmail" {
		sender, err := google.NewGmailSender(ctx, client, notify.FormatFrom(a.Config.Mail.FromName, a.Config.Mail.From),
			google.NewGuard("gmail", gcfg.BreakerFailures, breakerTimeout, log))
		if err != nil {
			log.Warn().Err(err).Msg("gmail init failed")
		} else {
			a.Mailer = sender
		}
	}
}

func (a *App) initMailer() error {
	if a.Mailer != nil {
		return nil
	}
	log := logging.Component(a.Logger, "mail")
	switch a.Config.Mail.Provider {
	case "smtp":
		if a.Config.Mail.SMTP.Host == "" {
			return errors.New("smtp mail provider requires mail.smtp.host")
		}
		a.Mailer = notify.NewSMTPSender(a.Config.Mail)
	case "gmail":
		log.Warn().Msg("gmail sender unavailable, emails will only be logged")
		a.Mailer = notify.NewLogMailer(log)
	default:
		a.Mailer = notify.NewLogMailer(log)
	}
	return nil
}

func (a *App) initTelegram() {
	tcfg := a.Config.Telegram
	if tcfg.BotToken == "" || len(tcfg.AdminChatIDs) == 0 {
		return
	}
	log := logging.Component(a.Logger, "telegram")
	tg, err := notify.NewTelegramNotifier(tcfg.BotToken, tcfg.AdminChatIDs, tcfg.Debug, log)
	if err != nil {
		log.Warn().Err(err).Msg("telegram init failed, continuing without admin chat")
		return
	}
	a.Telegram = tg
}

func (a *App) initAMQP() {
	rcfg := a.Config.RabbitMQ
	if rcfg.URL == "" {
		return
	}
	log := logging.Component(a.Logger, "amqp")
	fwd, err := events.NewAMQPForwarder(rcfg.URL, rcfg.Queue, log)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, events stay in-process")
		return
	}
	a.Forwarder = fwd
	a.Bus.SubscribeAll(fwd.Handle)
	a.closers = append(a.closers, fwd.Close)
}

func (a *App) initWorker() {
	deps := worker.Dependencies{
		Mailer:       a.Mailer,
		Composer:     a.Composer,
		Appointments: a.Appointments,
		Updater:      a.Appointments,
		Settings:     a.Settings,
		Audit:        a.Audit,
		Location:     a.Schedule.Location(),
	}
	// typed nil pointers must not end up in the interfaces
	if a.Calendar != nil {
		deps.Calendar = a.Calendar
	}
	if a.Sheets != nil {
		deps.Sheets = a.Sheets
	}
	if a.Telegram != nil {
		deps.Notifier = a.Telegram
	}

	a.Worker = worker.NewNotificationWorker(a.Outbox, a.Redis, deps,
		worker.RetryPolicyFromConfig(a.Config.Worker), a.Config.Worker.QueueSize,
		logging.Component(a.Logger, "worker"))
	a.Worker.RegisterHandlers(a.Bus)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
