package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boothbook/internal/domain"
	"boothbook/internal/events"
	"boothbook/internal/logging"
	"boothbook/internal/metrics"
	"boothbook/internal/models"
	"boothbook/internal/repository"
	"boothbook/internal/schedule"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingResult is returned to the customer after a successful booking.
type BookingResult struct {
	AppointmentID  string `json:"appointmentId"`
	AppointmentURL string `json:"appointmentUrl"`
	AutoConfirmed  bool   `json:"autoConfirmed"`
}

// ListFilter narrows the admin appointment list. Zero values match all.
type ListFilter struct {
	Status models.Status
	Day    string
	Query  string
}

func (f ListFilter) match(a *models.Appointment) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Day != "" && a.Day != schedule.NormalizeDay(f.Day) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		hay := strings.ToLower(a.Name + " " + a.Email + " " + a.Company + " " + a.Phone)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

// BookingService sequences admission control and record keeping for one
// booking, and the admin status transitions. Side effects (calendar, email,
// sheets) are published as events and handled asynchronously.
type BookingService struct {
	settings      *SettingsService
	limiter       *RateLimiter
	guard         *DuplicateGuard
	ledger        *Ledger
	appointments  *AppointmentStore
	audit         *AuditService
	locker        *repository.Locker
	schedule      *schedule.Schedule
	eventBus      domain.EventPublisher
	publicBaseURL string
	logger        *zerolog.Logger
	now           func() time.Time
	newID         func() string
}

func NewBookingService(
	settings *SettingsService,
	limiter *RateLimiter,
	guard *DuplicateGuard,
	ledger *Ledger,
	appointments *AppointmentStore,
	audit *AuditService,
	locker *repository.Locker,
	sched *schedule.Schedule,
	eventBus domain.EventPublisher,
	publicBaseURL string,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		settings:      settings,
		limiter:       limiter,
		guard:         guard,
		ledger:        ledger,
		appointments:  appointments,
		audit:         audit,
		locker:        locker,
		schedule:      sched,
		eventBus:      eventBus,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// AppointmentURL is the customer-facing status page of an appointment.
func (s *BookingService) AppointmentURL(id string) string {
	return s.publicBaseURL + "/appointment/" + id
}

// Book runs one booking attempt: maintenance gate, rate limit, validation,
// duplicate guard, capacity check, persistence, then event and audit.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	res, err := s.book(ctx, req)
	metrics.IncBooking(bookingOutcome(err))
	return res, err
}

func (s *BookingService) book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if settings.MaintenanceMode {
		return nil, ErrMaintenance
	}

	if decision := s.limiter.Check(ctx, req.ClientIP, settings); !decision.Allowed {
		s.logger.Info().Str("ip", req.ClientIP).Time("reset_at", decision.ResetAt).Msg("booking rate limited")
		return nil, &RateLimitError{ResetAt: decision.ResetAt}
	}

	req = req.normalize()
	slot, err := validateBooking(req, s.schedule)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().Str("slot", slot.Label()).Str("email", logging.MaskEmail(req.Email)).Logger()

	// admission and the writes must finish before the locks can expire
	ctx, cancel := context.WithTimeout(ctx, lockBudget(s.locker.TTL()))
	defer cancel()

	var emailLock *repository.Lock
	if settings.PreventDuplicateEmail {
		emailLock, err = s.acquire(ctx, emailLockName(req.Email))
		if err != nil {
			return nil, err
		}
		defer s.release(ctx, emailLock)
	}
	slotLock, err := s.acquire(ctx, slotLockName(slot))
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, slotLock)

	if settings.PreventDuplicateEmail {
		existing, err := s.guard.ActiveBookingForEmail(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.Info().Str("existing_id", existing.ID).Msg("duplicate email rejected")
			return nil, ErrDuplicateEmail
		}
	}

	admission, err := s.ledger.Admit(ctx, slot, settings.MaxAppointmentsPerSlot)
	if err != nil {
		return nil, err
	}
	if !admission.Admitted {
		log.Info().Int("active", admission.ActiveCount).Msg("slot full")
		return nil, ErrSlotFull
	}

	now := s.now().UTC()
	status := models.StatusPending
	if settings.AutoConfirm() {
		status = models.StatusConfirmed
	}
	appt := &models.Appointment{
		ID:              s.newID(),
		Day:             slot.Day,
		Time:            slot.Time,
		AppointmentDate: slot.Date,
		Name:            req.Name,
		Phone:           req.Phone,
		Email:           req.Email,
		Company:         req.Company,
		Message:         req.Message,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.checkLocks(ctx, slotLock, emailLock); err != nil {
		log.Warn().Err(err).Msg("lock lost before persisting appointment")
		return nil, err
	}
	// three independent writes; a failure part way is logged, not rolled back
	if err := s.appointments.Save(ctx, appt); err != nil {
		log.Error().Err(err).Msg("persist appointment failed")
		return nil, err
	}
	if err := s.checkLocks(ctx, slotLock); err != nil {
		log.Error().Err(err).Str("appointment_id", appt.ID).Msg("slot lock lost after record write")
		return nil, err
	}
	if err := s.ledger.Append(ctx, slot, appt.ID); err != nil {
		log.Error().Err(err).Str("appointment_id", appt.ID).Msg("slot index append failed after record write")
		return nil, err
	}
	if err := s.appointments.AddToIndex(ctx, appt.ID); err != nil {
		log.Error().Err(err).Str("appointment_id", appt.ID).Msg("global list append failed after slot index write")
		return nil, err
	}

	s.publish(events.EventAppointmentCreated, appt, "", models.ActorCustomer)
	s.audit.Log(ctx, models.AuditAppointmentCreated,
		fmt.Sprintf("%s booked %s (%s)", appt.Name, slot.Label(), appt.Status), appt.ID, models.ActorCustomer)

	log.Info().Str("appointment_id", appt.ID).Str("status", string(appt.Status)).Msg("appointment booked")
	return &BookingResult{
		AppointmentID:  appt.ID,
		AppointmentURL: s.AppointmentURL(appt.ID),
		AutoConfirmed:  appt.Status == models.StatusConfirmed,
	}, nil
}

func (s *BookingService) acquire(ctx context.Context, resource string) (*repository.Lock, error) {
	lk, err := s.locker.Acquire(ctx, resource)
	switch {
	case err == nil:
		return lk, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		s.logger.Warn().Err(err).Str("resource", resource).Msg("lock not acquired")
		return nil, storeErr("lock "+resource, err)
	}
}

// lockBudget leaves headroom between the end of a booking and lock expiry.
func lockBudget(ttl time.Duration) time.Duration {
	return ttl * 4 / 5
}

func (s *BookingService) checkLocks(ctx context.Context, locks ...*repository.Lock) error {
	for _, lk := range locks {
		if lk == nil {
			continue
		}
		if err := lk.Check(ctx); err != nil {
			return storeErr("lock check", err)
		}
	}
	return nil
}

func (s *BookingService) release(ctx context.Context, lk *repository.Lock) {
	if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn().Err(err).Msg("lock release failed")
	}
}

func (s *BookingService) publish(eventType string, appt *models.Appointment, previous models.Status, actor string) {
	payload := events.AppointmentEventPayload{Appointment: *appt, Previous: previous, ChangedBy: actor}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("appointment_id", appt.ID).Msg("publish event failed")
	}
}

var errUnchanged = errors.New("unchanged")

type transition struct {
	from        []models.Status
	to          models.Status
	event       string
	auditAction string
	idempotent  bool
}

func (t transition) allowed(s models.Status) bool {
	for _, from := range t.from {
		if from == s {
			return true
		}
	}
	return false
}

var (
	cancelTransition = transition{
		from:        []models.Status{models.StatusPending, models.StatusConfirmed, models.StatusRejected},
		to:          models.StatusCancelled,
		event:       events.EventAppointmentCancelled,
		auditAction: models.AuditAppointmentCancelled,
		idempotent:  true,
	}
	confirmTransition = transition{
		from:        []models.Status{models.StatusPending, models.StatusRejected},
		to:          models.StatusConfirmed,
		event:       events.EventAppointmentConfirmed,
		auditAction: models.AuditAppointmentConfirmed,
	}
	rejectTransition = transition{
		from:        []models.Status{models.StatusPending, models.StatusConfirmed},
		to:          models.StatusRejected,
		event:       events.EventAppointmentRejected,
		auditAction: models.AuditAppointmentRejected,
	}
)

func (s *BookingService) apply(ctx context.Context, id, actor string, t transition) (*models.Appointment, error) {
	var previous models.Status
	appt, err := s.appointments.Update(ctx, id, func(a *models.Appointment) error {
		previous = a.Status
		if a.Status == t.to && t.idempotent {
			return errUnchanged
		}
		if !t.allowed(a.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, t.to)
		}
		a.Status = t.to
		a.UpdatedAt = s.now().UTC()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return s.appointments.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	s.publish(t.event, appt, previous, actor)
	s.audit.Log(ctx, t.auditAction, fmt.Sprintf("%s -> %s for %s", previous, appt.Status, appt.SlotKey()), appt.ID, actor)
	s.logger.Info().Str("appointment_id", appt.ID).Str("from", string(previous)).Str("to", string(appt.Status)).Str("actor", actor).Msg("appointment status changed")
	return appt, nil
}

// Cancel frees the appointment's slot. Cancelling twice is a no-op.
func (s *BookingService) Cancel(ctx context.Context, id, actor string) (*models.Appointment, error) {
	return s.apply(ctx, id, actor, cancelTransition)
}

// Confirm accepts a pending or previously rejected appointment.
func (s *BookingService) Confirm(ctx context.Context, id string) (*models.Appointment, error) {
	return s.apply(ctx, id, models.ActorAdmin, confirmTransition)
}

// Reject declines a pending or confirmed appointment. It keeps its slot.
func (s *BookingService) Reject(ctx context.Context, id string) (*models.Appointment, error) {
	return s.apply(ctx, id, models.ActorAdmin, rejectTransition)
}

// Delete removes the record and prunes it from the slot index and the
// global list.
func (s *BookingService) Delete(ctx context.Context, id string) error {
	appt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return err
	}
	slot, err := s.schedule.Slot(appt.Day, appt.Time)
	if err != nil {
		// day removed from the config; the index key still follows the record
		slot = models.Slot{Day: appt.Day, Time: appt.Time, Date: appt.AppointmentDate}
	}

	slotLock, err := s.acquire(ctx, slotLockName(slot))
	if err != nil {
		return err
	}
	defer s.release(ctx, slotLock)
	recordLock, err := s.acquire(ctx, appointmentLockName(id))
	if err != nil {
		return err
	}
	defer s.release(ctx, recordLock)

	if err := s.appointments.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.ledger.Remove(ctx, slot, id); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", id).Msg("slot index prune failed after delete")
		return err
	}
	if err := s.appointments.RemoveFromIndex(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", id).Msg("global list prune failed after delete")
		return err
	}

	s.publish(events.EventAppointmentDeleted, appt, appt.Status, models.ActorAdmin)
	s.audit.Log(ctx, models.AuditAppointmentDeleted, fmt.Sprintf("deleted %s booking of %s", appt.SlotKey(), appt.Name), id, models.ActorAdmin)
	s.logger.Info().Str("appointment_id", id).Msg("appointment deleted")
	return nil
}

// BulkDelete deletes each id, skipping unknown ones, and reports how many
// were removed.
func (s *BookingService) BulkDelete(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	var errs []error
	for _, id := range ids {
		err := s.Delete(ctx, id)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, ErrNotFound):
		default:
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return deleted, errors.Join(errs...)
}

func (s *BookingService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	return s.appointments.Get(ctx, id)
}

// List returns appointments ordered by appointment date.
func (s *BookingService) List(ctx context.Context, filter ListFilter) ([]*models.Appointment, error) {
	all, err := s.appointments.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if filter.match(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Availability reports booked counts per slot under the current settings.
func (s *BookingService) Availability(ctx context.Context) ([]models.SlotAvailability, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.ledger.Availability(ctx, settings)
}

// DebugSlots returns the slot index diagnostics.
func (s *BookingService) DebugSlots(ctx context.Context) ([]models.SlotDiagnostic, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.ledger.Diagnose(ctx, settings)
}

func bookingOutcome(err error) string {
	var vErr *ValidationError
	var rlErr *RateLimitError
	switch {
	case err == nil:
		return "created"
	case errors.As(err, &vErr):
		return "invalid"
	case errors.As(err, &rlErr):
		return "rate_limited"
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrMaintenance):
		return "maintenance"
	default:
		return "error"
	}
}
