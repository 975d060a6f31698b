package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"boothbook/internal/domain"
	"boothbook/internal/models"
	"boothbook/internal/schedule"

	"github.com/rs/zerolog"
)

// Admission is the result of a capacity check for one slot.
type Admission struct {
	Admitted           bool
	SlotAppointmentIDs []string
	ActiveCount        int
}

// Ledger keeps, per slot, the IDs of every appointment ever booked into it.
// Cancelled and rejected entries stay in the index; capacity is derived by
// filtering on status. Only a hard delete removes an ID.
type Ledger struct {
	store        domain.Store
	appointments *AppointmentStore
	schedule     *schedule.Schedule
	logger       *zerolog.Logger
}

func NewLedger(store domain.Store, appointments *AppointmentStore, sched *schedule.Schedule, logger *zerolog.Logger) *Ledger {
	return &Ledger{store: store, appointments: appointments, schedule: sched, logger: logger}
}

// SlotIDs returns the raw slot index.
func (l *Ledger) SlotIDs(ctx context.Context, slot models.Slot) ([]string, error) {
	return readIDList(ctx, l.store, SlotKey(slot))
}

// activeCount loads each indexed appointment and counts the active ones.
func (l *Ledger) activeCount(ctx context.Context, ids []string) (int, map[string]models.Status, []string, error) {
	statuses := make(map[string]models.Status, len(ids))
	var missing []string
	active := 0
	for _, id := range ids {
		appt, err := l.appointments.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return 0, nil, nil, err
		}
		statuses[id] = appt.Status
		if appt.IsActive() {
			active++
		}
	}
	return active, statuses, missing, nil
}

// Admit decides whether one more appointment fits into slot. Callers hold the
// slot lock from Admit until Append so the decision cannot go stale.
func (l *Ledger) Admit(ctx context.Context, slot models.Slot, maxPerSlot int) (Admission, error) {
	ids, err := l.SlotIDs(ctx, slot)
	if err != nil {
		return Admission{}, err
	}
	active, _, _, err := l.activeCount(ctx, ids)
	if err != nil {
		return Admission{}, err
	}
	return Admission{
		Admitted:           active < maxPerSlot,
		SlotAppointmentIDs: ids,
		ActiveCount:        active,
	}, nil
}

// Append adds id to the slot index.
func (l *Ledger) Append(ctx context.Context, slot models.Slot, id string) error {
	ids, err := l.SlotIDs(ctx, slot)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return writeIDList(ctx, l.store, SlotKey(slot), append(ids, id))
}

// Remove prunes id from the slot index.
func (l *Ledger) Remove(ctx context.Context, slot models.Slot, id string) error {
	ids, err := l.SlotIDs(ctx, slot)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return writeIDList(ctx, l.store, SlotKey(slot), kept)
}

// ActiveCount returns the number of active appointments in slot.
func (l *Ledger) ActiveCount(ctx context.Context, slot models.Slot) (int, error) {
	ids, err := l.SlotIDs(ctx, slot)
	if err != nil {
		return 0, err
	}
	active, _, _, err := l.activeCount(ctx, ids)
	return active, err
}

// Availability reports every configured slot in chronological order.
func (l *Ledger) Availability(ctx context.Context, settings models.Settings) ([]models.SlotAvailability, error) {
	slots := l.schedule.Slots()
	out := make([]models.SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		booked, err := l.ActiveCount(ctx, slot)
		if err != nil {
			return nil, err
		}
		out = append(out, models.SlotAvailability{
			Day:       slot.Day,
			Time:      slot.Time,
			Date:      slot.Date.Format("2006-01-02"),
			Booked:    booked,
			Available: booked < settings.MaxAppointmentsPerSlot,
		})
	}
	return out, nil
}

// Diagnose explains each non-empty slot index: which IDs it holds, their
// statuses, dangling IDs and whether capacity is exceeded. Indexes left
// behind by removed slots or old dates are reported as orphaned.
func (l *Ledger) Diagnose(ctx context.Context, settings models.Settings) ([]models.SlotDiagnostic, error) {
	var out []models.SlotDiagnostic
	configured := make(map[string]bool)
	for _, slot := range l.schedule.Slots() {
		key := SlotKey(slot)
		configured[key] = true
		d, err := l.diagnoseKey(ctx, key, slot.Label(), settings)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, *d)
		}
	}

	keys, err := l.store.Keys(ctx, keySlotPrefix)
	if err != nil {
		return nil, storeErr("list slot indexes", err)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if configured[key] {
			continue
		}
		d, err := l.diagnoseKey(ctx, key, strings.TrimPrefix(key, keySlotPrefix), settings)
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, err
		}
		if err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("skipping unreadable slot index")
			continue
		}
		if d != nil {
			d.Orphaned = true
			out = append(out, *d)
		}
	}
	return out, nil
}

func (l *Ledger) diagnoseKey(ctx context.Context, key, label string, settings models.Settings) (*models.SlotDiagnostic, error) {
	ids, err := readIDList(ctx, l.store, key)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	active, statuses, missing, err := l.activeCount(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &models.SlotDiagnostic{
		Slot:           label,
		Key:            key,
		AppointmentIDs: ids,
		Statuses:       statuses,
		MissingRecords: missing,
		ActiveCount:    active,
		MaxPerSlot:     settings.MaxAppointmentsPerSlot,
		OverCapacity:   active > settings.MaxAppointmentsPerSlot,
	}, nil
}
