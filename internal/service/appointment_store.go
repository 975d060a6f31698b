package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"boothbook/internal/domain"
	"boothbook/internal/models"
	"boothbook/internal/repository"

	"github.com/rs/zerolog"
)

// AppointmentStore owns appointment records and the global appointment list.
type AppointmentStore struct {
	store  domain.Store
	locker *repository.Locker
	logger *zerolog.Logger
}

func NewAppointmentStore(store domain.Store, locker *repository.Locker, logger *zerolog.Logger) *AppointmentStore {
	return &AppointmentStore{store: store, locker: locker, logger: logger}
}

func (s *AppointmentStore) Get(ctx context.Context, id string) (*models.Appointment, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, err := s.store.Get(ctx, appointmentKey(id))
	if err != nil {
		return nil, storeErr("load appointment", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var appt models.Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		return nil, fmt.Errorf("decode appointment %s: %w", id, err)
	}
	return &appt, nil
}

func (s *AppointmentStore) Save(ctx context.Context, appt *models.Appointment) error {
	raw, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("encode appointment: %w", err)
	}
	if err := s.store.Put(ctx, appointmentKey(appt.ID), raw, 0); err != nil {
		return storeErr("save appointment", err)
	}
	return nil
}

func (s *AppointmentStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, appointmentKey(id)); err != nil {
		return storeErr("delete appointment", err)
	}
	return nil
}

// Update applies mutate to the stored record while holding its lock and
// persists the result. Errors returned by mutate abort the update unchanged.
func (s *AppointmentStore) Update(ctx context.Context, id string, mutate func(*models.Appointment) error) (*models.Appointment, error) {
	var updated *models.Appointment
	err := s.locker.WithLock(ctx, appointmentLockName(id), func() error {
		appt, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(appt); err != nil {
			return err
		}
		if err := s.Save(ctx, appt); err != nil {
			return err
		}
		updated = appt
		return nil
	})
	if errors.Is(err, repository.ErrLockTimeout) {
		return nil, storeErr("lock appointment", err)
	}
	return updated, err
}

// IDs returns the global appointment list.
func (s *AppointmentStore) IDs(ctx context.Context) ([]string, error) {
	return readIDList(ctx, s.store, keyAllAppointments)
}

// AddToIndex appends id to the global list under the list lock.
func (s *AppointmentStore) AddToIndex(ctx context.Context, id string) error {
	return s.editIndex(ctx, func(ids []string) []string {
		for _, existing := range ids {
			if existing == id {
				return ids
			}
		}
		return append(ids, id)
	})
}

// RemoveFromIndex prunes ids from the global list. Only hard deletes use it.
func (s *AppointmentStore) RemoveFromIndex(ctx context.Context, remove ...string) error {
	drop := make(map[string]bool, len(remove))
	for _, id := range remove {
		drop[id] = true
	}
	return s.editIndex(ctx, func(ids []string) []string {
		kept := ids[:0]
		for _, id := range ids {
			if !drop[id] {
				kept = append(kept, id)
			}
		}
		return kept
	})
}

func (s *AppointmentStore) editIndex(ctx context.Context, edit func([]string) []string) error {
	err := s.locker.WithLock(ctx, globalListLockName, func() error {
		ids, err := s.IDs(ctx)
		if err != nil {
			return err
		}
		return writeIDList(ctx, s.store, keyAllAppointments, edit(ids))
	})
	if errors.Is(err, repository.ErrLockTimeout) {
		return storeErr("lock appointment list", err)
	}
	return err
}

// List loads every appointment in the global list ordered by appointment
// date. IDs whose record is gone are skipped.
func (s *AppointmentStore) List(ctx context.Context) ([]*models.Appointment, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Appointment, 0, len(ids))
	for _, id := range ids {
		appt, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug().Str("appointment_id", id).Msg("listed appointment has no record")
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AppointmentDate.Equal(out[j].AppointmentDate) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AppointmentDate.Before(out[j].AppointmentDate)
	})
	return out, nil
}

func readIDList(ctx context.Context, store domain.Store, key string) ([]string, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return nil, storeErr("load "+key, err)
	}
	if raw == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return ids, nil
}

func writeIDList(ctx context.Context, store domain.Store, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.Put(ctx, key, raw, 0); err != nil {
		return storeErr("save "+key, err)
	}
	return nil
}
