package service

import (
	"context"
	"errors"

	"boothbook/internal/models"
)

// DuplicateGuard finds an existing active appointment for an email address.
// It scans the global list, which is fine for a few hundred bookings per show.
type DuplicateGuard struct {
	appointments *AppointmentStore
}

func NewDuplicateGuard(appointments *AppointmentStore) *DuplicateGuard {
	return &DuplicateGuard{appointments: appointments}
}

// ActiveBookingForEmail returns the first active appointment whose email
// matches case-insensitively, or nil.
func (g *DuplicateGuard) ActiveBookingForEmail(ctx context.Context, email string) (*models.Appointment, error) {
	want := models.NormalizeEmail(email)
	ids, err := g.appointments.IDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		appt, err := g.appointments.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if appt.IsActive() && models.NormalizeEmail(appt.Email) == want {
			return appt, nil
		}
	}
	return nil, nil
}
