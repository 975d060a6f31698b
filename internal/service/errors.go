package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSlotFull          = errors.New("this time slot is fully booked")
	ErrDuplicateEmail    = errors.New("an active appointment already exists for this email")
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("appointment status does not allow this action")
	ErrMaintenance       = errors.New("booking is temporarily disabled for maintenance")
	ErrStoreUnavailable  = errors.New("service temporarily unavailable")
)

// ValidationError reports the first invalid booking field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RateLimitError is returned when a client exceeded the booking rate.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return "too many booking requests, try again later"
}

// RetryAfter returns the wait until the window resets, rounded up to a second.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetAt.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return d.Truncate(time.Second) + time.Second
}

// storeErr wraps infrastructure failures so callers can map them generically
// while logs keep the cause.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
