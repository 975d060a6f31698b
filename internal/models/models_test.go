package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointment_IsActive(t *testing.T) {
	tests := []struct {
		status Status
		active bool
	}{
		{StatusPending, true},
		{StatusConfirmed, true},
		{StatusRejected, true},
		{StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			a := &Appointment{Status: tt.status}
			assert.Equal(t, tt.active, a.IsActive())
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusRejected.Valid())
	assert.False(t, Status("done").Valid())
	assert.False(t, Status("").Valid())
}

func TestAppointment_JSONFieldNames(t *testing.T) {
	a := Appointment{
		ID:              "a1",
		Day:             "friday",
		Time:            "10:00",
		AppointmentDate: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Email:           "a@b.de",
		Status:          StatusPending,
		GoogleEventID:   "evt",
	}
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"id", "day", "time", "appointmentDate", "email", "status", "googleEventId", "createdAt", "updatedAt"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "company")
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "anna@example.com", NormalizeEmail("  Anna@Example.COM "))
}

func TestSettingsPatch_Apply(t *testing.T) {
	base := Settings{MaxAppointmentsPerSlot: 1, BookingMode: BookingModeManual, EventName: "Expo"}
	maxPerSlot := 3
	mode := BookingModeAutomatic

	got := SettingsPatch{MaxAppointmentsPerSlot: &maxPerSlot, BookingMode: &mode}.Apply(base)

	assert.Equal(t, 3, got.MaxAppointmentsPerSlot)
	assert.True(t, got.AutoConfirm())
	assert.Equal(t, "Expo", got.EventName)
	assert.Equal(t, 1, base.MaxAppointmentsPerSlot)
}

func TestSlot_Label(t *testing.T) {
	s := Slot{Day: "saturday", Time: "09:30"}
	assert.Equal(t, "saturday-09:30", s.Label())
	a := &Appointment{Day: "saturday", Time: "09:30"}
	assert.Equal(t, s.Label(), a.SlotKey())
}
