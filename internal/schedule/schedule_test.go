package schedule

import (
	"testing"
	"time"

	"boothbook/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() config.EventConfig {
	return config.EventConfig{
		Name:        "Expo",
		Timezone:    "Europe/Berlin",
		SlotMinutes: 30,
		Days: []config.EventDay{
			{Name: "Saturday", Date: "2025-03-15", Slots: []string{"11:00", "10:00"}},
			{Name: "friday", Date: "2025-03-14", Start: "09:00", End: "11:00"},
		},
	}
}

func TestNew(t *testing.T) {
	s, err := New(testEvent())
	require.NoError(t, err)

	days := s.Days()
	require.Len(t, days, 2)
	assert.Equal(t, "friday", days[0].Name)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, days[0].Slots)
	assert.Equal(t, "saturday", days[1].Name)
	assert.Equal(t, []string{"10:00", "11:00"}, days[1].Slots)
	assert.Equal(t, "2025-03-15", days[1].DateString())
	assert.Equal(t, 30*time.Minute, s.SlotDuration())
}

func TestNew_Invalid(t *testing.T) {
	ev := testEvent()
	ev.Days[1].End = "09:10"
	_, err := New(ev)
	assert.Error(t, err)

	ev = testEvent()
	ev.Timezone = "Nowhere/Land"
	_, err = New(ev)
	assert.Error(t, err)
}

func TestSchedule_Slot(t *testing.T) {
	s, err := New(testEvent())
	require.NoError(t, err)

	slot, err := s.Slot("FRIDAY", "10:00")
	require.NoError(t, err)
	assert.Equal(t, "friday-10:00", slot.Label())
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), slot.Date.UTC())

	_, err = s.Slot("sunday", "10:00")
	assert.Error(t, err)
	_, err = s.Slot("friday", "ten")
	assert.Error(t, err)
}

func TestSchedule_HasSlot(t *testing.T) {
	s, err := New(testEvent())
	require.NoError(t, err)

	assert.True(t, s.HasSlot("friday", "09:30"))
	assert.False(t, s.HasSlot("friday", "11:00"))
	assert.True(t, s.HasSlot("saturday", "11:00"))
	assert.False(t, s.HasSlot("monday", "10:00"))
}

func TestSchedule_Slots(t *testing.T) {
	s, err := New(testEvent())
	require.NoError(t, err)

	slots := s.Slots()
	require.Len(t, slots, 6)
	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1].Date.Before(slots[i].Date))
	}
}

func TestSchedule_IsTomorrow(t *testing.T) {
	s, err := New(testEvent())
	require.NoError(t, err)

	friday, _ := s.Slot("friday", "09:00")
	// 23:30 UTC on the 13th is already the 14th in Berlin
	assert.False(t, s.IsTomorrow(friday.Date, time.Date(2025, 3, 13, 23, 30, 0, 0, time.UTC)))
	assert.True(t, s.IsTomorrow(friday.Date, time.Date(2025, 3, 13, 12, 0, 0, 0, time.UTC)))
}
