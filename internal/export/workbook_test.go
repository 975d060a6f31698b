package export

import (
	"bytes"
	"testing"
	"time"

	"boothbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWrite(t *testing.T) {
	appts := []*models.Appointment{
		{
			ID:              "a1",
			Day:             "friday",
			Time:            "10:00",
			AppointmentDate: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
			Name:            "Ada",
			Email:           "ada@example.com",
			Phone:           "+4930123456",
			Status:          models.StatusConfirmed,
			CreatedAt:       time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			ID:              "a2",
			Day:             "friday",
			Time:            "10:30",
			AppointmentDate: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
			Name:            "Grace",
			Status:          models.StatusCancelled,
		},
	}
	slots := []models.SlotAvailability{
		{Day: "friday", Time: "10:00", Date: "2025-03-14", Booked: 1, Available: false},
		{Day: "friday", Time: "10:30", Date: "2025-03-14", Booked: 0, Available: true},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, appts, slots, time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{appointmentsSheet, slotsSheet}, f.GetSheetList())

	rows, err := f.GetRows(appointmentsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, appointmentHeaders, rows[0])
	assert.Equal(t, "friday", rows[1][0])
	assert.Equal(t, "14.03.2025", rows[1][2])
	assert.Equal(t, "confirmed", rows[1][3])
	assert.Equal(t, "Ada", rows[1][4])
	assert.Equal(t, "a1", rows[1][10])
	assert.Equal(t, "cancelled", rows[2][3])

	slotRows, err := f.GetRows(slotsSheet)
	require.NoError(t, err)
	require.Len(t, slotRows, 3)
	assert.Equal(t, []string{"friday", "2025-03-14", "10:00", "1", "no"}, slotRows[1])
	assert.Equal(t, []string{"friday", "2025-03-14", "10:30", "0", "yes"}, slotRows[2])
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(appointmentsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
