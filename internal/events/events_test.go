package events

import (
	"bytes"
	"errors"
	"testing"

	"boothbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus(nil)

	var received *Event
	var callCount int
	bus.Subscribe(EventAppointmentCreated, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	payload := AppointmentEventPayload{Appointment: models.Appointment{ID: "a1", Status: models.StatusPending}}
	require.NoError(t, bus.PublishJSON(EventAppointmentCreated, payload))

	require.Equal(t, 1, callCount)
	assert.Equal(t, EventAppointmentCreated, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded AppointmentEventPayload
	require.NoError(t, received.Decode(&decoded))
	assert.Equal(t, "a1", decoded.Appointment.ID)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	var count1, count2, countAll int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })
	bus.SubscribeAll(func(_ *Event) error { countAll++; return nil })

	bus.Publish(&Event{Type: "event"})
	bus.Publish(&Event{Type: "other"})

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
	assert.Equal(t, 2, countAll)
}

func TestEventBusHandlerErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	bus := NewEventBus(&logger)

	var secondCalled bool
	bus.Subscribe("event", func(_ *Event) error { return errors.New("smtp down") })
	bus.Subscribe("event", func(_ *Event) error { secondCalled = true; return nil })

	bus.Publish(&Event{Type: "event"})

	assert.True(t, secondCalled)
	assert.Contains(t, buf.String(), "smtp down")
}

func TestEventBusNilSafe(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON("x", nil))
}

func TestEventBusMarshalError(t *testing.T) {
	bus := NewEventBus(nil)
	assert.Error(t, bus.PublishJSON("x", make(chan int)))
}
