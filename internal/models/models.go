package models

import "time"

// RateLimitEntry tracks requests from one client IP inside the current window.
type RateLimitEntry struct {
	Requests     int       `json:"requests"`
	FirstRequest time.Time `json:"firstRequest"`
}

// Slot identifies one bookable unit of capacity.
type Slot struct {
	Day  string    `json:"day"`
	Time string    `json:"time"`
	Date time.Time `json:"date"`
}

// Label returns the "day-time" form shown to clients.
func (s Slot) Label() string {
	return s.Day + "-" + s.Time
}

// SlotAvailability is the public view of one slot.
type SlotAvailability struct {
	Day       string `json:"day"`
	Time      string `json:"time"`
	Date      string `json:"date"`
	Booked    int    `json:"booked"`
	Available bool   `json:"available"`
}

// SlotDiagnostic explains how a slot's active count was derived.
type SlotDiagnostic struct {
	Slot           string            `json:"slot"`
	Key            string            `json:"key"`
	AppointmentIDs []string          `json:"appointmentIds"`
	Statuses       map[string]Status `json:"statuses"`
	MissingRecords []string          `json:"missingRecords,omitempty"`
	ActiveCount    int               `json:"activeCount"`
	MaxPerSlot     int               `json:"maxPerSlot"`
	OverCapacity   bool              `json:"overCapacity"`
	// Orphaned marks an index whose key matches no configured slot.
	Orphaned bool `json:"orphaned,omitempty"`
}
