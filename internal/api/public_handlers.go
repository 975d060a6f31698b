package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"boothbook/internal/models"
	"boothbook/internal/service"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the store (and the outbox, when present)
// answers. A failover store running on its fallback is ready but degraded.
func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			checks["store"] = err.Error()
			ready = false
		} else {
			checks["store"] = "ok"
		}
		if d, ok := s.deps.Store.(interface{ Degraded() bool }); ok && d.Degraded() {
			checks["store"] = "degraded"
		}
	}
	if s.deps.Outbox != nil {
		if err := s.deps.Outbox.Ping(ctx); err != nil {
			checks["outbox"] = err.Error()
			ready = false
		} else {
			checks["outbox"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}

type eventDayView struct {
	Name  string   `json:"name"`
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// handleEvent describes the show so the booking form can render itself.
func (s *HTTPServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	days := make([]eventDayView, 0, len(s.deps.Schedule.Days()))
	for _, d := range s.deps.Schedule.Days() {
		days = append(days, eventDayView{Name: d.Name, Date: d.DateString(), Slots: d.Slots})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":            settings.EventName,
		"location":        settings.Location,
		"companyName":     settings.CompanyName,
		"contactEmail":    settings.ContactEmail,
		"contactPhone":    settings.ContactPhone,
		"timezone":        s.deps.Schedule.Location().String(),
		"slotMinutes":     int(s.deps.Schedule.SlotDuration() / time.Minute),
		"bookingMode":     settings.BookingMode,
		"maintenanceMode": settings.MaintenanceMode,
		"days":            days,
	})
}

type slotState struct {
	Booked    int  `json:"booked"`
	Available bool `json:"available"`
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Booking.Availability(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	day := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("day")))
	slots := make(map[string]slotState, len(list))
	ordered := make([]models.SlotAvailability, 0, len(list))
	for _, a := range list {
		if day != "" && a.Day != day {
			continue
		}
		slots[a.Day+"-"+a.Time] = slotState{Booked: a.Booked, Available: a.Available}
		ordered = append(ordered, a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots, "list": ordered})
}

func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var req service.BookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ClientIP = s.proxies.clientIP(r)

	res, err := s.deps.Booking.Book(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AppointmentID string `json:"appointmentId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	id := strings.TrimSpace(body.AppointmentID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "appointmentId is required")
		return
	}

	appt, err := s.deps.Booking.Cancel(r.Context(), id, models.ActorCustomer)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "appointment": appt})
}

func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := s.deps.Booking.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
