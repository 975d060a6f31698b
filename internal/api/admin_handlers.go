package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"boothbook/internal/export"
	"boothbook/internal/models"
	"boothbook/internal/service"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	ip := s.proxies.clientIP(r)
	token, session, err := s.deps.Auth.Login(ip, body.Username, body.Password)
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case errors.Is(err, ErrInvalidCredentials):
		s.logger.Warn().Str("ip", ip).Msg("admin login failed")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		s.writeServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/api/admin",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteStrictMode,
	})
	s.deps.Audit.Log(r.Context(), models.AuditAdminLogin, "admin signed in from "+ip, "", session.Username)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresAt": session.ExpiresAt,
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if session, ok := sessionFromContext(r.Context()); ok {
		if err := s.deps.Auth.Revoke(r.Context(), session); err != nil {
			s.logger.Warn().Err(err).Msg("revoke admin session failed")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/api/admin",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.ListFilter{
		Status: models.Status(strings.TrimSpace(q.Get("status"))),
		Day:    q.Get("day"),
		Query:  q.Get("q"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	appts, err := s.deps.Booking.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	counts := make(map[models.Status]int)
	for _, a := range appts {
		counts[a.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": appts,
		"total":        len(appts),
		"byStatus":     counts,
	})
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		appt *models.Appointment
		err  error
	)
	switch r.PathValue("action") {
	case "confirm":
		appt, err = s.deps.Booking.Confirm(r.Context(), id)
	case "reject":
		appt, err = s.deps.Booking.Reject(r.Context(), id)
	case "cancel":
		appt, err = s.deps.Booking.Cancel(r.Context(), id, models.ActorAdmin)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Booking.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleBulkDelete accepts {"ids": [...]} or ?ids=a,b,c.
func (s *HTTPServer) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if raw := r.URL.Query().Get("ids"); raw != "" {
		body.IDs = splitCSV(raw)
	} else if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	deleted, err := s.deps.Booking.BulkDelete(r.Context(), body.IDs)
	if err != nil {
		s.logger.Error().Err(err).Int("deleted", deleted).Msg("bulk delete incomplete")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   service.ErrStoreUnavailable.Error(),
			"deleted": deleted,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Settings.Get(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *HTTPServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	settings, err := s.deps.Settings.Update(r.Context(), patch, models.ActorAdmin)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	entries, err := s.deps.Audit.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleDebugSlots(w http.ResponseWriter, r *http.Request) {
	diag, err := s.deps.Booking.DebugSlots(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	over, orphaned := 0, 0
	for _, d := range diag {
		if d.OverCapacity {
			over++
		}
		if d.Orphaned {
			orphaned++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": diag, "overCapacity": over, "orphaned": orphaned})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	appts, err := s.deps.Booking.List(r.Context(), service.ListFilter{})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	slots, err := s.deps.Booking.Availability(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	loc := s.deps.Schedule.Location()
	filename := fmt.Sprintf("appointments_%s.xlsx", s.now().In(loc).Format("20060102_1504"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.Write(w, appts, slots, loc); err != nil {
		// заголовки уже отправлены, остаётся только залогировать
		s.logger.Error().Err(err).Msg("export failed")
	}
}

func (s *HTTPServer) handleRunReminders(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reminders == nil {
		writeError(w, http.StatusNotImplemented, "reminders are disabled")
		return
	}
	res, err := s.deps.Reminders.Run(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleNotifications summarises the side-effect outbox.
func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.Outbox == nil {
		writeError(w, http.StatusNotImplemented, "notification outbox is disabled")
		return
	}
	counts, err := s.deps.Outbox.CountByStatus(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	failed, err := s.deps.Outbox.GetFailedTasks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts, "failed": failed})
}
