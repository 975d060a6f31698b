package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"boothbook/internal/config"
	"boothbook/internal/database"
	"boothbook/internal/domain"
	"boothbook/internal/logging"
	"boothbook/internal/metrics"
	"boothbook/internal/reminder"
	"boothbook/internal/schedule"
	"boothbook/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

// ReminderRunner triggers one reminder pass on demand.
type ReminderRunner interface {
	Run(ctx context.Context) (reminder.Result, error)
}

// Deps are the services behind the HTTP API. Reminders and Outbox are
// optional.
type Deps struct {
	Booking   *service.BookingService
	Settings  *service.SettingsService
	Audit     *service.AuditService
	Schedule  *schedule.Schedule
	Auth      *AdminAuth
	Store     domain.Store
	Reminders ReminderRunner
	Outbox    *database.DB
}

// HTTPServer serves the public booking API and the admin panel API.
type HTTPServer struct {
	cfg     config.HTTPConfig
	deps    Deps
	proxies proxyTrust
	server  *http.Server
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewHTTPServer(cfg config.HTTPConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		deps:   deps,
		logger: logging.Component(logger, "http"),
		now:    time.Now,
	}
	proxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		srv.logger.Error().Err(err).Msg("ignoring trusted_proxies, X-Forwarded-For will not be honoured")
	}
	srv.proxies = proxies

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}
	return srv
}

// Handler returns the routed handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/event", s.handleEvent)
	mux.HandleFunc("GET /api/availability", s.handleAvailability)
	mux.HandleFunc("POST /api/book", s.handleBook)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/appointments/{id}", s.handleGetAppointment)

	mux.HandleFunc("POST /api/admin/login", s.handleLogin)
	admin := s.deps.Auth.Require
	mux.HandleFunc("POST /api/admin/logout", admin(s.handleLogout))
	mux.HandleFunc("GET /api/admin/appointments", admin(s.handleListAppointments))
	mux.HandleFunc("POST /api/admin/appointments/bulk-delete", admin(s.handleBulkDelete))
	mux.HandleFunc("POST /api/admin/appointments/{id}/{action}", admin(s.handleTransition))
	mux.HandleFunc("DELETE /api/admin/appointments/{id}", admin(s.handleDelete))
	mux.HandleFunc("GET /api/admin/settings", admin(s.handleGetSettings))
	mux.HandleFunc("PUT /api/admin/settings", admin(s.handleUpdateSettings))
	mux.HandleFunc("GET /api/admin/audit", admin(s.handleAudit))
	mux.HandleFunc("GET /api/admin/debug-slots", admin(s.handleDebugSlots))
	mux.HandleFunc("GET /api/admin/export", admin(s.handleExport))
	mux.HandleFunc("POST /api/admin/reminders/run", admin(s.handleRunReminders))
	mux.HandleFunc("GET /api/admin/notifications", admin(s.handleNotifications))

	return s.loggingMiddleware(s.recoverMiddleware(mux))
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, strconv.Itoa(recorder.status))

		ev := s.logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Str("ip", s.proxies.clientIP(r)).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// writeServiceError maps domain errors onto HTTP statuses. Infrastructure
// failures are logged with their cause and reported generically.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *service.ValidationError
	var limited *service.RateLimitError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": validation.Message,
			"field": validation.Field,
		})
	case errors.As(err, &limited):
		retry := limited.RetryAfter(s.now())
		w.Header().Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
		writeError(w, http.StatusTooManyRequests, limited.Error())
	case errors.Is(err, service.ErrSlotFull),
		errors.Is(err, service.ErrDuplicateEmail),
		errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, rootMessage(err))
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, service.ErrNotFound.Error())
	case errors.Is(err, service.ErrMaintenance):
		writeError(w, http.StatusServiceUnavailable, service.ErrMaintenance.Error())
	case errors.Is(err, service.ErrStoreUnavailable):
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("store unavailable")
		writeError(w, http.StatusServiceUnavailable, service.ErrStoreUnavailable.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func rootMessage(err error) string {
	for _, sentinel := range []error{service.ErrSlotFull, service.ErrDuplicateEmail, service.ErrInvalidTransition} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
