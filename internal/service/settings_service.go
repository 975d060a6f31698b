package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"boothbook/internal/domain"
	"boothbook/internal/events"
	"boothbook/internal/models"
	"boothbook/internal/repository"

	"github.com/rs/zerolog"
)

// SettingsService serves the booking policy as an immutable, versioned value.
// Reads are cached briefly; updates replace the cached value immediately.
type SettingsService struct {
	store    domain.Store
	locker   *repository.Locker
	defaults models.Settings
	audit    *AuditService
	events   domain.EventPublisher
	logger   *zerolog.Logger
	cacheTTL time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	cached   *models.Settings
	cachedAt time.Time
}

func NewSettingsService(
	store domain.Store,
	locker *repository.Locker,
	defaults models.Settings,
	audit *AuditService,
	eventBus domain.EventPublisher,
	cacheTTL time.Duration,
	logger *zerolog.Logger,
) *SettingsService {
	return &SettingsService{
		store:    store,
		locker:   locker,
		defaults: defaults,
		audit:    audit,
		events:   eventBus,
		logger:   logger,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Get returns the current settings. Stored values are layered over the
// configured defaults. A stale cached value is served if the store fails.
func (s *SettingsService) Get(ctx context.Context) (models.Settings, error) {
	s.mu.RLock()
	if s.cached != nil && s.now().Sub(s.cachedAt) < s.cacheTTL {
		v := *s.cached
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	v, err := s.load(ctx)
	if err != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.cached != nil {
			s.logger.Warn().Err(err).Msg("settings load failed, serving cached value")
			return *s.cached, nil
		}
		return models.Settings{}, err
	}
	s.remember(v)
	return v, nil
}

func (s *SettingsService) load(ctx context.Context) (models.Settings, error) {
	v := s.defaults
	raw, err := s.store.Get(ctx, keySettings)
	if err != nil {
		return models.Settings{}, storeErr("load settings", err)
	}
	if raw == nil {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return v, nil
}

func (s *SettingsService) remember(v models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = &v
	s.cachedAt = s.now()
}

// Invalidate drops the cached value.
func (s *SettingsService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

// Update applies patch, validates the result and stores it with a bumped
// version.
func (s *SettingsService) Update(ctx context.Context, patch models.SettingsPatch, actor string) (models.Settings, error) {
	var next models.Settings
	err := s.locker.WithLock(ctx, keySettings, func() error {
		current, err := s.load(ctx)
		if err != nil {
			return err
		}
		next = patch.Apply(current)
		if err := ValidateSettings(next); err != nil {
			return err
		}
		next.Version = current.Version + 1

		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		if err := s.store.Put(ctx, keySettings, raw, 0); err != nil {
			return storeErr("save settings", err)
		}
		return nil
	})
	if errors.Is(err, repository.ErrLockTimeout) {
		return models.Settings{}, storeErr("lock settings", err)
	}
	if err != nil {
		return models.Settings{}, err
	}

	s.remember(next)
	s.audit.Log(ctx, models.AuditSettingsUpdated, fmt.Sprintf("settings updated to version %d", next.Version), "", actor)
	if err := s.events.PublishJSON(events.EventSettingsUpdated, next); err != nil {
		s.logger.Warn().Err(err).Msg("publish settings event failed")
	}
	s.logger.Info().Int64("version", next.Version).Str("actor", actor).Msg("settings updated")
	return next, nil
}

// ValidateSettings checks the admission-relevant fields.
func ValidateSettings(v models.Settings) error {
	switch {
	case v.MaxAppointmentsPerSlot < 1:
		return &ValidationError{Field: "maxAppointmentsPerSlot", Message: "must be at least 1"}
	case v.BookingMode != models.BookingModeManual && v.BookingMode != models.BookingModeAutomatic:
		return &ValidationError{Field: "bookingMode", Message: "must be manual or automatic"}
	case v.RateLimitMaxRequests < 1:
		return &ValidationError{Field: "rateLimitMaxRequests", Message: "must be at least 1"}
	case v.RateLimitWindowMinutes < 1:
		return &ValidationError{Field: "rateLimitWindowMinutes", Message: "must be at least 1"}
	case v.AdminEmail != "" && !emailPattern.MatchString(v.AdminEmail):
		return &ValidationError{Field: "adminEmail", Message: "invalid email address"}
	}
	return nil
}
