package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"boothbook/internal/domain"
	"boothbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditService appends audit entries as individual expiring keys and reads
// them back newest first.
type AuditService struct {
	store     domain.Store
	retention time.Duration
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewAuditService(store domain.Store, retentionDays int, logger *zerolog.Logger) *AuditService {
	if retentionDays <= 0 {
		retentionDays = models.DefaultAuditRetentionDays
	}
	return &AuditService{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *AuditService) Record(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	if entry.User == "" {
		entry.User = models.ActorSystem
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	if err := s.store.Put(ctx, auditKey(entry.Timestamp, entry.ID), raw, s.retention); err != nil {
		return storeErr("write audit entry", err)
	}
	return nil
}

// Log records an entry and only logs a failure; auditing never fails the
// operation that triggered it.
func (s *AuditService) Log(ctx context.Context, action, details, appointmentID, user string) {
	err := s.Record(ctx, models.AuditEntry{
		Action:        action,
		Details:       details,
		AppointmentID: appointmentID,
		User:          user,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("action", action).Str("appointment_id", appointmentID).Msg("audit write failed")
	}
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns everything still retained.
func (s *AuditService) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	keys, err := s.store.Keys(ctx, keyAuditPrefix)
	if err != nil {
		return nil, storeErr("list audit entries", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	out := make([]models.AuditEntry, 0, len(keys))
	for _, key := range keys {
		if limit > 0 && len(out) >= limit {
			break
		}
		raw, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, storeErr("load audit entry", err)
		}
		if raw == nil {
			continue
		}
		var entry models.AuditEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("skipping corrupt audit entry")
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
