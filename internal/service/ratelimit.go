package service

import (
	"context"
	"encoding/json"
	"time"

	"boothbook/internal/domain"
	"boothbook/internal/metrics"
	"boothbook/internal/models"

	"github.com/rs/zerolog"
)

// RateDecision is the outcome of one rate limit check.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a fixed-window counter per client IP stored as one entry per
// IP. Store failures let the request through.
type RateLimiter struct {
	store  domain.Store
	logger *zerolog.Logger
	now    func() time.Time
}

func NewRateLimiter(store domain.Store, logger *zerolog.Logger) *RateLimiter {
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

func (r *RateLimiter) Check(ctx context.Context, clientIP string, settings models.Settings) RateDecision {
	if !settings.RateLimitingEnabled {
		return RateDecision{Allowed: true, Remaining: -1}
	}

	limit := settings.RateLimitMaxRequests
	window := time.Duration(settings.RateLimitWindowMinutes) * time.Minute
	now := r.now()
	key := rateLimitKey(clientIP)

	var entry models.RateLimitEntry
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn().Err(err).Str("ip", clientIP).Msg("rate limit read failed, allowing request")
		return RateDecision{Allowed: true, Remaining: -1}
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &entry); err != nil {
			r.logger.Warn().Err(err).Str("ip", clientIP).Msg("corrupt rate limit entry, resetting")
			raw = nil
		}
	}

	var decision RateDecision
	switch {
	case raw == nil || !now.Before(entry.FirstRequest.Add(window)):
		entry = models.RateLimitEntry{Requests: 1, FirstRequest: now}
		decision = RateDecision{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}
	case entry.Requests >= limit:
		decision = RateDecision{Allowed: false, Remaining: 0, ResetAt: entry.FirstRequest.Add(window)}
	default:
		entry.Requests++
		decision = RateDecision{Allowed: true, Remaining: limit - entry.Requests, ResetAt: entry.FirstRequest.Add(window)}
	}

	// one write per request; the TTL outlives the window so idle IPs vanish
	data, _ := json.Marshal(entry)
	if err := r.store.Put(ctx, key, data, window+models.RateLimitGraceTTL*time.Second); err != nil {
		r.logger.Warn().Err(err).Str("ip", clientIP).Msg("rate limit write failed, allowing request")
		return RateDecision{Allowed: true, Remaining: -1}
	}

	if !decision.Allowed {
		metrics.IncRateLimited()
	}
	return decision
}
