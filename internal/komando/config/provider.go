package config

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/avasile/komando/internal/komando/intent"
)

// Keys of the knobs the engine reads. Hosts may keep additional keys of
// their own in the same store.
const (
	KeyIntentThreshold    = "intent_confidence_threshold"
	KeyFuzzyThreshold     = "fuzzy_match_threshold"
	KeyConfirmHighRisk    = "confirm_high_risk"
	KeyConfirmMediumRisk  = "confirm_medium_risk"
	KeyConfirmLowRisk     = "confirm_low_risk"
	KeyDefaultCurrency    = "default_currency"
	KeyExternalTimeout    = "external_call_timeout"
	KeyAuditRetentionDays = "audit_retention_days"
)

// Defaults applied when a key is unset or unparseable.
const (
	DefaultIntentThreshold    = 0.6
	DefaultFuzzyThreshold     = 0.8
	DefaultCurrency           = "USD"
	DefaultExternalTimeout    = 10 * time.Second
	DefaultAuditRetentionDays = 90
)

// Provider reads engine settings from a Store, applying defaults for unset
// keys. A malformed value logs a warning and falls back to the default, so a
// bad operator edit can never stall sessions.
type Provider struct {
	store Store
}

func NewProvider(store Store) *Provider {
	return &Provider{store: store}
}

// IntentThreshold is the minimum confidence for an intent match.
func (p *Provider) IntentThreshold(ctx context.Context) float64 {
	return p.float(ctx, KeyIntentThreshold, DefaultIntentThreshold)
}

// FuzzyThreshold is the minimum registry score for entity candidates.
func (p *Provider) FuzzyThreshold(ctx context.Context) float64 {
	return p.float(ctx, KeyFuzzyThreshold, DefaultFuzzyThreshold)
}

// ConfirmationRequired reports whether intents of the given risk need an
// explicit confirmation before execution. High and medium risk default to
// requiring one; low risk does not.
func (p *Provider) ConfirmationRequired(ctx context.Context, risk intent.RiskLevel) bool {
	switch risk {
	case intent.RiskHigh:
		return p.bool(ctx, KeyConfirmHighRisk, true)
	case intent.RiskMedium:
		return p.bool(ctx, KeyConfirmMediumRisk, true)
	default:
		return p.bool(ctx, KeyConfirmLowRisk, false)
	}
}

// DefaultCurrency is applied to bare money amounts.
func (p *Provider) DefaultCurrency(ctx context.Context) string {
	v, err := p.store.Get(ctx, KeyDefaultCurrency)
	if err != nil || v == "" {
		return DefaultCurrency
	}
	return v
}

// ExternalTimeout bounds executor calls (validate, dry-run, execute).
func (p *Provider) ExternalTimeout(ctx context.Context) time.Duration {
	v, err := p.store.Get(ctx, KeyExternalTimeout)
	if err != nil {
		return DefaultExternalTimeout
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("config: invalid duration, using default", "key", KeyExternalTimeout, "value", v)
		return DefaultExternalTimeout
	}
	return d
}

// AuditRetention is how long audit entries are kept before pruning.
func (p *Provider) AuditRetention(ctx context.Context) time.Duration {
	days := p.int(ctx, KeyAuditRetentionDays, DefaultAuditRetentionDays)
	if days <= 0 {
		days = DefaultAuditRetentionDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func (p *Provider) float(ctx context.Context, key string, def float64) float64 {
	v, err := p.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("config: read failed, using default", "key", key, "err", err)
		}
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		slog.Warn("config: invalid threshold, using default", "key", key, "value", v)
		return def
	}
	return f
}

func (p *Provider) bool(ctx context.Context, key string, def bool) bool {
	v, err := p.store.Get(ctx, key)
	if err != nil {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config: invalid boolean, using default", "key", key, "value", v)
		return def
	}
	return b
}

func (p *Provider) int(ctx context.Context, key string, def int) int {
	v, err := p.store.Get(ctx, key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: invalid integer, using default", "key", key, "value", v)
		return def
	}
	return n
}
