package config_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/avasile/komando/internal/komando/config"
	"github.com/avasile/komando/internal/komando/intent"
	"github.com/avasile/komando/internal/komando/store"
)

func newTestStore(t *testing.T) config.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return config.New(db)
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("Get missing: %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, config.KeyDefaultCurrency, "EUR"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get(ctx, config.KeyDefaultCurrency)
	if err != nil || v != "EUR" {
		t.Fatalf("Get = %q, %v", v, err)
	}

	// Overwrite.
	if err := s.Set(ctx, config.KeyDefaultCurrency, "BDT"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, _ := s.Get(ctx, config.KeyDefaultCurrency); v != "BDT" {
		t.Fatalf("Get after overwrite = %q", v)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || all[config.KeyDefaultCurrency] != "BDT" {
		t.Fatalf("List = %v", all)
	}

	if err := s.Delete(ctx, config.KeyDefaultCurrency); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, config.KeyDefaultCurrency); !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if err := s.Delete(ctx, config.KeyDefaultCurrency); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestProviderDefaults(t *testing.T) {
	p := config.NewProvider(config.Static{})
	ctx := context.Background()

	if got := p.IntentThreshold(ctx); got != config.DefaultIntentThreshold {
		t.Errorf("IntentThreshold = %v", got)
	}
	if got := p.FuzzyThreshold(ctx); got != config.DefaultFuzzyThreshold {
		t.Errorf("FuzzyThreshold = %v", got)
	}
	if got := p.DefaultCurrency(ctx); got != "USD" {
		t.Errorf("DefaultCurrency = %q", got)
	}
	if got := p.ExternalTimeout(ctx); got != config.DefaultExternalTimeout {
		t.Errorf("ExternalTimeout = %v", got)
	}
	if got := p.AuditRetention(ctx); got != 90*24*time.Hour {
		t.Errorf("AuditRetention = %v", got)
	}
	if !p.ConfirmationRequired(ctx, intent.RiskHigh) {
		t.Errorf("high risk should require confirmation by default")
	}
	if !p.ConfirmationRequired(ctx, intent.RiskMedium) {
		t.Errorf("medium risk should require confirmation by default")
	}
	if p.ConfirmationRequired(ctx, intent.RiskLow) {
		t.Errorf("low risk should not require confirmation by default")
	}
}

func TestProviderReadsOverrides(t *testing.T) {
	s := config.Static{
		config.KeyIntentThreshold:   "0.75",
		config.KeyConfirmMediumRisk: "false",
		config.KeyConfirmLowRisk:    "true",
		config.KeyDefaultCurrency:   "EUR",
		config.KeyExternalTimeout:   "30s",
		config.KeyAuditRetentionDays: "7",
	}
	p := config.NewProvider(s)
	ctx := context.Background()

	if got := p.IntentThreshold(ctx); got != 0.75 {
		t.Errorf("IntentThreshold = %v", got)
	}
	if p.ConfirmationRequired(ctx, intent.RiskMedium) {
		t.Errorf("medium risk override ignored")
	}
	if !p.ConfirmationRequired(ctx, intent.RiskLow) {
		t.Errorf("low risk override ignored")
	}
	if got := p.DefaultCurrency(ctx); got != "EUR" {
		t.Errorf("DefaultCurrency = %q", got)
	}
	if got := p.ExternalTimeout(ctx); got != 30*time.Second {
		t.Errorf("ExternalTimeout = %v", got)
	}
	if got := p.AuditRetention(ctx); got != 7*24*time.Hour {
		t.Errorf("AuditRetention = %v", got)
	}
}

func TestProviderRejectsMalformedValues(t *testing.T) {
	s := config.Static{
		config.KeyIntentThreshold: "1.7",
		config.KeyConfirmHighRisk: "yes please",
		config.KeyExternalTimeout: "soon",
	}
	p := config.NewProvider(s)
	ctx := context.Background()

	if got := p.IntentThreshold(ctx); got != config.DefaultIntentThreshold {
		t.Errorf("out-of-range threshold not rejected: %v", got)
	}
	if !p.ConfirmationRequired(ctx, intent.RiskHigh) {
		t.Errorf("malformed boolean should fall back to requiring confirmation")
	}
	if got := p.ExternalTimeout(ctx); got != config.DefaultExternalTimeout {
		t.Errorf("malformed duration not rejected: %v", got)
	}
}
