package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/avasile/komando/common/environment"
	"github.com/avasile/komando/common/version"
	"github.com/avasile/komando/internal/komando/app"
)

func main() {
	fmt.Printf("Komando %s\n", version.Info())

	cfg := app.Config{
		DatabasePath:       environment.StringOr("KOMANDO_DATABASE_PATH", "./komando.db"),
		CatalogPath:        environment.StringOr("KOMANDO_CATALOG_PATH", "./catalog.yaml"),
		Actor:              environment.StringOr("KOMANDO_ACTOR", "operator"),
		LogLevel:           environment.StringOr("KOMANDO_LOG_LEVEL", "info"),
		LogFormat:          environment.StringOr("KOMANDO_LOG_FORMAT", "text"),
		SeedDemo:           environment.BoolOr("KOMANDO_SEED_DEMO", true),
		IntentThreshold:    environment.Float64Or("KOMANDO_INTENT_THRESHOLD", 0),
		ExternalTimeout:    environment.DurationOr("KOMANDO_EXTERNAL_TIMEOUT", 0),
		AuditRetentionDays: environment.IntOr("KOMANDO_AUDIT_RETENTION_DAYS", 0),
	}

	host, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Komando: %v\n", err)
		os.Exit(1)
	}
	defer host.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := host.Run(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Komando: %v\n", err)
		os.Exit(1)
	}
}
