// Package app wires the Komando engine into a runnable reference host: a
// SQLite-backed store, a demo entity registry and executors, and an
// interactive loop that drives command sessions from stdin.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avasile/komando/internal/komando/audit"
	"github.com/avasile/komando/internal/komando/config"
	"github.com/avasile/komando/internal/komando/executor"
	"github.com/avasile/komando/internal/komando/intent"
	"github.com/avasile/komando/internal/komando/observability"
	"github.com/avasile/komando/internal/komando/registry"
	"github.com/avasile/komando/internal/komando/session"
	"github.com/avasile/komando/internal/komando/slot"
	"github.com/avasile/komando/internal/komando/store"
)

// Config is the host configuration, loaded from the environment by main.
// The zero value of an override field means "keep the stored setting".
type Config struct {
	DatabasePath string
	CatalogPath  string
	Actor        string
	LogLevel     string
	LogFormat    string

	// SeedDemo populates the entity registry with demo partners and
	// products on first run.
	SeedDemo bool

	// Overrides written into the config store at startup when non-zero.
	IntentThreshold    float64
	ExternalTimeout    time.Duration
	AuditRetentionDays int
}

// App owns the wired engine components for the reference host.
type App struct {
	cfg      Config
	store    *store.Store
	loader   *intent.Loader
	manager  *session.Manager
	sink     *audit.SQLiteSink
	provider *config.Provider
	logger   *slog.Logger
}

// New builds the host: opens the database, loads (or seeds) the intent
// catalog and demo entities, registers the demo executors, and prunes expired
// audit entries.
func New(cfg Config) (*App, error) {
	observability.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := slog.Default()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	settings := config.New(db)
	sink := audit.NewSQLiteSink(db.DB())

	ctx := context.Background()
	if err := applyOverrides(ctx, settings, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply config overrides: %w", err)
	}
	provider := config.NewProvider(settings)
	cutoff := provider.AuditRetention(ctx)
	if pruned, err := sink.PruneOlderThan(ctx, nowUTC().Add(-cutoff)); err != nil {
		logger.Warn("audit prune failed", "err", err)
	} else if pruned > 0 {
		logger.Info("pruned expired audit entries", "count", pruned)
	}

	if err := ensureCatalogFile(cfg.CatalogPath); err != nil {
		db.Close()
		return nil, err
	}
	loader, err := intent.LoadFile(cfg.CatalogPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	reg := registry.NewSQLite(db.DB())
	if cfg.SeedDemo {
		if err := seedEntities(ctx, db, reg); err != nil {
			db.Close()
			return nil, err
		}
	}

	execs := executor.NewRegistry()
	registerDemoExecutors(execs)

	manager := session.NewManager(
		loader,
		slot.NewExtractor(reg),
		execs,
		sink,
		provider,
		session.WithSnapshots(db),
		session.WithLogger(logger),
	)

	return &App{
		cfg:      cfg,
		store:    db,
		loader:   loader,
		manager:  manager,
		sink:     sink,
		provider: provider,
		logger:   logger,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.store.Close()
}

// Run drives command sessions from in until EOF, "quit", or ctx cancellation.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Type a command (e.g. \"sell 5 chocolates to topu\"), or \"quit\".")

	scanner := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch {
		case text == "":
			continue
		case text == "quit" || text == "exit":
			return nil
		}

		if err := a.runSession(ctx, scanner, out, text); err != nil {
			return err
		}
	}
}

// runSession converses one session through to a terminal state.
func (a *App) runSession(ctx context.Context, scanner *bufio.Scanner, out io.Writer, text string) error {
	v, err := a.manager.Start(ctx, a.cfg.Actor, text)
	if errors.Is(err, session.ErrIntentNotRecognized) {
		fmt.Fprintln(out, "Sorry, I did not understand that command.")
		return nil
	}
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return nil
	}

	retried := false
	for {
		switch v.State {
		case session.StateMissingSlots:
			fmt.Fprintln(out, v.NextQuestion())
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			answer := strings.TrimSpace(scanner.Text())
			if answer == "abort" {
				v, err = a.manager.Abort(ctx, v.ID)
				if err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
					return nil
				}
				continue
			}
			next, ferr := a.manager.FillSlot(ctx, v.ID, v.Missing[0], answer)
			var aerr *session.AmbiguousEntityError
			switch {
			case errors.As(ferr, &aerr):
				v = next
			case errors.Is(ferr, slot.ErrNoValue):
				fmt.Fprintln(out, "I could not read that as an answer.")
			case ferr != nil:
				fmt.Fprintf(out, "Error: %v\n", ferr)
			default:
				v = next
			}

		case session.StateReady:
			next, serr := a.manager.Simulate(ctx, v.ID)
			if len(executor.Validation(serr)) > 0 {
				v = next
				continue
			}
			if serr != nil {
				fmt.Fprintf(out, "Error: %v\n", serr)
				return nil
			}
			v = next
			fmt.Fprintln(out, v.Plan.Render())

		case session.StateAwaitingConfirmation:
			fmt.Fprintln(out, "Proceed? (yes/no)")
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if answer == "yes" || answer == "y" {
				v, err = a.manager.Confirm(ctx, v.ID)
			} else {
				v, err = a.manager.Abort(ctx, v.ID)
			}
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				return nil
			}

		case session.StateConfirmed:
			next, xerr := a.manager.Execute(ctx, v.ID)
			if xerr != nil {
				fmt.Fprintf(out, "Execution failed: %v\n", xerr)
				if next != nil && next.State == session.StateConfirmed && !retried {
					// Transient; retry once.
					retried = true
					v = next
					continue
				}
				return nil
			}
			v = next

		case session.StateExecuted:
			fmt.Fprintln(out, v.Result.Message)
			usage := a.loader.UsageFor(v.IntentKey)
			a.logger.Debug("intent usage",
				"intent", v.IntentKey, "matched", usage.Matched, "executed", usage.Executed)
			return nil

		case session.StateAborted:
			fmt.Fprintln(out, "Command aborted.")
			return nil

		case session.StateFailed:
			fmt.Fprintln(out, "Command failed; see the audit log.")
			return nil

		default:
			return fmt.Errorf("unexpected session state %s", v.State)
		}
	}
}

// applyOverrides writes non-zero host overrides into the config store, so
// the provider and any later inspection of the table agree on the values.
func applyOverrides(ctx context.Context, settings config.Store, cfg Config) error {
	if cfg.IntentThreshold > 0 {
		v := strconv.FormatFloat(cfg.IntentThreshold, 'f', -1, 64)
		if err := settings.Set(ctx, config.KeyIntentThreshold, v); err != nil {
			return err
		}
	}
	if cfg.ExternalTimeout > 0 {
		if err := settings.Set(ctx, config.KeyExternalTimeout, cfg.ExternalTimeout.String()); err != nil {
			return err
		}
	}
	if cfg.AuditRetentionDays > 0 {
		if err := settings.Set(ctx, config.KeyAuditRetentionDays, strconv.Itoa(cfg.AuditRetentionDays)); err != nil {
			return err
		}
	}
	return nil
}

// ensureCatalogFile writes the demo catalog when the path does not exist yet,
// so a fresh checkout runs out of the box.
func ensureCatalogFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat catalog: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultCatalog), 0o644); err != nil {
		return fmt.Errorf("write default catalog: %w", err)
	}
	slog.Info("wrote default intent catalog", "path", path)
	return nil
}

// seedEntities loads the demo partners and products on first run.
func seedEntities(ctx context.Context, db *store.Store, reg *registry.SQLite) error {
	var count int
	if err := db.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&count); err != nil {
		return fmt.Errorf("count entities: %w", err)
	}
	if count > 0 {
		return nil
	}
	seeds := map[string][]string{
		"partner": {"Topu Rahman", "Tanya Akter", "Acme Trading"},
		"product": {"Chocolate", "Chocolate Cake", "Green Tea"},
	}
	for kind, names := range seeds {
		for _, name := range names {
			if _, err := reg.Create(ctx, kind, name); err != nil {
				return fmt.Errorf("seed %s %q: %w", kind, name, err)
			}
		}
	}
	slog.Info("seeded demo entities")
	return nil
}
