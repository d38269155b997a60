// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, database opening, and wiring of the
// import engine's collaborators to reduce boilerplate across commands.
package appctx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/config"
	"github.com/lherron/importlink/internal/db"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/identity"
	"github.com/lherron/importlink/internal/policy"
	"github.com/lherron/importlink/internal/relation"
	"github.com/lherron/importlink/internal/store"
	"github.com/lherron/importlink/internal/telemetry"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	Logger *slog.Logger

	// RunID tags log lines and event log rows written by this invocation
	RunID string

	// DB is the opened database connection (nil if NeedsDB is false or
	// the command runs dry)
	DB *db.DB

	// Store is the SQLite host on top of DB
	Store *store.Store

	// Host is what the engine writes to: Store, or an in-memory host on a
	// dry run, wrapped with telemetry when enabled.
	Host host.Host

	// Lister enumerates record attributes of Host, before instrumentation.
	Lister host.AttributeLister

	DryRun bool

	Identity identity.Store
	Table    *relation.Table
	Policy   *policy.Rules

	closers []func() error
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.Logger != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	a.DB = nil
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB indicates whether to open the database.
	NeedsDB bool

	// NeedsEngine builds the host, identity store, relation table and
	// policy. Implies NeedsDB unless the command is run with --dry-run.
	NeedsEngine bool
}

// DefaultOptions returns default options (DB required, no engine).
func DefaultOptions() Options {
	return Options{NeedsDB: true}
}

// WithEngine returns options that wire the full import engine.
func WithEngine() Options {
	return Options{NeedsDB: true, NeedsEngine: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// Everything opened is closed automatically when the wrapped function
// returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{RunID: uuid.NewString()}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	// Flags override config
	if v := flagString(cmd, "db"); v != "" {
		cfg.DBPath = v
	}
	if v := flagString(cmd, "relations"); v != "" {
		cfg.RelationsFile = v
	}
	if v := flagString(cmd, "log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	app.Logger = logger

	if f := cmd.Flag("dry-run"); f != nil && f.Value.String() == "true" && opts.NeedsEngine {
		app.DryRun = true
	}

	if opts.NeedsDB && !app.DryRun {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := database.RequiresMigrationError(); err != nil {
			database.Close()
			return nil, err
		}
		app.DB = database
		app.closers = append(app.closers, database.Close)
		app.Store = store.New(database, app.RunID)
	}

	if opts.NeedsEngine {
		if err := app.wireEngine(cmd.Context()); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

func (a *App) wireEngine(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var base host.Host
	switch {
	case a.DryRun:
		mem := host.NewMemory()
		base, a.Lister = mem, mem
	case a.Store != nil:
		base, a.Lister = a.Store, a.Store
	default:
		return fmt.Errorf("engine requires a database (set NeedsDB: true)")
	}
	a.Host = telemetry.WrapHost(base)

	table, err := a.Config.Relations()
	if err != nil {
		return fmt.Errorf("failed to load relations: %w", err)
	}
	a.Table = table

	pol, err := a.Config.Policy(a.Logger)
	if err != nil {
		return fmt.Errorf("failed to build policy: %w", err)
	}
	a.Policy = pol

	ids, closeIDs, err := identity.Open(ctx, a.Config.IdentityOptions(), a.Host)
	if err != nil {
		return fmt.Errorf("failed to open identity store: %w", err)
	}
	a.Identity = ids
	a.closers = append(a.closers, closeIDs)
	return nil
}

func flagString(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
