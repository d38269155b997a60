package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/cli/appctx"
	"github.com/lherron/importlink/internal/db"
)

var migrateAdmCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run any pending database migrations",
	Long: `Migrate applies any pending SQL migrations to the database.

Migrations are embedded in the binary and tracked via the schema_migrations
table. Each migration file (e.g., 000001_baseline.sql) is applied exactly once,
so the command is safe to run multiple times.

Use --dry-run to see which migrations would be applied without running them.
Use --status to show the current migration status.`,
	RunE: appctx.WithApp(appctx.Options{}, runMigrateAdm),
}

var (
	migrateDryRun bool
	migrateStatus bool
)

func init() {
	rootAdmCmd.AddCommand(migrateAdmCmd)

	migrateAdmCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show which migrations would be applied without running them")
	migrateAdmCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show current migration status")
}

// migrate opens the database itself: the shared bootstrap refuses databases
// with pending migrations.
func runMigrateAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	database, err := db.Open(app.Config.DBPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	if migrateStatus {
		return showMigrationStatus(out, database)
	}
	if migrateDryRun {
		return showPendingMigrations(out, database)
	}

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}
	app.Logger.Debug("migrations applied", "db", database.Path(), "count", len(applied))

	if len(applied) == 0 {
		fmt.Fprintln(out, "Database is up to date. No migrations to apply.")
		return nil
	}
	ok := newStyles(out).pass.Render(iconPass)
	for _, m := range applied {
		fmt.Fprintf(out, "%s Applied migration: %s\n", ok, m)
	}
	fmt.Fprintf(out, "\nApplied %d migration(s).\n", len(applied))
	return nil
}

func showMigrationStatus(out io.Writer, database *db.DB) error {
	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}
	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return nil
	}

	modified, err := database.ModifiedMigrations()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to verify migration checksums: %w", err))
	}
	changed := make(map[string]bool, len(modified))
	for _, m := range modified {
		changed[m] = true
	}

	st := newStyles(out)
	listMigrations(out, "Applied migrations:", applied, func(m string) string {
		if changed[m] {
			return st.warn.Render(iconWarn)
		}
		return st.pass.Render(iconPass)
	})
	if len(applied) > 0 && len(pending) > 0 {
		fmt.Fprintln(out)
	}
	listMigrations(out, "Pending migrations:", pending, pendingMark)
	if len(modified) > 0 {
		fmt.Fprintf(out, "\n%d applied migration(s) differ from this build.\n", len(modified))
	}
	return nil
}

func showPendingMigrations(out io.Writer, database *db.DB) error {
	_, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations. Database is up to date.")
		return nil
	}
	listMigrations(out, "Pending migrations (would be applied):", pending, pendingMark)
	fmt.Fprintf(out, "\nTotal: %d migration(s) would be applied.\n", len(pending))
	return nil
}

func pendingMark(string) string { return "○" }

func listMigrations(out io.Writer, title string, names []string, mark func(string) string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintln(out, title)
	for _, m := range names {
		fmt.Fprintf(out, "  %s %s\n", mark(m), m)
	}
}
