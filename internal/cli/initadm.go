package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/cli/appctx"
	"github.com/lherron/importlink/internal/db"
)

var initAdmCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the importlink database",
	Long: `Initialize creates the SQLite database and runs migrations.

With --local the database is created at .importlink/importlink.db in the
current directory, which importlink then picks up automatically when run
from here.`,
	RunE: appctx.WithApp(appctx.Options{}, runInitAdm),
}

var initAdmLocal bool

func init() {
	rootAdmCmd.AddCommand(initAdmCmd)

	initAdmCmd.Flags().BoolVar(&initAdmLocal, "local", false, "Create the database under ./.importlink")
}

func runInitAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	dbPath := app.Config.DBPath
	if initAdmLocal && !cmd.Flags().Changed("db") {
		dbPath = filepath.Join(".importlink", "importlink.db")
	}

	dbExists := false
	if _, err := os.Stat(dbPath); err == nil {
		dbExists = true
	}

	// Open database (creates file if it doesn't exist)
	database, err := db.Open(dbPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}

	out := cmd.OutOrStdout()
	ok := newStyles(out).pass.Render(iconPass)
	if !dbExists {
		fmt.Fprintf(out, "%s Initialized new database at %s\n", ok, dbPath)
	} else {
		fmt.Fprintf(out, "%s Database already initialized at %s\n", ok, dbPath)
	}
	fmt.Fprintf(out, "%s Migrations applied (%d new)\n", ok, len(applied))
	return nil
}
