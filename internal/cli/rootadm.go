package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rootAdmCmd = &cobra.Command{
	Use:   "importlinkadm",
	Short: "Administrative CLI for the importlink database",
	Long: `importlinkadm is the administrative companion to importlink. It handles
database lifecycle (init, migrate), reads the event log and checks the
database for integrity problems.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteAdmin runs the admin root command
func ExecuteAdmin(ctx context.Context) error {
	return rootAdmCmd.ExecuteContext(ctx)
}

func init() {
	rootAdmCmd.PersistentFlags().String("db", "", "Path to database file (overrides IMPORTLINK_DB_PATH)")
	rootAdmCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}
