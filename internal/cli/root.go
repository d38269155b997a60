package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "importlink",
	Short: "Import records and relink their cross-record references",
	Long: `importlink imports a stream of records exported from another system
into a host store. It decides which records may be created, stamps each
created record with a stable identity derived from its origin id, and
rewrites the references between records from origin ids to the ids the
host assigned.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides IMPORTLINK_DB_PATH)")
	rootCmd.PersistentFlags().String("relations", "", "Relation table YAML file (overrides IMPORTLINK_RELATIONS_FILE)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}
