package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Displays version, commit, and build date information.`,
	RunE:  runVersion,
}

var versionJSON bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	return printVersion(cmd, "importlink", versionJSON, []string{
		"run", "admit", "relink", "lookup", "hash", "kinds", "version",
	})
}

func printVersion(cmd *cobra.Command, binary string, asJSON bool, commands []string) error {
	if asJSON {
		output := map[string]interface{}{
			"binary":             binary,
			"version":            Version,
			"commit":             GitCommit,
			"build_date":         BuildDate,
			"supported_commands": commands,
			"supported_formats":  []string{"table", "tsv", "json", "ndjson", "yaml"},
			"identity_backends":  []string{"attribute", "redis", "etcd"},
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(output)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", binary, Version)
	fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", GitCommit)
	fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", BuildDate)
	return nil
}
