package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/config"
	"github.com/lherron/importlink/internal/relation"
	"github.com/lherron/importlink/internal/render"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List managed kinds and their relations",
	Long: `Kinds prints the relation descriptor table in effect: the built-in kinds,
merged with the relations file when one is configured. Use -o yaml to get a
relations file that can be edited and passed back with --relations.`,
	Args: cobra.NoArgs,
	RunE: runKinds,
}

var kindsFormat string

func init() {
	rootCmd.AddCommand(kindsCmd)
	addFormatFlag(kindsCmd, &kindsFormat)
}

func runKinds(cmd *cobra.Command, args []string) error {
	r, err := newRenderer(cmd, kindsFormat)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to load config: %w", err))
	}
	if v := cmd.Flag("relations").Value.String(); v != "" {
		cfg.RelationsFile = v
	}
	table, err := cfg.Relations()
	if err != nil {
		return exitError(1, err)
	}

	// yaml output is a relations file
	if f, _ := render.ParseFormat(kindsFormat); f == render.FormatYAML {
		return r.YAML(relation.File{Kinds: table.Profiles()})
	}

	var items []any
	t := render.Table{Headers: []string{"KIND", "HASH", "PROVENANCE", "RELATIONS", "REPAIRS"}}
	for _, p := range table.Profiles() {
		items = append(items, p)
		hash := "no"
		if p.CreateHash {
			hash = "yes"
		}
		t.Rows = append(t.Rows, []string{string(p.Kind), hash, p.Provenance, describeRelations(p), strings.Join(p.Repairs, ",")})
	}
	return r.Render(items, t)
}

func describeRelations(p *relation.Profile) string {
	var parts []string
	if p.Parent != nil {
		parts = append(parts, fmt.Sprintf("%s=>%s (parent)", p.Parent.Field, p.Parent.Target))
	}
	for _, d := range p.Relations {
		s := fmt.Sprintf("%s=>%s", d.Field, d.Target)
		var flags []string
		if d.Multiple() {
			flags = append(flags, "multiple")
		}
		if d.Required {
			flags = append(flags, "required")
		}
		if len(flags) > 0 {
			s += " (" + strings.Join(flags, ",") + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}
