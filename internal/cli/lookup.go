package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/cli/appctx"
	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/id"
	"github.com/lherron/importlink/internal/identity"
	"github.com/lherron/importlink/internal/render"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <kind> <origin-id>...",
	Short: "Resolve origin ids to host record ids",
	Long: `Lookup resolves origin ids of one kind through the configured identity
store. Ids that are not found are listed with an empty NEW_ID and make the
command exit with status 5.`,
	Args: cobra.MinimumNArgs(2),
	RunE: appctx.WithApp(appctx.WithEngine(), runLookup),
}

var hashCmd = &cobra.Command{
	Use:   "hash <kind> <origin-id>...",
	Short: "Print identity tokens",
	Long: `Hash prints the identity token each origin id of a kind is stored under,
and the attribute key the attribute backend uses for it. No database is
needed.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runHash,
}

var (
	lookupFormat string
	hashFormat   string
)

func init() {
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(hashCmd)

	addFormatFlag(lookupCmd, &lookupFormat)
	addFormatFlag(hashCmd, &hashFormat)
}

type lookupView struct {
	Kind     domain.Kind `json:"kind" yaml:"kind"`
	OriginID string      `json:"origin_id" yaml:"origin_id"`
	NewID    int64       `json:"new_id,omitempty" yaml:"new_id,omitempty"`
	Found    bool        `json:"found" yaml:"found"`
}

func runLookup(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := newRenderer(cmd, lookupFormat)
	if err != nil {
		return err
	}
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}

	var items []any
	table := render.Table{Headers: []string{"KIND", "ORIGIN", "NEW_ID"}}
	missing := 0
	for _, origin := range args[1:] {
		v := lookupView{Kind: kind, OriginID: origin}
		newID, err := app.Identity.Get(cmd.Context(), kind, origin)
		switch {
		case errors.Is(err, identity.ErrNotFound):
			missing++
		case err != nil:
			return exitError(1, err)
		default:
			v.NewID, v.Found = newID, true
		}
		cell := ""
		if v.Found {
			cell = id.FormatNewID(v.NewID)
		}
		items = append(items, v)
		table.Rows = append(table.Rows, []string{string(kind), origin, cell})
	}

	if err := r.Render(items, table); err != nil {
		return err
	}
	if missing > 0 {
		return exitError(5, fmt.Errorf("%d of %d %s id(s) not found", missing, len(args)-1, kind))
	}
	return nil
}

type hashView struct {
	Kind     domain.Kind `json:"kind" yaml:"kind"`
	OriginID string      `json:"origin_id" yaml:"origin_id"`
	Key      string      `json:"key" yaml:"key"`
	Token    string      `json:"token" yaml:"token"`
}

func runHash(cmd *cobra.Command, args []string) error {
	r, err := newRenderer(cmd, hashFormat)
	if err != nil {
		return err
	}
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}

	var items []any
	table := render.Table{Headers: []string{"ORIGIN", "KEY", "TOKEN"}}
	for _, origin := range args[1:] {
		v := hashView{
			Kind:     kind,
			OriginID: origin,
			Key:      id.ExportHashKey(string(kind)),
			Token:    id.Token(string(kind), origin),
		}
		items = append(items, v)
		table.Rows = append(table.Rows, []string{origin, v.Key, v.Token})
	}
	return r.Render(items, table)
}
