package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/cli/appctx"
	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/id"
	"github.com/lherron/importlink/internal/parse"
	"github.com/lherron/importlink/internal/relink"
	"github.com/lherron/importlink/internal/render"
)

var relinkCmd = &cobra.Command{
	Use:   "relink <kind> <new-id>",
	Short: "Relink one already-created record",
	Long: `Relink runs the relinking engine for a record that already exists in the
database. The record's raw fields are given with --field name=value flags or
as a JSON object or YAML mapping with --fields (use - for standard input).

--diff prints a unified diff of the record's attributes before and after.

Examples:
  importlink relink order 301 --field id=9 --field _tickets_in_order=14,15
  importlink relink attendee 410 --fields attendee.json --diff`,
	Args: cobra.ExactArgs(2),
	RunE: appctx.WithApp(appctx.WithEngine(), runRelink),
}

var (
	relinkFields     []string
	relinkFieldsFile string
	relinkDiff       bool
	relinkFormat     string
)

func init() {
	rootCmd.AddCommand(relinkCmd)

	relinkCmd.Flags().StringArrayVarP(&relinkFields, "field", "f", nil, "Raw field as name=value (repeatable)")
	relinkCmd.Flags().StringVar(&relinkFieldsFile, "fields", "", "JSON or YAML document of raw fields (- for stdin)")
	relinkCmd.Flags().BoolVar(&relinkDiff, "diff", false, "Show a unified diff of the record's attributes")
	addFormatFlag(relinkCmd, &relinkFormat)
}

func runRelink(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := newRenderer(cmd, relinkFormat)
	if err != nil {
		return err
	}
	kind, err := parseKind(args[0])
	if err != nil {
		return err
	}
	newID, err := id.ParseNewID(args[1])
	if err != nil {
		return exitError(2, err)
	}
	fields, err := relinkInputFields(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	actual, err := app.Host.Kind(ctx, newID)
	if err != nil {
		return exitError(1, fmt.Errorf("record %d: %w", newID, err))
	}
	if actual != string(kind) {
		return exitError(1, &domain.KindMismatchError{NewID: newID, Declared: kind, Actual: actual})
	}

	var before []string
	if relinkDiff {
		before = attributeLines(cmd, app.Lister, newID)
	}

	engine, err := relink.New(app.Table, app.Host, app.Identity, relink.WithLogger(app.Logger.With("run_id", app.RunID)))
	if err != nil {
		return exitError(1, err)
	}
	report := engine.Relink(ctx, newID, kind, fields)

	if err := r.Render([]any{report}, reportTable(report)); err != nil {
		return err
	}

	if relinkDiff {
		after := attributeLines(cmd, app.Lister, newID)
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        before,
			B:        after,
			FromFile: fmt.Sprintf("record %d (before)", newID),
			ToFile:   fmt.Sprintf("record %d (after)", newID),
			Context:  3,
		})
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "\nNo attribute changes.")
		} else {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprint(cmd.OutOrStdout(), diff)
		}
	}

	if err := report.Err(); err != nil {
		return exitError(5, err)
	}
	return nil
}

func relinkInputFields(cmd *cobra.Command) (domain.Fields, error) {
	fields, err := readFieldFlags(relinkFields)
	if err != nil {
		return nil, err
	}
	if relinkFieldsFile == "" {
		return fields, nil
	}

	var data []byte
	if relinkFieldsFile == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(relinkFieldsFile)
	}
	if err != nil {
		return nil, exitError(2, err)
	}
	fromFile, err := parse.Fields(data, "")
	if err != nil {
		return nil, exitError(2, fmt.Errorf("--fields: %w", err))
	}
	// flags win over the file
	for name, values := range fields {
		fromFile[name] = values
	}
	return fromFile, nil
}

// attributeLines lists a record's attributes as diffable "key=value" lines.
// A deleted record has none.
func attributeLines(cmd *cobra.Command, lister host.AttributeLister, newID int64) []string {
	attrs, err := lister.ListAttributes(cmd.Context(), newID)
	if errors.Is(err, host.ErrNotFound) {
		return nil
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: list attributes of %d: %v\n", newID, err)
		return nil
	}
	lines := make([]string, 0, len(attrs))
	for _, a := range attrs {
		lines = append(lines, fmt.Sprintf("%s=%s\n", a.Key, a.Value))
	}
	return lines
}

func reportTable(report *relink.Report) render.Table {
	t := render.Table{Headers: []string{"STEP", "OUTCOME", "DETAIL"}}
	for _, s := range report.Steps {
		t.Rows = append(t.Rows, stepRow(s))
	}
	for _, rel := range report.Relations {
		detail := make([]string, 0, len(rel.Pairs)+1)
		for _, p := range rel.Pairs {
			detail = append(detail, fmt.Sprintf("%s->%d", p.Old, p.New))
		}
		if len(rel.Missing) > 0 {
			detail = append(detail, "missing "+strings.Join(rel.Missing, ","))
		}
		t.Rows = append(t.Rows, []string{rel.Field, string(rel.Outcome), strings.Join(detail, " ")})
	}
	for _, s := range report.Repairs {
		t.Rows = append(t.Rows, stepRow(s))
	}
	if report.Orphan != nil {
		t.Rows = append(t.Rows, []string{"record", "deleted", report.Orphan.Error()})
	}
	return t
}

func stepRow(s relink.Step) []string {
	detail := s.Detail
	if s.Err != nil {
		detail = s.Err.Error()
	}
	return []string{s.Name, string(s.Outcome), detail}
}
