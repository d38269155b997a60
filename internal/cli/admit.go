package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/admission"
	"github.com/lherron/importlink/internal/cli/appctx"
	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/pipeline"
	"github.com/lherron/importlink/internal/render"
)

var admitCmd = &cobra.Command{
	Use:   "admit [stream.jsonl]",
	Short: "Show admission decisions without importing",
	Long: `Admit evaluates the admission gate for each record of a JSON Lines stream
(or a single record given with --kind and --field) against the current
database and prints the decision and its reasons. Nothing is written.

Examples:
  importlink admit export.jsonl
  importlink admit --kind ticket --field id=14 --field _ticket_event=9`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.WithEngine(), runAdmit),
}

var (
	admitKind   string
	admitFields []string
	admitFormat string
)

func init() {
	rootCmd.AddCommand(admitCmd)

	admitCmd.Flags().StringVar(&admitKind, "kind", "", "Kind of a single record to evaluate")
	admitCmd.Flags().StringArrayVarP(&admitFields, "field", "f", nil, "Field of the single record as name=value (repeatable)")
	addFormatFlag(admitCmd, &admitFormat)
}

type admitView struct {
	Kind     domain.Kind        `json:"kind" yaml:"kind"`
	OriginID string             `json:"origin_id" yaml:"origin_id"`
	Decision admission.Decision `json:"decision" yaml:"decision"`
	Reasons  []string           `json:"reasons,omitempty" yaml:"reasons,omitempty"`
}

func runAdmit(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := newRenderer(cmd, admitFormat)
	if err != nil {
		return err
	}

	var src pipeline.Source
	switch {
	case admitKind != "" && len(args) == 0:
		kind, err := parseKind(admitKind)
		if err != nil {
			return err
		}
		fields, err := readFieldFlags(admitFields)
		if err != nil {
			return err
		}
		src = pipeline.NewSliceSource(domain.NewRecord(kind, fields))
	case admitKind == "" && len(args) == 1:
		in, err := openInput(cmd, args[0])
		if err != nil {
			return err
		}
		defer in.Close()
		src = pipeline.NewJSONLSource(in)
	default:
		return exitError(2, fmt.Errorf("give either a stream file or --kind with --field"))
	}

	gate := admission.New(app.Table, app.Identity, app.Policy, app.Logger)

	var items []any
	table := render.Table{Headers: []string{"DECISION", "KIND", "ORIGIN", "REASONS"}}
	rejected := 0
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return exitError(1, fmt.Errorf("read records: %w", err))
		}
		res, err := gate.Admit(cmd.Context(), rec.Kind, rec.Fields)
		if err != nil {
			return exitError(1, err)
		}
		v := admitView{Kind: rec.Kind, OriginID: rec.OriginID, Decision: res.Decision}
		for _, reason := range res.Reasons {
			v.Reasons = append(v.Reasons, reason.Error())
		}
		if !res.Admitted() {
			rejected++
		}
		items = append(items, v)
		table.Rows = append(table.Rows, []string{string(v.Decision), string(v.Kind), v.OriginID, strings.Join(v.Reasons, "; ")})
	}

	if err := r.Render(items, table); err != nil {
		return err
	}
	if rejected > 0 {
		return exitError(5, fmt.Errorf("%d of %d record(s) would be rejected", rejected, len(items)))
	}
	return nil
}
