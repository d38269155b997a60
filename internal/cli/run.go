package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/cli/appctx"
	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/pipeline"
	"github.com/lherron/importlink/internal/render"
	"github.com/lherron/importlink/internal/webhooks"
)

var runCmd = &cobra.Command{
	Use:   "run <stream.jsonl>",
	Short: "Import a JSON Lines record stream",
	Long: `Run imports every record of a JSON Lines stream, one
{"kind": "...", "fields": {...}} object per line, in order. Use - to read
standard input.

Each record is admitted or rejected, created, checked for a kind mismatch
and relinked. With --retry-unresolved, relations that could not be resolved
because their target appeared later in the stream are retried once the
whole stream has been imported.

With --dry-run the stream is imported into an empty in-memory store and
nothing is written to the database.

Exit codes: 0 when every admitted record was relinked, 5 when some records
were left partially relinked or failed, 1 on a fatal error.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.WithEngine(), runRun),
}

var (
	runRetryUnresolved bool
	runJobs            int
	runDryRun          bool
	runFormat          string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runRetryUnresolved, "retry-unresolved", false, "Retry unresolved relations after the stream completes (overrides retry_unresolved)")
	runCmd.Flags().IntVarP(&runJobs, "jobs", "j", 0, "Parallel workers for the retry pass (0 = one per CPU)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Import into an in-memory store; write nothing")
	addFormatFlag(runCmd, &runFormat)
}

// outcomeView is the rendered form of one record's outcome.
type outcomeView struct {
	Kind     domain.Kind   `json:"kind" yaml:"kind"`
	OriginID string        `json:"origin_id" yaml:"origin_id"`
	NewID    int64         `json:"new_id,omitempty" yaml:"new_id,omitempty"`
	Status   domain.Status `json:"status" yaml:"status"`
	Decision string        `json:"decision,omitempty" yaml:"decision,omitempty"`
	Stripped []string      `json:"stripped,omitempty" yaml:"stripped,omitempty"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`
}

func newOutcomeView(o *pipeline.Outcome) outcomeView {
	v := outcomeView{
		Kind:     o.Record.Kind,
		OriginID: o.Record.OriginID,
		NewID:    o.Record.NewID,
		Status:   o.Record.Status,
		Decision: string(o.Admission.Decision),
		Stripped: o.Stripped,
	}
	switch {
	case o.Err != nil:
		v.Detail = o.Err.Error()
	case o.Mismatch != nil:
		v.Detail = o.Mismatch.Error()
	case o.Retry != nil && o.Retry.Err() != nil:
		v.Detail = o.Retry.Err().Error()
	case o.Report != nil && o.Report.Err() != nil && o.Record.Status != domain.StatusRelinked:
		v.Detail = o.Report.Err().Error()
	case len(o.Admission.Reasons) > 0:
		v.Detail = o.Admission.Err().Error()
	}
	return v
}

func runRun(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := newRenderer(cmd, runFormat)
	if err != nil {
		return err
	}

	in, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	opts := pipeline.Options{
		RetryUnresolved: app.Config.RetryUnresolved,
		Jobs:            app.Config.Jobs,
		RunID:           app.RunID,
		Logger:          app.Logger,
	}
	if cmd.Flags().Changed("retry-unresolved") {
		opts.RetryUnresolved = runRetryUnresolved
	}
	if cmd.Flags().Changed("jobs") {
		opts.Jobs = runJobs
	}

	p, err := pipeline.New(app.Host, app.Table, app.Identity, app.Policy, opts)
	if err != nil {
		return exitError(1, err)
	}

	summary, runErr := p.Run(cmd.Context(), pipeline.NewJSONLSource(in))

	items := make([]any, 0, len(summary.Outcomes))
	table := render.Table{Headers: []string{"STATUS", "KIND", "ORIGIN", "NEW_ID", "DETAIL"}}
	for _, o := range summary.Outcomes {
		v := newOutcomeView(o)
		items = append(items, v)
		newID := ""
		if v.NewID > 0 {
			newID = strconv.FormatInt(v.NewID, 10)
		}
		table.Rows = append(table.Rows, []string{string(v.Status), string(v.Kind), v.OriginID, newID, v.Detail})
	}
	if err := r.Render(items, table); err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	if summary.Retry != nil && summary.Retry.TotalItems > 0 {
		summary.Retry.PrintSummary(errOut)
	}
	counts := summary.Counts()
	fmt.Fprintf(errOut, "\n%d record(s): %s", len(summary.Outcomes), formatCounts(counts))
	if app.DryRun {
		fmt.Fprint(errOut, " (dry run)")
	}
	fmt.Fprintln(errOut)

	if !app.DryRun {
		notifyRunFinished(cmd, app, args[0], summary, counts)
	}

	if runErr != nil {
		return exitError(1, runErr)
	}
	if counts[domain.StatusPartiallyRelinked] > 0 || len(summary.Errors()) > 0 {
		return exitError(5, fmt.Errorf("run %s finished with %d partially relinked and %d failed record(s)",
			summary.RunID, counts[domain.StatusPartiallyRelinked], len(summary.Errors())))
	}
	return nil
}

// notifyRunFinished posts the run summary to the configured webhooks.
func notifyRunFinished(cmd *cobra.Command, app *appctx.App, source string, summary *pipeline.Summary, counts map[domain.Status]int) {
	d := webhooks.New(app.Config.WebhookURLs, webhooks.WithLogger(app.Logger))
	if d.Empty() {
		return
	}
	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	delivered := d.Dispatch(cmd.Context(), webhooks.Payload{
		RunID:    summary.RunID,
		Source:   source,
		Records:  len(summary.Outcomes),
		Counts:   byStatus,
		Partial:  counts[domain.StatusPartiallyRelinked],
		Failed:   len(summary.Errors()),
		Finished: time.Now().UTC(),
	})
	app.Logger.Debug("run webhooks dispatched", "delivered", delivered)
}

var statusOrder = []domain.Status{
	domain.StatusRelinked,
	domain.StatusPartiallyRelinked,
	domain.StatusRejected,
	domain.StatusDeleted,
	domain.StatusKindVerified,
	domain.StatusCreated,
	domain.StatusAdmitted,
	domain.StatusPending,
}

func formatCounts(counts map[domain.Status]int) string {
	var parts []string
	for _, s := range statusOrder {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	if len(parts) == 0 {
		return "nothing imported"
	}
	return strings.Join(parts, ", ")
}
