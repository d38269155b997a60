package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/cli/appctx"
	"github.com/lherron/importlink/internal/cursor"
	"github.com/lherron/importlink/internal/events"
	"github.com/lherron/importlink/internal/render"
)

var eventsAdmCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event log",
	Long: `Events lists event log entries, newest first. Every host mutation made by
an import is logged together with the run id of the import.

--type takes a full event type (attribute.set) or a prefix (attribute).
--since takes a duration (2h), an RFC 3339 timestamp or a natural-language
time (yesterday).

When a page is full the cursor of the next page is printed on stderr; pass
it back with --cursor and the same filters.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runEventsAdm),
}

var (
	eventsRunID  string
	eventsRecord int64
	eventsType   string
	eventsSince  string
	eventsLimit  int
	eventsCursor string
	eventsFormat string
)

func init() {
	rootAdmCmd.AddCommand(eventsAdmCmd)

	eventsAdmCmd.Flags().StringVar(&eventsRunID, "run", "", "Only events of this run id")
	eventsAdmCmd.Flags().Int64Var(&eventsRecord, "record", 0, "Only events of this record id")
	eventsAdmCmd.Flags().StringVar(&eventsType, "type", "", "Event type or type prefix")
	eventsAdmCmd.Flags().StringVar(&eventsSince, "since", "", "Only events after this time")
	eventsAdmCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "Maximum events to show (0 = all)")
	eventsAdmCmd.Flags().StringVar(&eventsCursor, "cursor", "", "Continue after a previous page")
	addFormatFlag(eventsAdmCmd, &eventsFormat)
}

func runEventsAdm(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := newRenderer(cmd, eventsFormat)
	if err != nil {
		return err
	}

	q := events.Query{
		RunID:      eventsRunID,
		ResourceID: eventsRecord,
		EventType:  eventsType,
		Limit:      eventsLimit,
	}
	if eventsSince != "" {
		since, err := parseSince(eventsSince, time.Now())
		if err != nil {
			return exitError(2, err)
		}
		q.Since = since
	}
	filter := fmt.Sprintf("run=%s;record=%d;type=%s;since=%s", eventsRunID, eventsRecord, eventsType, eventsSince)
	if eventsCursor != "" {
		c, err := cursor.Decode(eventsCursor)
		if err != nil {
			return exitError(2, err)
		}
		if err := c.Check(filter); err != nil {
			return exitError(2, err)
		}
		q.After = c
	}

	list, err := events.List(app.DB.DB, q)
	if err != nil {
		return exitError(1, err)
	}

	items := make([]any, 0, len(list))
	table := render.Table{Headers: []string{"ID", "TIME", "TYPE", "RECORD", "RUN", "PAYLOAD"}}
	for _, e := range list {
		items = append(items, e)
		record, run, payload := "", "", ""
		if e.ResourceID != nil {
			record = strconv.FormatInt(*e.ResourceID, 10)
		}
		if e.RunID != nil {
			run = *e.RunID
		}
		if e.Payload != nil {
			payload = *e.Payload
		}
		table.Rows = append(table.Rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Format(time.RFC3339),
			e.EventType,
			record,
			run,
			payload,
		})
	}
	if err := r.Render(items, table); err != nil {
		return err
	}

	if eventsLimit > 0 && len(list) == eventsLimit {
		next, err := cursor.New(list[len(list)-1].ID, filter)
		if err != nil {
			return err
		}
		encoded, err := next.Encode()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "next page: --cursor %s\n", encoded)
	}
	return nil
}

var sinceParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseSince accepts a duration before now, an RFC 3339 timestamp or a
// natural-language time such as "yesterday" or "last monday".
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("--since: negative duration %q", s)
		}
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	r, err := sinceParser.Parse(s, now)
	if err != nil || r == nil {
		return time.Time{}, fmt.Errorf("--since: want a duration, RFC 3339 or natural-language time, got %q", s)
	}
	return r.Time, nil
}
