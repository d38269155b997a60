package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lherron/importlink/internal/db"
	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/id"
	"github.com/lherron/importlink/internal/relation"
	"github.com/lherron/importlink/internal/testutil"
	"github.com/lherron/importlink/internal/webhooks"
)

// resetFlags restores every flag of cmd and its subcommands to its default;
// cobra keeps parsed values between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs root with args and returns what it wrote to stdout.
func execute(t *testing.T, root *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(root)
	var out, errOut bytes.Buffer
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(context.Background())
	t.Logf("stderr:\n%s", errOut.String())
	return out.String(), err
}

// mustExecute is execute for commands expected to succeed.
func mustExecute(t *testing.T, root *cobra.Command, stdin string, args ...string) string {
	t.Helper()
	out, err := execute(t, root, stdin, args...)
	if err != nil {
		t.Fatalf("%s %s: %v\n%s", root.Name(), strings.Join(args, " "), err, out)
	}
	return out
}

func wantExit(t *testing.T, err error, code int) {
	t.Helper()
	if got := ExitCode(err); got != code {
		t.Errorf("exit code = %d (%v), want %d", got, err, code)
	}
}

func wantContains(t *testing.T, out string, subs ...string) {
	t.Helper()
	for _, sub := range subs {
		if !strings.Contains(out, sub) {
			t.Errorf("output missing %q:\n%s", sub, out)
		}
	}
}

func decodeJSON(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %T: %v\n%s", v, err, out)
	}
}

// setupTestEnv isolates config lookup and returns an initialized database path.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("IMPORTLINK_DB_PATH", "")
	t.Setenv("IMPORTLINK_RETRY_UNRESOLVED", "")
	t.Setenv("IMPORTLINK_LOG_LEVEL", "error")
	t.Setenv("IMPORTLINK_OTEL_ENABLED", "")
	t.Setenv("IMPORTLINK_WEBHOOK_URLS", "")
	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })

	dbPath := filepath.Join(dir, "importlink.db")
	out := mustExecute(t, rootAdmCmd, "", "init", "--db", dbPath)
	wantContains(t, out, "Initialized new database")
	return dbPath
}

func writeStream(t *testing.T, lines ...string) string {
	t.Helper()
	return testutil.WriteFile(t, t.TempDir(), "stream.jsonl", strings.Join(lines, "\n")+"\n")
}

func decodeOutcomes(t *testing.T, out string) []outcomeView {
	t.Helper()
	var views []outcomeView
	decodeJSON(t, out, &views)
	return views
}

func wantNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s was created", path)
	}
}

const (
	venueLine  = `{"kind":"venue","fields":{"id":"7","title":"Main Hall"}}`
	eventLine  = `{"kind":"event","fields":{"id":"42","title":"Launch","_EventVenueID":"7"}}`
	ticketLine = `{"kind":"ticket","fields":{"id":"14","title":"General","_ticket_event":"42"}}`
	orderLine  = `{"kind":"order","fields":{"id":"9","status":"tec-tc-completed","_order_total_value":"10","_events_in_order":"42","_tickets_in_order":"14","_order_items":"{\"14\":{\"ticket_id\":14}}"}}`
)

func TestRun_ImportsStream(t *testing.T) {
	dbPath := setupTestEnv(t)
	stream := writeStream(t, venueLine, eventLine, ticketLine, orderLine)

	views := decodeOutcomes(t, mustExecute(t, rootCmd, "", "run", stream, "--db", dbPath, "-o", "json"))
	if len(views) != 4 {
		t.Fatalf("%d outcomes, want 4", len(views))
	}
	for i, v := range views {
		if v.Status != domain.StatusRelinked {
			t.Errorf("record %d: status %s: %s", i, v.Status, v.Detail)
		}
		if v.NewID != int64(i+1) {
			t.Errorf("record %d: new id %d", i, v.NewID)
		}
	}

	out, err := execute(t, rootCmd, "", "lookup", "ticket", "14", "15", "--db", dbPath, "-o", "json")
	wantExit(t, err, 5)
	var found []lookupView
	decodeJSON(t, out, &found)
	if len(found) != 2 {
		t.Fatalf("lookup returned %d rows", len(found))
	}
	if !found[0].Found || found[0].NewID != 3 {
		t.Errorf("ticket 14 = %+v, want record 3", found[0])
	}
	if found[1].Found {
		t.Errorf("ticket 15 found: %+v", found[1])
	}

	var evs []domain.Event
	decodeJSON(t, mustExecute(t, rootAdmCmd, "", "events", "--db", dbPath, "--type", "record.created", "-o", "json"), &evs)
	if len(evs) != 4 {
		t.Fatalf("%d create events, want 4", len(evs))
	}
	if evs[0].RunID == nil || *evs[0].RunID == "" {
		t.Error("create event carries no run id")
	}

	out = mustExecute(t, rootAdmCmd, "", "doctor", "--db", dbPath, "--json")
	var report doctorReportAdm
	decodeJSON(t, out, &report)
	if report.Errors != 0 {
		t.Errorf("doctor found errors after a clean import:\n%s", out)
	}
}

func TestRun_NotifiesWebhooks(t *testing.T) {
	dbPath := setupTestEnv(t)

	var got []webhooks.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhooks.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			got = append(got, p)
		}
	}))
	defer srv.Close()
	t.Setenv("IMPORTLINK_WEBHOOK_URLS", srv.URL+"/runs/{run_id}")

	mustExecute(t, rootCmd, "", "run", writeStream(t, venueLine, ticketLine), "--db", dbPath)

	if len(got) != 1 {
		t.Fatalf("%d notifications, want 1", len(got))
	}
	p := got[0]
	if p.RunID == "" || p.Records != 2 || p.Counts["relinked"] != 1 || p.Counts["rejected"] != 1 {
		t.Errorf("payload = %+v", p)
	}

	got = nil
	mustExecute(t, rootCmd, "", "run", writeStream(t, venueLine), "--db", dbPath, "--dry-run")
	if len(got) != 0 {
		t.Errorf("dry run sent %d notifications", len(got))
	}
}

func TestRun_RejectionIsNotAFailure(t *testing.T) {
	dbPath := setupTestEnv(t)
	stream := writeStream(t, ticketLine)

	out := mustExecute(t, rootCmd, "", "run", stream, "--db", dbPath, "-o", "tsv")
	wantContains(t, out, "rejected\tticket\t14\t\t", `event with origin id "42" not found`)
}

func TestRun_RetryUnresolved(t *testing.T) {
	stream := []string{
		`{"kind":"event","fields":{"id":"42","_EventOrganizerID":"5,6"}}`,
		`{"kind":"organizer","fields":{"id":"5"}}`,
		`{"kind":"organizer","fields":{"id":"6"}}`,
	}

	t.Run("without retry the event stays partial", func(t *testing.T) {
		dbPath := setupTestEnv(t)
		out, err := execute(t, rootCmd, "", "run", writeStream(t, stream...), "--db", dbPath, "-o", "json")
		wantExit(t, err, 5)
		views := decodeOutcomes(t, out)
		if views[0].Status != domain.StatusPartiallyRelinked {
			t.Errorf("status = %s, want partially relinked", views[0].Status)
		}
		wantContains(t, views[0].Detail, "_eventorganizerid")
	})

	t.Run("retry resolves organizers created later", func(t *testing.T) {
		dbPath := setupTestEnv(t)
		out := mustExecute(t, rootCmd, "", "run", writeStream(t, stream...), "--db", dbPath, "--retry-unresolved", "-o", "json")
		if views := decodeOutcomes(t, out); views[0].Status != domain.StatusRelinked {
			t.Errorf("status = %s, want relinked", views[0].Status)
		}
	})
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	setupTestEnv(t)
	dbPath := filepath.Join(t.TempDir(), "absent.db")

	if out := mustExecute(t, rootCmd, "", "run", "-", "--db", dbPath, "--dry-run", "-o", "json"); out != "[]\n" {
		t.Errorf("empty stream output = %q", out)
	}
	wantNoFile(t, dbPath)

	out := mustExecute(t, rootCmd, venueLine+"\n"+eventLine+"\n", "run", "-", "--db", dbPath, "--dry-run", "-o", "json")
	views := decodeOutcomes(t, out)
	if len(views) != 2 || views[1].Status != domain.StatusRelinked {
		t.Errorf("outcomes = %+v", views)
	}
	wantNoFile(t, dbPath)
}

func TestRun_BadStream(t *testing.T) {
	dbPath := setupTestEnv(t)
	stream := writeStream(t, venueLine, `{"kind":"venue"`)

	_, err := execute(t, rootCmd, "", "run", stream, "--db", dbPath, "-o", "json")
	if err == nil {
		t.Fatal("truncated line accepted")
	}
	wantExit(t, err, 1)
	wantContains(t, err.Error(), "line 2")
}

func TestAdmit(t *testing.T) {
	dbPath := setupTestEnv(t)
	mustExecute(t, rootCmd, "", "run", writeStream(t, eventLine), "--db", dbPath)

	out := mustExecute(t, rootCmd, "", "admit", "--db", dbPath, "--kind", "ticket",
		"--field", "id=14", "--field", "_ticket_event=42", "-o", "json")
	var views []admitView
	decodeJSON(t, out, &views)
	if len(views) != 1 || views[0].Decision != "admit" {
		t.Errorf("admit = %+v", views)
	}

	out, err := execute(t, rootCmd, "", "admit", "--db", dbPath, "--kind", "ticket", "--field", "id=15", "-o", "json")
	wantExit(t, err, 5)
	views = nil
	decodeJSON(t, out, &views)
	if len(views) != 1 || views[0].Decision != "reject" {
		t.Fatalf("admit without event = %+v", views)
	}
	wantContains(t, strings.Join(views[0].Reasons, " "), "ticket.event_missing")

	_, err = execute(t, rootCmd, "", "admit", "--db", dbPath)
	wantExit(t, err, 2)
}

func TestRelink_Diff(t *testing.T) {
	dbPath := setupTestEnv(t)

	_, err := execute(t, rootCmd, "", "run",
		writeStream(t, `{"kind":"event","fields":{"id":"42","_EventOrganizerID":"5"}}`),
		"--db", dbPath)
	if ExitCode(err) != 5 {
		t.Fatalf("first run: %v, want a partial import", err)
	}
	mustExecute(t, rootCmd, "", "run", writeStream(t, `{"kind":"organizer","fields":{"id":"5"}}`), "--db", dbPath)

	out := mustExecute(t, rootCmd, `{"id":"42","_EventOrganizerID":"5"}`,
		"relink", "event", "1", "--fields", "-", "--diff", "--db", dbPath)
	wantContains(t, out, "_eventorganizerid", "--- record 1 (before)", "+_EventOrganizerID=2")

	_, err = execute(t, rootCmd, "", "relink", "venue", "1", "--db", dbPath)
	if !domain.IsKindMismatch(err) {
		t.Errorf("relink as venue = %v, want a kind mismatch", err)
	}

	_, err = execute(t, rootCmd, "just text", "relink", "event", "1", "--fields", "-", "--db", dbPath)
	wantExit(t, err, 2)
}

func TestHash(t *testing.T) {
	setupTestEnv(t)

	var views []hashView
	decodeJSON(t, mustExecute(t, rootCmd, "", "hash", "event", "42", "-o", "json"), &views)
	if len(views) != 1 {
		t.Fatalf("%d hashes, want 1", len(views))
	}
	if views[0].Key != "_event_export_hash" || views[0].Token != id.Token("event", "42") {
		t.Errorf("hash = %+v", views[0])
	}

	_, err := execute(t, rootCmd, "", "hash", "Event", "42")
	wantExit(t, err, 2)
}

func TestKinds(t *testing.T) {
	setupTestEnv(t)

	out := mustExecute(t, rootCmd, "", "kinds")
	wantContains(t, out, "_tickets_in_order=>ticket (multiple,required)", "parent=>order (parent)")

	out = mustExecute(t, rootCmd, "", "kinds", "-o", "yaml")
	table, err := relation.Parse([]byte("replace: true\n" + strings.TrimPrefix(out, "replace: false\n")))
	if err != nil {
		t.Fatalf("relation.Parse() = %v\n%s", err, out)
	}
	want, got := relation.Default().Kinds(), table.Kinds()
	slices.Sort(want)
	slices.Sort(got)
	if !slices.Equal(want, got) {
		t.Errorf("round-tripped kinds = %v, want %v", got, want)
	}
}

func TestMigrateStatus(t *testing.T) {
	dbPath := setupTestEnv(t)

	out := mustExecute(t, rootAdmCmd, "", "migrate", "--db", dbPath, "--status")
	wantContains(t, out, "Applied migrations:")
	if strings.Contains(out, "Pending") {
		t.Errorf("fresh database reports pending migrations:\n%s", out)
	}

	out = mustExecute(t, rootAdmCmd, "", "migrate", "--db", dbPath)
	wantContains(t, out, "Database is up to date")
}

func TestMigrateStatus_ModifiedMigration(t *testing.T) {
	dbPath := setupTestEnv(t)

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	if _, err := database.Exec(`UPDATE schema_migrations SET checksum = 'stale'`); err != nil {
		t.Fatal(err)
	}
	if err := database.Close(); err != nil {
		t.Fatal(err)
	}

	out := mustExecute(t, rootAdmCmd, "", "migrate", "--db", dbPath, "--status")
	wantContains(t, out, "applied migration(s) differ from this build")
}

func TestVersion(t *testing.T) {
	var v map[string]any
	decodeJSON(t, mustExecute(t, rootCmd, "", "version", "--json"), &v)
	if v["binary"] != "importlink" {
		t.Errorf("binary = %v", v["binary"])
	}

	if out := mustExecute(t, rootAdmCmd, "", "version"); !strings.HasPrefix(out, "importlinkadm version ") {
		t.Errorf("version output = %q", out)
	}
}
