package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/config"
	"github.com/lherron/importlink/internal/db"
	"github.com/lherron/importlink/internal/relation"
	"github.com/lherron/importlink/internal/render"
)

var doctorAdmCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database health",
	Long: `Doctor performs health checks on the database file, its schema and the
imported data: duplicated identity entries, attributes of deleted records,
relation attributes pointing at records that no longer exist, and
sqlite_sequence drift. A relation that rewrites its own raw field keeps the
origin ids it could not resolve; only values written by a relink are
checked there.

--fix removes dangling attributes and repairs sequence drift. Duplicated
identity entries need manual intervention.`,
	RunE: runDoctorAdm,
}

var (
	doctorAdmJSON    bool
	doctorAdmFix     bool
	doctorAdmVerbose bool
)

type checkResultAdm struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"` // "ok", "warning", "error"
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}

type doctorReportAdm struct {
	Version       string           `json:"version"`
	DBPath        string           `json:"db_path"`
	Checks        []checkResultAdm `json:"checks"`
	Warnings      int              `json:"warnings"`
	Errors        int              `json:"errors"`
	OverallStatus string           `json:"overall_status"`
	Fixes         []string         `json:"fixes,omitempty"`
}

func init() {
	rootAdmCmd.AddCommand(doctorAdmCmd)
	doctorAdmCmd.Flags().BoolVar(&doctorAdmJSON, "json", false, "Output JSON")
	doctorAdmCmd.Flags().BoolVar(&doctorAdmFix, "fix", false, "Auto-repair issues")
	doctorAdmCmd.Flags().BoolVar(&doctorAdmVerbose, "verbose", false, "Verbose output")
}

func runDoctorAdm(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to load config: %w", err))
	}
	if dbPath := cmd.Flag("db").Value.String(); dbPath != "" {
		cfg.DBPath = dbPath
	}
	table, err := cfg.Relations()
	if err != nil {
		return exitError(1, err)
	}

	report := &doctorReportAdm{
		Version:       Version,
		DBPath:        cfg.DBPath,
		Checks:        []checkResultAdm{},
		OverallStatus: "ok",
	}

	report.Checks = append(report.Checks, checkDatabaseFileAdm(cfg.DBPath)...)

	var database *db.DB
	if report.Checks[0].Status == "ok" {
		database, err = db.OpenWith(cfg.DBPath, db.Options{ReadOnly: !doctorAdmFix})
		if err != nil {
			report.Checks = append(report.Checks, checkResultAdm{
				Name:    "database_open",
				Status:  "error",
				Message: fmt.Sprintf("Failed to open database: %v", err),
			})
		} else {
			defer database.Close()
			report.Checks = append(report.Checks, doctorChecksAdm(database, table)...)
		}
	}

	report.tally()

	if doctorAdmFix && database != nil {
		report.Fixes = applyFixesAdm(database, table)
	}

	if doctorAdmJSON {
		if err := render.NewRenderer(cmd.OutOrStdout(), render.FormatJSON).JSON(report); err != nil {
			return err
		}
	} else {
		printHumanReportAdm(cmd.OutOrStdout(), report)
	}

	if report.Errors > 0 {
		return exitError(1, fmt.Errorf("doctor found %d error(s)", report.Errors))
	}
	return nil
}

func (r *doctorReportAdm) tally() {
	for _, check := range r.Checks {
		switch check.Status {
		case "warning":
			r.Warnings++
		case "error":
			r.Errors++
			r.OverallStatus = "error"
		}
	}
	if r.Warnings > 0 && r.OverallStatus == "ok" {
		r.OverallStatus = "warning"
	}
}

// doctorChecksAdm runs every check that needs an open database.
func doctorChecksAdm(database *db.DB, table *relation.Table) []checkResultAdm {
	var results []checkResultAdm
	results = append(results, checkDatabasePragmasAdm(database)...)
	schema := checkSchemaAdm(database)
	results = append(results, schema...)
	if schema[0].Status == "error" {
		// data checks need the current schema
		return results
	}
	results = append(results, checkIdentityAdm(database)...)
	results = append(results, checkDanglingAdm(database, table)...)
	results = append(results, checkSequenceDriftAdm(database)...)
	results = append(results, checkContentsAdm(database)...)
	return results
}

func checkDatabaseFileAdm(dbPath string) []checkResultAdm {
	info, err := os.Stat(dbPath)
	if err != nil {
		return []checkResultAdm{{
			Name:    "db_file_exists",
			Status:  "error",
			Message: fmt.Sprintf("Database file not found: %s", dbPath),
			Details: []string{"Run 'importlinkadm init' to create it"},
		}}
	}

	results := []checkResultAdm{{
		Name:    "db_file_exists",
		Status:  "ok",
		Message: fmt.Sprintf("Database file: %s (%.1f MB)", dbPath, float64(info.Size())/(1024*1024)),
	}}

	f, err := os.OpenFile(dbPath, os.O_RDWR, 0)
	if err != nil {
		results = append(results, checkResultAdm{
			Name:    "db_file_permissions",
			Status:  "error",
			Message: fmt.Sprintf("Database file not writable: %v", err),
		})
	} else {
		f.Close()
		results = append(results, checkResultAdm{
			Name:    "db_file_permissions",
			Status:  "ok",
			Message: "Database file is readable and writable",
		})
	}
	return results
}

func checkDatabasePragmasAdm(database *db.DB) []checkResultAdm {
	var results []checkResultAdm

	var journalMode string
	database.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if journalMode == "wal" {
		results = append(results, checkResultAdm{Name: "wal_mode", Status: "ok", Message: "WAL mode enabled"})
	} else {
		results = append(results, checkResultAdm{
			Name:    "wal_mode",
			Status:  "warning",
			Message: fmt.Sprintf("WAL mode not enabled (current: %s)", journalMode),
		})
	}

	var foreignKeys int
	database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys)
	if foreignKeys == 1 {
		results = append(results, checkResultAdm{Name: "foreign_keys", Status: "ok", Message: "Foreign keys enabled"})
	} else {
		results = append(results, checkResultAdm{
			Name:    "foreign_keys",
			Status:  "error",
			Message: "Foreign keys not enabled",
			Details: []string{"Attributes of deleted records will not be removed"},
		})
	}

	var integrity string
	database.QueryRow("PRAGMA integrity_check").Scan(&integrity)
	if integrity == "ok" {
		results = append(results, checkResultAdm{Name: "integrity_check", Status: "ok", Message: "Database integrity check passed"})
	} else {
		results = append(results, checkResultAdm{
			Name:    "integrity_check",
			Status:  "error",
			Message: fmt.Sprintf("Database integrity check failed: %s", integrity),
			Details: []string{"Database may be corrupted", "Restore from backup recommended"},
		})
	}
	return results
}

func checkSchemaAdm(database *db.DB) []checkResultAdm {
	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return []checkResultAdm{{
			Name:    "migrations",
			Status:  "error",
			Message: fmt.Sprintf("Failed to read migration status: %v", err),
		}}
	}
	if len(pending) > 0 {
		return []checkResultAdm{{
			Name:    "migrations",
			Status:  "error",
			Message: fmt.Sprintf("%d pending migration(s)", len(pending)),
			Details: append([]string{"Run 'importlinkadm migrate'"}, pending...),
		}}
	}
	results := []checkResultAdm{{
		Name:    "migrations",
		Status:  "ok",
		Message: fmt.Sprintf("Schema up to date (%d migration(s) applied)", len(applied)),
	}}

	modified, err := database.ModifiedMigrations()
	switch {
	case err != nil:
		results = append(results, checkResultAdm{Name: "migration_checksums", Status: "warning", Message: fmt.Sprintf("Failed to verify migration checksums: %v", err)})
	case len(modified) > 0:
		results = append(results, checkResultAdm{
			Name:    "migration_checksums",
			Status:  "warning",
			Message: fmt.Sprintf("%d applied migration(s) changed since they ran", len(modified)),
			Details: modified,
		})
	default:
		results = append(results, checkResultAdm{Name: "migration_checksums", Status: "ok", Message: "Applied migrations match this build"})
	}
	return results
}

// checkIdentityAdm looks for identity tokens owned by more than one record.
// The unique index prevents new ones; databases written before it can
// still carry them.
func checkIdentityAdm(database *db.DB) []checkResultAdm {
	rows, err := database.Query(`
		SELECT key, value, COUNT(*) AS n, GROUP_CONCAT(record_id)
		FROM attributes
		WHERE key LIKE '\_%\_export\_hash' ESCAPE '\'
		GROUP BY key, value
		HAVING n > 1
		ORDER BY key, value
	`)
	if err != nil {
		return []checkResultAdm{{Name: "identity_duplicates", Status: "error", Message: fmt.Sprintf("Failed to check identity entries: %v", err)}}
	}
	defer rows.Close()

	var details []string
	for rows.Next() {
		var key, value, owners string
		var n int
		if err := rows.Scan(&key, &value, &n, &owners); err != nil {
			return []checkResultAdm{{Name: "identity_duplicates", Status: "error", Message: fmt.Sprintf("Failed to scan identity entries: %v", err)}}
		}
		details = append(details, fmt.Sprintf("%s=%s owned by records %s", key, value, owners))
	}

	if len(details) == 0 {
		return []checkResultAdm{{Name: "identity_duplicates", Status: "ok", Message: "Every identity token has one owner"}}
	}
	return []checkResultAdm{{
		Name:    "identity_duplicates",
		Status:  "error",
		Message: fmt.Sprintf("%d identity token(s) owned by several records", len(details)),
		Details: append(details, "Manual intervention required: delete the duplicate records"),
	}}
}

// relationKey is an attribute key holding relinked record ids. When the
// relation rewrites its own raw field the key also holds origin ids that
// never resolved, so only values relink wrote there count as references.
type relationKey struct {
	key     string
	inPlace bool
}

func relationKeys(table *relation.Table) []relationKey {
	inPlace := map[string]bool{}
	for _, p := range table.Profiles() {
		for _, d := range p.Relations {
			k := d.RewriteField()
			if prev, ok := inPlace[k]; ok {
				inPlace[k] = prev || k == d.Field
			} else {
				inPlace[k] = k == d.Field
			}
		}
	}
	keys := make([]relationKey, 0, len(inPlace))
	for k, in := range inPlace {
		keys = append(keys, relationKey{key: k, inPlace: in})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].key < keys[j].key })
	return keys
}

const danglingAttributesQuery = `
	SELECT COUNT(*) FROM attributes
	WHERE record_id NOT IN (SELECT id FROM records)`

// danglingWhere selects numeric values of one key naming no record.
const danglingWhere = `
	key = ?
	AND value <> '' AND value NOT GLOB '*[^0-9]*'
	AND CAST(value AS INTEGER) NOT IN (SELECT id FROM records)`

// writtenWhere keeps values a relink wrote after the record was created.
// Values present since creation are raw origin ids.
const writtenWhere = `
	AND EXISTS (
		SELECT 1 FROM event_log e
		WHERE e.resource_type = 'record' AND e.resource_id = attributes.record_id
		  AND e.event_type IN ('attribute.set', 'attribute.added')
		  AND json_extract(e.payload, '$.key') = attributes.key
		  AND json_extract(e.payload, '$.value') = attributes.value)`

func (k relationKey) where() string {
	if k.inPlace {
		return danglingWhere + writtenWhere
	}
	return danglingWhere
}

func checkDanglingAdm(database *db.DB, table *relation.Table) []checkResultAdm {
	var results []checkResultAdm

	var orphaned int
	if err := database.QueryRow(danglingAttributesQuery).Scan(&orphaned); err != nil {
		results = append(results, checkResultAdm{Name: "dangling_attributes", Status: "error", Message: fmt.Sprintf("Failed to count attributes: %v", err)})
	} else if orphaned == 0 {
		results = append(results, checkResultAdm{Name: "dangling_attributes", Status: "ok", Message: "No attributes of deleted records"})
	} else {
		results = append(results, checkResultAdm{
			Name:    "dangling_attributes",
			Status:  "warning",
			Message: fmt.Sprintf("%d attribute(s) belong to deleted records", orphaned),
			Details: []string{"Use --fix to remove them"},
		})
	}

	var details []string
	for _, rk := range relationKeys(table) {
		key := rk.key
		rows, err := database.Query(`SELECT record_id, value FROM attributes WHERE `+rk.where()+` ORDER BY record_id`, key)
		if err != nil {
			results = append(results, checkResultAdm{Name: "dangling_references", Status: "error", Message: fmt.Sprintf("Failed to check %s: %v", key, err)})
			return results
		}
		for rows.Next() {
			var recordID int64
			var value string
			if err := rows.Scan(&recordID, &value); err != nil {
				rows.Close()
				results = append(results, checkResultAdm{Name: "dangling_references", Status: "error", Message: fmt.Sprintf("Failed to scan %s: %v", key, err)})
				return results
			}
			details = append(details, fmt.Sprintf("record %d: %s=%s", recordID, key, value))
		}
		rows.Close()
	}

	if len(details) == 0 {
		results = append(results, checkResultAdm{Name: "dangling_references", Status: "ok", Message: "Every relation points at an existing record"})
	} else {
		results = append(results, checkResultAdm{
			Name:    "dangling_references",
			Status:  "warning",
			Message: fmt.Sprintf("%d relation value(s) point at deleted records", len(details)),
			Details: append(details, "Use --fix to remove them"),
		})
	}
	return results
}

func checkSequenceDriftAdm(database *db.DB) []checkResultAdm {
	drifts, err := database.SequenceDrifts()
	if err != nil {
		return []checkResultAdm{{
			Name:    "sequence_drift",
			Status:  "error",
			Message: fmt.Sprintf("Failed to check sqlite_sequence drift: %v", err),
		}}
	}
	if len(drifts) == 0 {
		return []checkResultAdm{{Name: "sequence_drift", Status: "ok", Message: "All sqlite_sequence values are in sync"}}
	}

	details := make([]string, 0, len(drifts))
	for _, drift := range drifts {
		details = append(details, drift.String())
	}
	return []checkResultAdm{{
		Name:    "sequence_drift",
		Status:  "error",
		Message: fmt.Sprintf("Detected sqlite_sequence drift (%d table(s))", len(drifts)),
		Details: append(details, "Use --fix to repair; a drifted sequence can hand out a deleted record's id again"),
	}}
}

func checkContentsAdm(database *db.DB) []checkResultAdm {
	rows, err := database.Query("SELECT kind, COUNT(*) FROM records GROUP BY kind ORDER BY kind")
	if err != nil {
		return []checkResultAdm{{Name: "record_counts", Status: "warning", Message: fmt.Sprintf("Failed to count records: %v", err)}}
	}
	defer rows.Close()

	var parts []string
	total := 0
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return []checkResultAdm{{Name: "record_counts", Status: "warning", Message: fmt.Sprintf("Failed to count records: %v", err)}}
		}
		parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
		total += n
	}

	msg := fmt.Sprintf("%d record(s)", total)
	if len(parts) > 0 {
		msg += ": " + strings.Join(parts, ", ")
	}

	var pageCount, pageSize int64
	database.QueryRow("PRAGMA page_count").Scan(&pageCount)
	database.QueryRow("PRAGMA page_size").Scan(&pageSize)

	return []checkResultAdm{
		{Name: "record_counts", Status: "ok", Message: msg},
		{Name: "database_size", Status: "ok", Message: fmt.Sprintf("Database size: %.1f MB (%d pages)", float64(pageCount*pageSize)/(1024*1024), pageCount)},
	}
}

func applyFixesAdm(database *db.DB, table *relation.Table) []string {
	var outputs []string

	if res, err := database.Exec("DELETE FROM attributes WHERE record_id NOT IN (SELECT id FROM records)"); err != nil {
		outputs = append(outputs, fmt.Sprintf("Removing dangling attributes failed: %v", err))
	} else if n, _ := res.RowsAffected(); n > 0 {
		outputs = append(outputs, fmt.Sprintf("Removed %d attribute(s) of deleted records", n))
	}

	var removed int64
	for _, rk := range relationKeys(table) {
		res, err := database.Exec(`DELETE FROM attributes WHERE `+rk.where(), rk.key)
		if err != nil {
			outputs = append(outputs, fmt.Sprintf("Removing dangling %s values failed: %v", rk.key, err))
			continue
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if removed > 0 {
		outputs = append(outputs, fmt.Sprintf("Removed %d relation value(s) pointing at deleted records", removed))
	}

	if drifts, err := database.FixSequenceDrifts(); err != nil {
		outputs = append(outputs, fmt.Sprintf("Sequence repair failed: %v", err))
	} else if len(drifts) > 0 {
		outputs = append(outputs, fmt.Sprintf("Fixed sqlite_sequence drift for %d table(s)", len(drifts)))
	}

	if len(outputs) == 0 {
		outputs = append(outputs, "Nothing to fix")
	}
	return outputs
}

var doctorCategoriesAdm = []struct {
	name   string
	checks []string
}{
	{"Database File", []string{"db_file_exists", "db_file_permissions", "database_open"}},
	{"Database Health", []string{"wal_mode", "foreign_keys", "integrity_check"}},
	{"Schema", []string{"migrations", "migration_checksums"}},
	{"Imported Data", []string{"identity_duplicates", "dangling_attributes", "dangling_references"}},
	{"Sequences", []string{"sequence_drift"}},
	{"Contents", []string{"record_counts", "database_size"}},
}

func printHumanReportAdm(w io.Writer, report *doctorReportAdm) {
	st := newStyles(w)
	fmt.Fprintf(w, "importlinkadm doctor %s\n\n", report.Version)
	fmt.Fprintf(w, "Database: %s\n\n", report.DBPath)

	byName := make(map[string]checkResultAdm, len(report.Checks))
	for _, check := range report.Checks {
		byName[check.Name] = check
	}

	for _, category := range doctorCategoriesAdm {
		var checks []checkResultAdm
		for _, name := range category.checks {
			if check, ok := byName[name]; ok {
				checks = append(checks, check)
			}
		}
		if len(checks) == 0 {
			continue
		}

		fmt.Fprintf(w, "%s\n", st.category.Render(category.name))
		for _, check := range checks {
			fmt.Fprintf(w, "  %s %s\n", st.statusIcon(check.Status), check.Message)
			if doctorAdmVerbose {
				for _, detail := range check.Details {
					fmt.Fprintf(w, "      %s\n", detail)
				}
			}
		}
		fmt.Fprintln(w)
	}

	if len(report.Fixes) > 0 {
		fmt.Fprintln(w, "--fix results")
		fmt.Fprintln(w, strings.Join(report.Fixes, "\n"))
		fmt.Fprintln(w)
	}

	if report.Errors > 0 {
		fmt.Fprintf(w, "Summary: %s\n", st.fail.Render(fmt.Sprintf("%d error(s), %d warning(s)", report.Errors, report.Warnings)))
	} else if report.Warnings > 0 {
		fmt.Fprintf(w, "Summary: %s\n", st.warn.Render(fmt.Sprintf("%d warning(s)", report.Warnings)))
	} else {
		fmt.Fprintf(w, "Summary: All checks passed %s\n", st.pass.Render(iconPass))
	}

	if (report.Warnings > 0 || report.Errors > 0) && !doctorAdmVerbose {
		fmt.Fprintf(w, "\nRun with --verbose for detailed information\n")
	}
}
