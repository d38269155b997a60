package appctx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/identity"
	"github.com/lherron/importlink/internal/store"
	"github.com/lherron/importlink/internal/testutil"
)

// isolate points HOME and the working directory at a fresh temp dir so no
// user config or .env.local leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range []string{"IMPORTLINK_DB_PATH", "IMPORTLINK_RELATIONS_FILE", "IMPORTLINK_IDENTITY_BACKEND", "IMPORTLINK_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })
	return dir
}

func testCommand(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().String("db", "", "Database path")
	cmd.Flags().String("relations", "", "Relations file")
	cmd.Flags().String("log-level", "", "Log level")
	cmd.Flags().Bool("dry-run", false, "Dry run")
	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("set --%s: %v", name, err)
		}
	}
	return cmd
}

func mustBootstrap(t *testing.T, cmd *cobra.Command, opts Options) *App {
	t.Helper()
	app, err := Bootstrap(cmd, opts)
	if err != nil {
		t.Fatalf("Bootstrap() = %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func wantNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s was created", path)
	}
}

func TestBootstrap_ConfigOnly(t *testing.T) {
	dir := isolate(t)
	t.Setenv("IMPORTLINK_DB_PATH", filepath.Join(dir, "unused.db"))

	app := mustBootstrap(t, testCommand(t, nil), Options{})
	if app.Config == nil || app.Logger == nil || app.RunID == "" {
		t.Errorf("config-only app missing basics: %+v", app)
	}
	if app.DB != nil || app.Host != nil {
		t.Error("config-only bootstrap opened a database or host")
	}
	wantNoFile(t, filepath.Join(dir, "unused.db"))
}

func TestBootstrap_WithDB(t *testing.T) {
	dir := isolate(t)
	cmd := testCommand(t, map[string]string{"db": testutil.MigratedDBPath(t, dir)})

	app := mustBootstrap(t, cmd, DefaultOptions())
	if app.DB == nil || app.Store == nil {
		t.Fatal("database not opened")
	}
	if app.Host != nil {
		t.Error("host built without WithEngine")
	}
}

func TestBootstrap_PendingMigrations(t *testing.T) {
	dir := isolate(t)
	cmd := testCommand(t, map[string]string{"db": filepath.Join(dir, "fresh.db")})

	_, err := Bootstrap(cmd, DefaultOptions())
	if err == nil {
		t.Fatal("Bootstrap() opened an unmigrated database")
	}
	if !strings.Contains(err.Error(), "importlinkadm migrate") {
		t.Errorf("error should point at the migrate command, got: %v", err)
	}
}

func TestBootstrap_WithEngine(t *testing.T) {
	dir := isolate(t)
	cmd := testCommand(t, map[string]string{"db": testutil.MigratedDBPath(t, dir)})

	app := mustBootstrap(t, cmd, WithEngine())
	// telemetry disabled, so the host is the store itself
	if _, ok := app.Host.(*store.Store); !ok {
		t.Errorf("Host = %T, want *store.Store", app.Host)
	}
	if _, ok := app.Identity.(*identity.AttributeStore); !ok {
		t.Errorf("Identity = %T, want *identity.AttributeStore", app.Identity)
	}
	if app.Lister == nil || app.Policy == nil {
		t.Error("engine dependencies missing")
	}
	if !app.Table.Manages("order") {
		t.Error("default relation table should manage orders")
	}
	if app.DryRun {
		t.Error("DryRun = true without the flag")
	}
}

func TestBootstrap_DryRun(t *testing.T) {
	dir := isolate(t)
	dbPath := filepath.Join(dir, "never.db")
	cmd := testCommand(t, map[string]string{"db": dbPath, "dry-run": "true"})

	app := mustBootstrap(t, cmd, WithEngine())
	if !app.DryRun || app.DB != nil {
		t.Errorf("DryRun=%v DB=%v, want an in-memory run", app.DryRun, app.DB)
	}
	if _, ok := app.Host.(*host.Memory); !ok {
		t.Errorf("Host = %T, want *host.Memory", app.Host)
	}
	wantNoFile(t, dbPath)
}

func TestBootstrap_InvalidLogLevelFlag(t *testing.T) {
	isolate(t)
	cmd := testCommand(t, map[string]string{"log-level": "loud"})

	if _, err := Bootstrap(cmd, Options{}); err == nil {
		t.Error("Bootstrap() accepted --log-level=loud")
	}
}

func TestWithApp_ClosesDB(t *testing.T) {
	dir := isolate(t)
	cmd := testCommand(t, map[string]string{"db": testutil.MigratedDBPath(t, dir)})

	var captured *App
	run := WithApp(DefaultOptions(), func(app *App, cmd *cobra.Command, args []string) error {
		captured = app
		if app.DB == nil {
			t.Error("DB not open inside the command")
		}
		return nil
	})
	if err := run(cmd, nil); err != nil {
		t.Fatalf("run() = %v", err)
	}
	if captured.DB != nil {
		t.Error("DB still set after the command returned")
	}
}
