package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/render"
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode returns the exit code for err: 0 for nil, the carried code for an
// *ExitError and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// openInput opens path for reading; "-" is stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, exitError(2, err)
	}
	return f, nil
}

func addFormatFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "format", "o", "table", "Output format: table, tsv, json, ndjson, yaml")
}

func newRenderer(cmd *cobra.Command, format string) (*render.Renderer, error) {
	f, err := render.ParseFormat(format)
	if err != nil {
		return nil, exitError(2, err)
	}
	return render.NewRenderer(cmd.OutOrStdout(), f), nil
}

// parseKind validates a kind argument.
func parseKind(s string) (domain.Kind, error) {
	if err := domain.ValidateKindName(s); err != nil {
		return "", exitError(2, err)
	}
	return domain.Kind(s), nil
}

// readFieldFlags parses repeated --field name=value flags. A name given
// several times collects several values.
func readFieldFlags(pairs []string) (domain.Fields, error) {
	raw := map[string][]string{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, exitError(2, fmt.Errorf("invalid --field %q (want name=value)", p))
		}
		name = strings.TrimSpace(name)
		raw[name] = append(raw[name], value)
	}
	return domain.NewFields(raw), nil
}
