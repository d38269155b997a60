// Package render writes command output as a table, TSV, JSON, NDJSON or YAML.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable  Format = "table"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatYAML   Format = "yaml"
	FormatTSV    Format = "tsv"
)

// ParseFormat validates a --format value. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatNDJSON, FormatYAML, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, tsv, json, ndjson or yaml)", s)
	}
}

// Table is the tabular view of a result, used by the table and tsv formats.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	format Format
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, format Format) *Renderer {
	if format == "" {
		format = FormatTable
	}
	return &Renderer{writer: writer, format: format}
}

// Render writes items in the structured formats and t in the tabular ones.
func (r *Renderer) Render(items []any, t Table) error {
	switch r.format {
	case FormatJSON:
		if items == nil {
			items = []any{}
		}
		return r.JSON(items)
	case FormatNDJSON:
		return r.NDJSON(items)
	case FormatYAML:
		return r.YAML(items)
	case FormatTSV:
		return r.TSV(t)
	default:
		return r.Table(t)
	}
}

// JSON renders data as indented JSON
func (r *Renderer) JSON(data any) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// NDJSON renders one compact JSON document per item
func (r *Renderer) NDJSON(items []any) error {
	encoder := json.NewEncoder(r.writer)
	for _, item := range items {
		if err := encoder.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

// YAML renders data as YAML
func (r *Renderer) YAML(data any) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}

// TSV renders a header line and tab-separated rows
func (r *Renderer) TSV(t Table) error {
	if _, err := fmt.Fprintln(r.writer, strings.Join(t.Headers, "\t")); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if _, err := fmt.Fprintln(r.writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// Table renders aligned columns under a dashed separator. Nothing is
// written for an empty table.
func (r *Renderer) Table(t Table) error {
	if len(t.Rows) == 0 {
		return nil
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	r.row(t.Headers, widths)
	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	r.row(sep, widths)
	for _, row := range t.Rows {
		r.row(row, widths)
	}
	return nil
}

func (r *Renderer) row(cells []string, widths []int) {
	var b strings.Builder
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		if i == len(cells)-1 || i == len(widths)-1 {
			b.WriteString(cell)
			break
		}
		fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
	}
	fmt.Fprintln(r.writer, b.String())
}
