// Package export writes crawled records to a tabular file.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/go-scripts/ngocrawl/internal/record"
)

// ErrUnsupportedFormat is returned for an output path with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Formats lists the supported output extensions.
var Formats = []string{".xlsx", ".csv", ".md", ".json"}

// Write stores records at path in the format chosen by its extension. Columns
// are the singleton fields, then the member columns present, then any other
// keys.
func Write(path string, records []record.Record) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	columns := record.Columns(records)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		return writeXLSX(path, columns, records)
	case ".csv":
		return writeTable(path, columns, records, table.Writer.RenderCSV)
	case ".md":
		return writeTable(path, columns, records, table.Writer.RenderMarkdown)
	case ".json":
		return writeJSON(path, records)
	default:
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnsupportedFormat, ext, strings.Join(Formats, ", "))
	}
}

// newTable returns a table holding the records, one row each.
func newTable(columns []string, records []record.Record) table.Writer {
	t := table.NewWriter()
	t.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, rec := range records {
		values := rec.Row(columns)
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = v
		}
		t.AppendRow(row)
	}
	return t
}

func writeTable(path string, columns []string, records []record.Record, render func(table.Writer) string) error {
	out := render(newTable(columns, records))
	if out != "" {
		out += "\n"
	}
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, records []record.Record) error {
	if records == nil {
		records = []record.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
