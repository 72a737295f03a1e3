// Package tabular structures the fixed-width table text emitted by the
// remote management CLI. Column boundaries come from the separator line,
// not from regular expressions, so values with embedded spaces survive as
// long as the tool keeps its columns aligned.
package tabular

import (
	"strings"

	"github.com/bmops/provisioner/pkg/fault"
)

// The CLI renders a fixed 2-character gap between columns; slicing at the
// separator runs' own byte offsets reproduces that without assuming it.

// Record is one parsed row: an ordered mapping from trimmed column name to
// trimmed value. All records of one parse share the column set derived
// from the header/separator pair.
type Record struct {
	columns []string
	values  map[string]string
}

// Columns returns the column names in table order.
func (r Record) Columns() []string { return r.columns }

// Get returns the value for a column name, or the empty string.
func (r Record) Get(name string) string { return r.values[name] }

// Len is the number of columns.
func (r Record) Len() int { return len(r.columns) }

// Parse converts table text into records. The first line holds the header
// labels and the second a separator of whitespace-separated runs whose
// lengths define the column widths. Input with fewer than two lines yields
// an empty sequence.
func Parse(text string) ([]Record, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) < 2 {
		return nil, nil
	}

	runs := separatorRuns(lines[1])
	if len(runs) == 0 {
		return nil, fault.New(fault.Parse, "separator line %q defines no columns", lines[1])
	}

	columns := sliceFields(lines[0], runs)
	records := make([]Record, 0, len(lines)-2)
	for _, line := range lines[2:] {
		fields := sliceFields(line, runs)
		values := make(map[string]string, len(columns))
		for i, name := range columns {
			values[name] = fields[i]
		}
		records = append(records, Record{columns: columns, values: values})
	}
	return records, nil
}

// run is one whitespace-separated run of the separator line: its byte
// offset and length define one column.
type run struct {
	start int
	width int
}

// separatorRuns locates the runs of the separator line.
func separatorRuns(sep string) []run {
	var runs []run
	start := -1
	for i, c := range sep {
		if c == ' ' || c == '\t' {
			if start >= 0 {
				runs = append(runs, run{start: start, width: i - start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		runs = append(runs, run{start: start, width: len(sep) - start})
	}
	return runs
}

// sliceFields cuts a line at the same byte offsets as the separator runs,
// trimming each field. Offsets past the end of the line yield empty
// fields, so short lines are tolerated.
func sliceFields(line string, runs []run) []string {
	fields := make([]string, 0, len(runs))
	for _, r := range runs {
		start, end := r.start, r.start+r.width
		if start > len(line) {
			start = len(line)
		}
		if end > len(line) {
			end = len(line)
		}
		fields = append(fields, strings.TrimSpace(line[start:end]))
	}
	return fields
}
