// Package traits loads the case/control label table used by the filter
// stage and validates it against the project's sample table.
package traits

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eaton-lab/kmpy/pkg/project"
)

// Table maps sample name to its binary group label (0 or 1).
type Table map[string]int

// Load parses a delimited trait file with a sample-name column and a 0/1
// label column. Comma and tab delimiters are supported; a header row is
// skipped when its label field is not parseable as 0/1.
func Load(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open trait file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if ext := filepath.Ext(path); ext == ".tsv" || ext == ".txt" || ext == ".tab" {
		r.Comma = '\t'
	}
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to parse trait file %s: %w", path, err)
	}

	table := make(Table)
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf(
				"trait file %s row %d has %d column(s), need sample and label: %w",
				path, i+1, len(row), project.ErrInvalid)
		}
		name := strings.TrimSpace(row[0])
		label := strings.TrimSpace(row[1])

		group, ok := parseLabel(label)
		if !ok {
			if i == 0 {
				// header row
				continue
			}
			return nil, fmt.Errorf(
				"trait file %s row %d: label %q is not 0 or 1: %w",
				path, i+1, label, project.ErrInvalid)
		}
		if prev, dup := table[name]; dup && prev != group {
			return nil, fmt.Errorf(
				"trait file %s: sample %q labeled both %d and %d: %w",
				path, name, prev, group, project.ErrInvalid)
		}
		table[name] = group
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("trait file %s has no data rows: %w", path, project.ErrInvalid)
	}
	return table, nil
}

func parseLabel(s string) (int, bool) {
	switch s {
	case "0":
		return 0, true
	case "1":
		return 1, true
	}
	return 0, false
}

// Validate checks that every sample named in the table exists in the
// manifest. Unknown names abort the whole filter stage before any
// computation; partial acceptance is not permitted.
func (t Table) Validate(m *project.Manifest) error {
	var unknown []string
	for name := range t {
		if _, ok := m.Samples[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &project.UnknownSampleError{Names: unknown}
	}
	return nil
}

// Groups splits the table into its two cohorts, sample names sorted.
func (t Table) Groups() [2][]string {
	var groups [2][]string
	for name, g := range t {
		groups[g] = append(groups[g], name)
	}
	sort.Strings(groups[0])
	sort.Strings(groups[1])
	return groups
}

// Samples returns every labeled sample name, sorted.
func (t Table) Samples() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
