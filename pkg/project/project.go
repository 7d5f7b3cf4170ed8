// Package project defines the persisted kmerkit project manifest: the sample
// table, per-stage parameter records, completion markers, and output
// locations shared by every pipeline stage. The manifest is a versioned JSON
// file at <workdir>/<name>.json and is the single source of truth between
// invocations.
package project

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// Schema version strings carried in the manifest's "kmpy" field.
const (
	SchemaV1      = "1"
	SchemaV2      = "2"
	CurrentSchema = SchemaV2
)

// SampleRecord describes one biological sample: one file (single-end) or an
// R1/R2 pair (paired-end, R1 first).
type SampleRecord struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// Paired reports whether the sample has paired-end reads.
func (s *SampleRecord) Paired() bool { return len(s.Files) == 2 }

// SampleStats summarizes one sample's k-mer database.
type SampleStats struct {
	DistinctKmers uint64 `json:"distinct_kmers"`
	TotalKmers    uint64 `json:"total_kmers"`
}

// CountParams are the knobs recorded when the count stage completes.
type CountParams struct {
	KmerSize  int  `json:"kmer_size"`
	MinDepth  int  `json:"min_depth"`
	MaxDepth  int  `json:"max_depth"`
	MaxCount  int  `json:"max_count"`
	Canonical bool `json:"canonical"`
}

// Validate checks the count stage bounds.
func (p CountParams) Validate() error {
	switch {
	case p.KmerSize < 2:
		return fmt.Errorf("kmer size must be >= 2, got %d: %w", p.KmerSize, ErrInvalid)
	case p.MinDepth < 1:
		return fmt.Errorf("min depth must be >= 1, got %d: %w", p.MinDepth, ErrInvalid)
	case p.MaxDepth < 1:
		return fmt.Errorf("max depth must be >= 1, got %d: %w", p.MaxDepth, ErrInvalid)
	case p.MaxDepth < p.MinDepth:
		return fmt.Errorf("max depth %d below min depth %d: %w", p.MaxDepth, p.MinDepth, ErrInvalid)
	case p.MaxCount < 1:
		return fmt.Errorf("max count must be >= 1, got %d: %w", p.MaxCount, ErrInvalid)
	}
	return nil
}

// CountResult records one sample's completed count run.
type CountResult struct {
	Fingerprint string      `json:"fingerprint"`
	Database    string      `json:"database"`
	Stats       SampleStats `json:"stats"`
}

// CountRecord marks the count stage complete. Its presence in the manifest
// is the completion marker; Samples only ever holds successful runs.
type CountRecord struct {
	Params      CountParams             `json:"params"`
	Fingerprint string                  `json:"fingerprint"`
	Samples     map[string]*CountResult `json:"samples"`
	CompletedAt time.Time               `json:"completed_at"`
}

// FilterParams are the group-coverage thresholds recorded when the filter
// stage completes. Indices are group ids: element 0 for group 0, element 1
// for group 1.
type FilterParams struct {
	MinCov      float64    `json:"min_cov"`
	MinMap      [2]float64 `json:"min_map"`
	MaxMap      [2]float64 `json:"max_map"`
	MinMapCanon [2]float64 `json:"min_map_canon"`
}

// Validate checks that every threshold is a fraction.
func (p FilterParams) Validate() error {
	check := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v: %w", name, v, ErrInvalid)
		}
		return nil
	}
	if err := check("min-cov", p.MinCov); err != nil {
		return err
	}
	for g := 0; g < 2; g++ {
		if err := check(fmt.Sprintf("min-map[%d]", g), p.MinMap[g]); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("max-map[%d]", g), p.MaxMap[g]); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("min-map-canon[%d]", g), p.MinMapCanon[g]); err != nil {
			return err
		}
		if p.MaxMap[g] < p.MinMap[g] {
			return fmt.Errorf("max-map[%d] %v below min-map[%d] %v: %w",
				g, p.MaxMap[g], g, p.MinMap[g], ErrInvalid)
		}
	}
	return nil
}

// FilterRecord marks the filter stage complete.
type FilterRecord struct {
	Params      FilterParams `json:"params"`
	Fingerprint string       `json:"fingerprint"`

	// KmerSize and Canonical mirror the count stage settings the filter ran
	// against, so extract can match reads without reloading databases.
	KmerSize  int  `json:"kmer_size"`
	Canonical bool `json:"canonical"`

	// Groups holds the trait grouping used, sample names sorted per group.
	Groups [2][]string `json:"groups"`

	// Kmers is the path of the retained k-mer set (gzip TSV).
	Kmers       string    `json:"kmers"`
	Retained    uint64    `json:"retained"`
	Scanned     uint64    `json:"scanned"`
	CompletedAt time.Time `json:"completed_at"`
}

// ExtractParams are the read-extraction knobs recorded on completion.
type ExtractParams struct {
	MinKmersPerRead int  `json:"min_kmers_per_read"`
	KeepPaired      bool `json:"keep_paired"`
}

// Validate checks the extract stage bounds.
func (p ExtractParams) Validate() error {
	if p.MinKmersPerRead < 1 {
		return fmt.Errorf("min kmers per read must be >= 1, got %d: %w",
			p.MinKmersPerRead, ErrInvalid)
	}
	return nil
}

// ExtractResult records one sample's extraction.
type ExtractResult struct {
	Outputs      []string `json:"outputs"`
	ReadsScanned uint64   `json:"reads_scanned"`
	ReadsKept    uint64   `json:"reads_kept"`
}

// ExtractRecord marks the extract stage complete.
type ExtractRecord struct {
	Params      ExtractParams             `json:"params"`
	Fingerprint string                    `json:"fingerprint"`
	Samples     map[string]*ExtractResult `json:"samples"`
	CompletedAt time.Time                 `json:"completed_at"`
}

// Manifest is the root persisted entity for a project. A stage record is
// present if and only if that stage completed; Save replaces the file
// atomically so readers never observe a torn write.
type Manifest struct {
	Schema  string `json:"kmpy"`
	Name    string `json:"name"`
	Workdir string `json:"workdir"`

	Samples map[string]*SampleRecord `json:"samples"`

	Count   *CountRecord   `json:"count,omitempty"`
	Filter  *FilterRecord  `json:"filter,omitempty"`
	Extract *ExtractRecord `json:"extract,omitempty"`

	// path remembers where the manifest was loaded from or first saved.
	path string
}

// Path returns the manifest's on-disk location.
func (m *Manifest) Path() string {
	if m.path != "" {
		return m.path
	}
	return filepath.Join(m.Workdir, m.Name+".json")
}

// ArtifactPath derives the conventional output location for a stage
// artifact: <workdir>/<name>_<stage>_<artifact>.
func (m *Manifest) ArtifactPath(stage Stage, artifact string) string {
	return filepath.Join(m.Workdir, fmt.Sprintf("%s_%s_%s", m.Name, stage, artifact))
}

// StageComplete reports whether the stage's completion marker is set.
func (m *Manifest) StageComplete(s Stage) bool {
	switch s {
	case StageInit:
		return len(m.Samples) > 0
	case StageCount:
		return m.Count != nil
	case StageFilter:
		return m.Filter != nil
	case StageExtract:
		return m.Extract != nil
	}
	return false
}

// RequireStage returns a PrerequisiteError naming the missing stage when
// stage has not completed.
func (m *Manifest) RequireStage(running, needs Stage) error {
	if !m.StageComplete(needs) {
		return &PrerequisiteError{Stage: running, Needs: needs}
	}
	return nil
}

// ClearFrom drops the record for stage s and everything downstream of it.
// Called when a stage is forced or re-parameterized, so stale downstream
// output can never be consumed against fresh input.
func (m *Manifest) ClearFrom(s Stage) {
	switch s {
	case StageCount:
		m.Count = nil
		fallthrough
	case StageFilter:
		m.Filter = nil
		fallthrough
	case StageExtract:
		m.Extract = nil
	}
}

// SampleNames returns the sample table keys, sorted.
func (m *Manifest) SampleNames() []string {
	names := make([]string, 0, len(m.Samples))
	for name := range m.Samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// manifestV1 is the original schema: a bare sample table without stage
// fingerprints. Loading one migrates it forward; the absent fingerprints
// force recomputation of any stage the caller re-runs.
type manifestV1 struct {
	Schema  string              `json:"kmpy"`
	Name    string              `json:"name"`
	Workdir string              `json:"workdir"`
	Samples map[string][]string `json:"samples"`
}

func (v1 *manifestV1) toV2() *Manifest {
	m := &Manifest{
		Schema:  SchemaV2,
		Name:    v1.Name,
		Workdir: v1.Workdir,
		Samples: make(map[string]*SampleRecord, len(v1.Samples)),
	}
	for name, files := range v1.Samples {
		m.Samples[name] = &SampleRecord{Name: name, Files: files}
	}
	return m
}

// Parse decodes manifest bytes, migrating older schema versions forward.
// Unknown or missing versions are rejected as corrupt rather than guessed
// at.
func Parse(data []byte) (*Manifest, error) {
	var raw struct {
		Schema *string `json:"kmpy"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if raw.Schema == nil {
		return nil, fmt.Errorf("%w: missing schema version field", ErrCorrupt)
	}

	switch *raw.Schema {
	case SchemaV1:
		var v1 manifestV1
		if err := json.Unmarshal(data, &v1); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return v1.toV2(), nil
	case SchemaV2:
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported schema version %q", ErrCorrupt, *raw.Schema)
	}
}

// validate checks required fields after parse.
func (m *Manifest) validate() error {
	switch {
	case m.Name == "":
		return fmt.Errorf("%w: missing project name", ErrCorrupt)
	case m.Workdir == "":
		return fmt.Errorf("%w: missing workdir", ErrCorrupt)
	case len(m.Samples) == 0:
		return fmt.Errorf("%w: empty sample table", ErrCorrupt)
	}
	for name, rec := range m.Samples {
		if rec == nil || len(rec.Files) < 1 || len(rec.Files) > 2 {
			return fmt.Errorf("%w: sample %q must have 1 or 2 files", ErrCorrupt, name)
		}
	}
	return nil
}
