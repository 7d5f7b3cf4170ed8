package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Init creates a fresh project manifest at <workdir>/<name>.json and
// persists it. The work directory is created when absent. If a manifest
// already exists at the target path and force is false, Init fails with
// ErrExists; with force the file is replaced and all stage state is reset.
func Init(name, workdir string, samples map[string]*SampleRecord, force bool) (*Manifest, error) {
	if name == "" {
		return nil, fmt.Errorf("project name required: %w", ErrInvalid)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("at least one sample required: %w", ErrInvalid)
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create workdir %s: %w", workdir, err)
	}

	m := &Manifest{
		Schema:  CurrentSchema,
		Name:    name,
		Workdir: workdir,
		Samples: samples,
	}
	if _, err := os.Stat(m.Path()); err == nil && !force {
		return nil, fmt.Errorf("manifest %s: %w", m.Path(), ErrExists)
	}
	if err := m.Save(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads and validates a manifest file. Missing files yield ErrNotFound;
// unparseable or structurally invalid files yield ErrCorrupt.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("manifest %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read manifest %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	m.path = path
	return m, nil
}

// Save persists the manifest atomically: write to a temp file in the same
// directory, fsync, then rename over the target. A crash mid-save leaves
// either the prior manifest or the fully-updated one, never a torn write.
func (m *Manifest) Save() error {
	path := m.Path()
	m.path = path

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode manifest: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("unable to create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("unable to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("unable to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("unable to close manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("unable to replace manifest: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes a directory entry so a rename survives power loss.
// Best-effort: some filesystems refuse to sync directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

// RecordCount marks the count stage complete and persists the manifest.
// Any prior count record is replaced; downstream stage records are cleared
// because their input changed.
func (m *Manifest) RecordCount(rec *CountRecord) error {
	rec.CompletedAt = time.Now().UTC()
	m.Count = rec
	m.ClearFrom(StageFilter)
	return m.Save()
}

// RecordFilter marks the filter stage complete and persists the manifest.
func (m *Manifest) RecordFilter(rec *FilterRecord) error {
	rec.CompletedAt = time.Now().UTC()
	m.Filter = rec
	m.ClearFrom(StageExtract)
	return m.Save()
}

// RecordExtract marks the extract stage complete and persists the manifest.
func (m *Manifest) RecordExtract(rec *ExtractRecord) error {
	rec.CompletedAt = time.Now().UTC()
	m.Extract = rec
	return m.Save()
}
