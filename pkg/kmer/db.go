package kmer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// DB is one sample's k-mer database: every k-mer whose depth fell within
// the count stage's bounds, keyed by sequence. Serialized as gob over gzip.
type DB struct {
	K         int
	Canonical bool
	MinDepth  int
	Counts    map[string]uint32
}

// Stats returns the distinct k-mer count and total occurrence sum.
func (db *DB) Stats() (distinct, total uint64) {
	distinct = uint64(len(db.Counts))
	for _, c := range db.Counts {
		total += uint64(c)
	}
	return distinct, total
}

// WriteDB persists db to path via a temp file and rename, so readers never
// observe a partially written database.
func WriteDB(path string, db *DB) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "kdb-*")
	if err != nil {
		return fmt.Errorf("unable to create temp database: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	gz := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(gz).Encode(db); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to encode database: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to compress database: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to sync database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close database: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("unable to place database at %s: %w", path, err)
	}
	return nil
}

// ReadDB loads a database written by WriteDB.
func ReadDB(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("database %s is not gzip: %w", path, err)
	}
	defer gz.Close()

	var db DB
	if err := gob.NewDecoder(gz).Decode(&db); err != nil {
		return nil, fmt.Errorf("unable to decode database %s: %w", path, err)
	}
	return &db, nil
}
