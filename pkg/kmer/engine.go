package kmer

import "context"

// Params are the counting knobs passed to an engine for one sample.
type Params struct {
	K         int
	MinDepth  int
	MaxDepth  int
	MaxCount  int
	Canonical bool
	Threads   int
}

// Stats summarizes one counting run.
type Stats struct {
	Distinct uint64
	Total    uint64
}

// Engine counts k-mers for one sample. Implementations write a DB (see
// WriteDB) to out and may fail per sample; the count driver aggregates
// failures across samples instead of stopping at the first one.
type Engine interface {
	// Count reads the sample's files and writes the k-mer database to out.
	Count(ctx context.Context, files []string, out string, p Params) (Stats, error)

	// Name identifies the engine in logs and error messages.
	Name() string
}
