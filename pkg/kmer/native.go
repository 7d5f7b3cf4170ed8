package kmer

import (
	"context"
	"fmt"
	"io"

	"github.com/eaton-lab/kmpy/pkg/seqio"
)

// Native is the in-process counting engine. It streams every read of a
// sample through a rolling window counter and writes the bounded counts as
// a DB. It needs no external binaries, which keeps small projects and tests
// self-contained; large projects can switch to the KMC engine.
type Native struct{}

func (Native) Name() string { return "native" }

// Count implements Engine.
func (Native) Count(ctx context.Context, files []string, out string, p Params) (Stats, error) {
	counts := make(map[string]uint32)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		if err := countFile(ctx, path, p, counts); err != nil {
			return Stats{}, err
		}
	}

	// Apply depth bounds and the count cap after the full scan; a k-mer's
	// depth is only known once every read has been seen.
	maxCount := uint32(p.MaxCount)
	for k, c := range counts {
		if int(c) < p.MinDepth || int(c) > p.MaxDepth {
			delete(counts, k)
			continue
		}
		if c > maxCount {
			counts[k] = maxCount
		}
	}

	db := &DB{K: p.K, Canonical: p.Canonical, MinDepth: p.MinDepth, Counts: counts}
	if err := WriteDB(out, db); err != nil {
		return Stats{}, err
	}
	distinct, total := db.Stats()
	return Stats{Distinct: distinct, Total: total}, nil
}

func countFile(ctx context.Context, path string, p Params, counts map[string]uint32) error {
	r, err := seqio.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	reads := 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		ForEach(rec.Seq, p.K, p.Canonical, func(w string) {
			counts[w]++
		})
		// check for cancellation between batches of reads, not per window
		if reads++; reads%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("counting %s: %w", path, err)
			}
		}
	}
}
