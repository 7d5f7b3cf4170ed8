package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/eaton-lab/kmpy/pkg/kmer"
	"github.com/eaton-lab/kmpy/pkg/log"
	"github.com/eaton-lab/kmpy/pkg/project"
	"github.com/eaton-lab/kmpy/pkg/traits"
)

// FilterOptions configures the filter stage.
type FilterOptions struct {
	project.FilterParams

	Threads int
	Force   bool
}

// retainedKmer is one k-mer that passed classification, with its per-group
// coverage fractions.
type retainedKmer struct {
	kmer string
	cov  [2]float64
}

// Filter classifies every k-mer observed across the labeled samples'
// databases by group-wise coverage and writes the retained set plus
// per-group fractions to <workdir>/<name>_filter_kmers.tsv.gz.
//
// A k-mer's coverage fraction for group g is the share of that group's
// samples whose database contains it (databases already enforce the count
// stage's depth bounds). A k-mer is retained when it reaches MinCov in at
// least one group, sits inside the closed interval [MinMap[g], MaxMap[g]]
// for both groups, and — when counting was canonical — reaches
// MinMapCanon[g] for both groups.
//
// Zero retained k-mers is not an error: the stage completes with an empty
// set and logs the condition, and downstream extraction extracts nothing.
func Filter(ctx context.Context, m *project.Manifest, table traits.Table, opts FilterOptions) error {
	lg := log.FromContext(ctx).With("stage", project.StageFilter.String())

	if err := opts.FilterParams.Validate(); err != nil {
		return err
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if err := m.RequireStage(project.StageFilter, project.StageCount); err != nil {
		return err
	}
	if err := table.Validate(m); err != nil {
		return err
	}

	samples := table.Samples()
	for _, name := range samples {
		res, ok := m.Count.Samples[name]
		if !ok || !fileExists(res.Database) {
			return fmt.Errorf("sample %q has no count database: %w",
				name, &project.PrerequisiteError{
					Stage: project.StageFilter,
					Needs: project.StageCount,
				})
		}
	}

	groups := table.Groups()
	fp := project.Fingerprint(struct {
		Params  project.FilterParams
		Groups  [2][]string
		CountFP string
	}{opts.FilterParams, groups, m.Count.Fingerprint})

	if !opts.Force && m.Filter != nil && m.Filter.Fingerprint == fp && fileExists(m.Filter.Kmers) {
		lg.Info("filter already complete, skipping", "kmers", m.Filter.Kmers)
		return nil
	}

	// Group membership as bitmaps over sample indices, so per-k-mer group
	// coverage is an intersection cardinality.
	var groupBits [2]*roaring.Bitmap
	groupBits[0], groupBits[1] = roaring.New(), roaring.New()
	for i, name := range samples {
		groupBits[table[name]].Add(uint32(i))
	}
	var groupSize [2]float64
	groupSize[0] = float64(groupBits[0].GetCardinality())
	groupSize[1] = float64(groupBits[1].GetCardinality())

	// Barrier scan: every sample's presence set must be known before any
	// k-mer can be classified.
	index := make(map[string]*roaring.Bitmap)
	var mu sync.Mutex

	kSize := m.Count.Params.KmerSize
	canonical := m.Count.Params.Canonical

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)
	for i, name := range samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			db, err := kmer.ReadDB(m.Count.Samples[name].Database)
			if err != nil {
				return err
			}
			if db.K != kSize || db.Canonical != canonical {
				return fmt.Errorf(
					"database for sample %q was counted with k=%d canonical=%v, manifest says k=%d canonical=%v: %w",
					name, db.K, db.Canonical, kSize, canonical, project.ErrCorrupt)
			}
			mu.Lock()
			defer mu.Unlock()
			for seq := range db.Counts {
				bm, ok := index[seq]
				if !ok {
					bm = roaring.New()
					index[seq] = bm
				}
				bm.Add(uint32(i))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	lg.Info("scanned sample databases",
		"samples", len(samples), "distinct_kmers", len(index))

	// Classification is embarrassingly parallel across k-mers.
	kmers := make([]string, 0, len(index))
	for seq := range index {
		kmers = append(kmers, seq)
	}
	chunks := chunkStrings(kmers, opts.Threads)
	retainedParts := make([][]retainedKmer, len(chunks))

	cg, cctx := errgroup.WithContext(ctx)
	for ci, chunk := range chunks {
		cg.Go(func() error {
			part := make([]retainedKmer, 0, len(chunk)/4)
			for n, seq := range chunk {
				if n%8192 == 0 {
					if err := cctx.Err(); err != nil {
						return err
					}
				}
				bits := index[seq]
				var cov [2]float64
				for grp := 0; grp < 2; grp++ {
					if groupSize[grp] > 0 {
						cov[grp] = float64(roaring.And(bits, groupBits[grp]).GetCardinality()) / groupSize[grp]
					}
				}
				if keepKmer(cov, canonical, opts.FilterParams) {
					part = append(part, retainedKmer{kmer: seq, cov: cov})
				}
			}
			retainedParts[ci] = part
			return nil
		})
	}
	if err := cg.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var retained []retainedKmer
	for _, part := range retainedParts {
		retained = append(retained, part...)
	}
	sort.Slice(retained, func(i, j int) bool { return retained[i].kmer < retained[j].kmer })

	outPath := m.ArtifactPath(project.StageFilter, "kmers.tsv.gz")
	if err := writeRetained(outPath, retained); err != nil {
		return err
	}

	if len(retained) == 0 {
		lg.Warn("no kmers passed the filter thresholds",
			"scanned", len(index), "reason", project.ErrEmptyResult.Error())
	} else {
		lg.Info("filter complete",
			"scanned", len(index), "retained", len(retained), "kmers", outPath)
	}

	rec := &project.FilterRecord{
		Params:      opts.FilterParams,
		Fingerprint: fp,
		KmerSize:    kSize,
		Canonical:   canonical,
		Groups:      groups,
		Kmers:       outPath,
		Retained:    uint64(len(retained)),
		Scanned:     uint64(len(index)),
	}
	return m.RecordFilter(rec)
}

// keepKmer applies classification steps 2-4. All comparisons are closed
// interval tests: boundary values pass.
func keepKmer(cov [2]float64, canonical bool, p project.FilterParams) bool {
	// sufficient presence in at least one group
	if cov[0] < p.MinCov && cov[1] < p.MinCov {
		return false
	}
	for g := 0; g < 2; g++ {
		if cov[g] < p.MinMap[g] || cov[g] > p.MaxMap[g] {
			return false
		}
		if canonical && cov[g] < p.MinMapCanon[g] {
			return false
		}
	}
	return true
}

// chunkStrings splits s into at most n non-empty chunks.
func chunkStrings(s []string, n int) [][]string {
	if len(s) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	size := (len(s) + n - 1) / n
	var chunks [][]string
	for start := 0; start < len(s); start += size {
		end := min(start+size, len(s))
		chunks = append(chunks, s[start:end])
	}
	return chunks
}

// writeRetained emits the filtered k-mer set as gzip TSV rows of
// kmer, cov0, cov1.
func writeRetained(path string, retained []retainedKmer) error {
	w, err := newGzipLineWriter(path)
	if err != nil {
		return err
	}
	for _, r := range retained {
		if _, err := fmt.Fprintf(w, "%s\t%.6f\t%.6f\n", r.kmer, r.cov[0], r.cov[1]); err != nil {
			w.Close()
			return fmt.Errorf("unable to write %s: %w", path, err)
		}
	}
	return w.Close()
}
