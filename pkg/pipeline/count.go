// Package pipeline implements the stage drivers: count, filter, and
// extract. Each driver reads the project manifest to discover prior stage
// output, refuses to run when its prerequisite is missing, runs per-sample
// work on a bounded worker pool, and records completion atomically once all
// workers have finished.
package pipeline

import (
	"context"
	"os"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/sync/errgroup"

	"github.com/eaton-lab/kmpy/pkg/kmer"
	"github.com/eaton-lab/kmpy/pkg/log"
	"github.com/eaton-lab/kmpy/pkg/project"
)

// CountOptions configures the count stage.
type CountOptions struct {
	project.CountParams

	Threads  int
	Force    bool
	Progress bool

	// Engine defaults to the in-process counter.
	Engine kmer.Engine
}

// Count runs the counting engine once per sample and records database
// locations and summary statistics in the manifest. Samples whose database
// already exists under an unchanged parameter fingerprint are skipped
// unless forced. Engine failures are collected per sample and returned as
// one aggregate EngineError after every sample has been attempted; the
// manifest records success only for samples that completed.
func Count(ctx context.Context, m *project.Manifest, opts CountOptions) error {
	lg := log.FromContext(ctx).With("stage", project.StageCount.String())

	if err := opts.CountParams.Validate(); err != nil {
		return err
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	engine := opts.Engine
	if engine == nil {
		engine = kmer.Native{}
	}

	fp := project.Fingerprint(opts.CountParams)
	prior := m.Count
	changed := prior != nil && prior.Fingerprint != fp
	if changed {
		lg.Info("count parameters changed, recomputing all samples")
	}

	results := make(map[string]*project.CountResult)
	var todo []string
	for _, name := range m.SampleNames() {
		if !opts.Force && !changed && prior != nil {
			if res, ok := prior.Samples[name]; ok && res.Fingerprint == fp && fileExists(res.Database) {
				lg.Info("sample already counted, skipping", "sample", name)
				results[name] = res
				continue
			}
		}
		todo = append(todo, name)
	}
	if len(todo) == 0 {
		lg.Info("count already complete", "samples", len(results))
		return nil
	}

	var bar *pb.ProgressBar
	if opts.Progress {
		bar = pb.New(len(todo)).SetWriter(os.Stderr).Start()
	}

	type outcome struct {
		name string
		res  *project.CountResult
		err  error
	}
	outcomes := make([]outcome, len(todo))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)
	for i, name := range todo {
		g.Go(func() error {
			sample := m.Samples[name]
			out := m.ArtifactPath(project.StageCount, name+".kdb.gz")
			stats, err := engine.Count(gctx, sample.Files, out, kmer.Params{
				K:         opts.KmerSize,
				MinDepth:  opts.MinDepth,
				MaxDepth:  opts.MaxDepth,
				MaxCount:  opts.MaxCount,
				Canonical: opts.Canonical,
				Threads:   opts.Threads,
			})
			if err != nil {
				// Per-sample engine failure is not fatal to the batch; only
				// cancellation stops the remaining samples.
				outcomes[i] = outcome{name: name, err: err}
				if bar != nil {
					bar.Increment()
				}
				return gctx.Err()
			}
			outcomes[i] = outcome{name: name, res: &project.CountResult{
				Fingerprint: fp,
				Database:    out,
				Stats: project.SampleStats{
					DistinctKmers: stats.Distinct,
					TotalKmers:    stats.Total,
				},
			}}
			lg.Info("sample counted",
				"sample", name,
				"engine", engine.Name(),
				"distinct_kmers", stats.Distinct,
				"total_kmers", stats.Total,
			)
			if bar != nil {
				bar.Increment()
			}
			return nil
		})
	}
	werr := g.Wait()
	if bar != nil {
		bar.Finish()
	}
	if ctx.Err() != nil {
		// Cancelled: leave the manifest in its pre-stage state.
		return ctx.Err()
	}
	if werr != nil {
		return werr
	}

	failures := make(map[string]error)
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			failures[o.name] = o.err
		case o.res != nil:
			results[o.name] = o.res
		}
	}

	if len(results) > 0 {
		rec := &project.CountRecord{
			Params:      opts.CountParams,
			Fingerprint: fp,
			Samples:     results,
		}
		if err := m.RecordCount(rec); err != nil {
			return err
		}
	}
	if len(failures) > 0 {
		return &project.EngineError{Failures: failures}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
