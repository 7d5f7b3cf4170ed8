package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/sync/errgroup"

	"github.com/eaton-lab/kmpy/pkg/kmer"
	"github.com/eaton-lab/kmpy/pkg/log"
	"github.com/eaton-lab/kmpy/pkg/project"
	"github.com/eaton-lab/kmpy/pkg/seqio"
)

// ExtractOptions configures the extract stage.
type ExtractOptions struct {
	project.ExtractParams

	Threads  int
	Force    bool
	Progress bool

	// Delim is the sample-name delimiter for ad-hoc file selectors.
	Delim string
}

// Extract scans the selected samples' read files and keeps every read (or
// read pair, when KeepPaired) containing at least MinKmersPerRead of the
// filter stage's retained k-mers. Matching is strand-aware when the
// upstream count was canonical. Outputs land at
// <workdir>/<name>_extract_<sample>[_R1|_R2].<ext>.gz.
func Extract(ctx context.Context, m *project.Manifest, tokens []string, opts ExtractOptions) error {
	lg := log.FromContext(ctx).With("stage", project.StageExtract.String())

	if err := opts.ExtractParams.Validate(); err != nil {
		return err
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}

	// The target k-mer set always comes from the filter stage, so every
	// selector form needs it, not just group ids.
	if err := m.RequireStage(project.StageExtract, project.StageFilter); err != nil {
		return err
	}

	sel, err := ResolveSelector(m, tokens)
	if err != nil {
		return err
	}

	samples, err := selectSamples(m, sel, opts.Delim)
	if err != nil {
		return err
	}

	fp := project.Fingerprint(struct {
		Params   project.ExtractParams
		Selector *Selector
		FilterFP string
	}{opts.ExtractParams, sel, m.Filter.Fingerprint})

	if !opts.Force && m.Extract != nil && m.Extract.Fingerprint == fp && outputsExist(m.Extract) {
		lg.Info("extract already complete, skipping")
		return nil
	}

	targets, err := LoadKmerSet(m.Filter.Kmers)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		lg.Warn("target kmer set is empty, outputs will contain no reads",
			"kmers", m.Filter.Kmers)
	}

	var bar *pb.ProgressBar
	if opts.Progress {
		bar = pb.New(len(samples)).SetWriter(os.Stderr).Start()
	}

	results := make([]*project.ExtractResult, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)
	for i, sample := range samples {
		g.Go(func() error {
			res, err := scanSample(gctx, m, sample, targets, opts)
			if err != nil {
				return fmt.Errorf("extracting sample %q: %w", sample.Name, err)
			}
			results[i] = res
			lg.Info("sample extracted",
				"sample", sample.Name,
				"reads_scanned", res.ReadsScanned,
				"reads_kept", res.ReadsKept,
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
		return ctx.Err()
	}
	if werr != nil {
		return werr
	}

	rec := &project.ExtractRecord{
		Params:      opts.ExtractParams,
		Fingerprint: fp,
		Samples:     make(map[string]*project.ExtractResult, len(samples)),
	}
	var kept uint64
	for i, sample := range samples {
		rec.Samples[sample.Name] = results[i]
		kept += results[i].ReadsKept
	}
	if kept == 0 {
		lg.Warn("no reads contained the target kmers",
			"reason", project.ErrEmptyResult.Error())
	}
	return m.RecordExtract(rec)
}

// selectSamples expands a resolved selector into concrete sample records.
func selectSamples(m *project.Manifest, sel *Selector, delim string) ([]*project.SampleRecord, error) {
	switch sel.Form {
	case SelectorNames:
		names := append([]string(nil), sel.Names...)
		sort.Strings(names)
		samples := make([]*project.SampleRecord, 0, len(names))
		for _, name := range names {
			samples = append(samples, m.Samples[name])
		}
		return samples, nil

	case SelectorGroup:
		names := m.Filter.Groups[sel.Group]
		if len(names) == 0 {
			return nil, fmt.Errorf("filter group %d has no samples: %w",
				sel.Group, project.ErrInvalid)
		}
		samples := make([]*project.SampleRecord, 0, len(names))
		for _, name := range names {
			rec, ok := m.Samples[name]
			if !ok {
				return nil, fmt.Errorf(
					"filter group %d names sample %q missing from the manifest: %w",
					sel.Group, name, project.ErrCorrupt)
			}
			samples = append(samples, rec)
		}
		return samples, nil

	case SelectorPaths:
		table, err := project.ResolveSamples(sel.Paths, delim)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(table))
		for name := range table {
			names = append(names, name)
		}
		sort.Strings(names)
		samples := make([]*project.SampleRecord, 0, len(names))
		for _, name := range names {
			samples = append(samples, table[name])
		}
		return samples, nil
	}
	return nil, fmt.Errorf("unresolved selector: %w", project.ErrInvalid)
}

// scanSample filters one sample's reads against the target set.
func scanSample(
	ctx context.Context,
	m *project.Manifest,
	sample *project.SampleRecord,
	targets map[string]struct{},
	opts ExtractOptions,
) (*project.ExtractResult, error) {
	if sample.Paired() && opts.KeepPaired {
		return scanPair(ctx, m, sample, targets, opts)
	}

	res := &project.ExtractResult{}
	for i, path := range sample.Files {
		out := extractOutPath(m, sample, i, len(sample.Files) > 1)
		scanned, numKept, err := scanFile(ctx, path, out, targets, opts, m.Filter)
		if err != nil {
			return nil, err
		}
		res.Outputs = append(res.Outputs, out)
		res.ReadsScanned += scanned
		res.ReadsKept += numKept
	}
	return res, nil
}

// scanFile assesses each read of one file individually.
func scanFile(
	ctx context.Context,
	path, out string,
	targets map[string]struct{},
	opts ExtractOptions,
	fr *project.FilterRecord,
) (scanned, kept uint64, err error) {
	r, err := seqio.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	w, err := seqio.Create(out)
	if err != nil {
		return 0, 0, err
	}

	for {
		if scanned%4096 == 0 {
			if err := ctx.Err(); err != nil {
				w.Close()
				return scanned, kept, err
			}
		}
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Close()
			return scanned, kept, err
		}
		scanned++
		hits := kmer.CountHits(rec.Seq, fr.KmerSize, fr.Canonical, targets, opts.MinKmersPerRead)
		if hits >= opts.MinKmersPerRead {
			kept++
			if err := w.Write(rec); err != nil {
				w.Close()
				return scanned, kept, err
			}
		}
	}
	return scanned, kept, w.Close()
}

// scanPair walks R1 and R2 in lockstep and keeps whole pairs: a pair is
// retained when either mate reaches the per-read threshold on its own.
func scanPair(
	ctx context.Context,
	m *project.Manifest,
	sample *project.SampleRecord,
	targets map[string]struct{},
	opts ExtractOptions,
) (*project.ExtractResult, error) {
	fr := m.Filter

	r1, err := seqio.Open(sample.Files[0])
	if err != nil {
		return nil, err
	}
	defer r1.Close()
	r2, err := seqio.Open(sample.Files[1])
	if err != nil {
		return nil, err
	}
	defer r2.Close()

	out1 := extractOutPath(m, sample, 0, true)
	out2 := extractOutPath(m, sample, 1, true)
	w1, err := seqio.Create(out1)
	if err != nil {
		return nil, err
	}
	w2, err := seqio.Create(out2)
	if err != nil {
		w1.Close()
		return nil, err
	}
	closeAll := func() error {
		err1 := w1.Close()
		err2 := w2.Close()
		if err1 != nil {
			return err1
		}
		return err2
	}

	res := &project.ExtractResult{Outputs: []string{out1, out2}}
	for {
		if res.ReadsScanned%4096 == 0 {
			if err := ctx.Err(); err != nil {
				closeAll()
				return nil, err
			}
		}
		rec1, err1 := r1.Next()
		rec2, err2 := r2.Next()
		if err1 == io.EOF && err2 == io.EOF {
			break
		}
		if err1 == io.EOF || err2 == io.EOF {
			closeAll()
			return nil, fmt.Errorf(
				"paired files for sample %q have different read counts: %w",
				sample.Name, project.ErrInvalid)
		}
		if err1 != nil {
			closeAll()
			return nil, err1
		}
		if err2 != nil {
			closeAll()
			return nil, err2
		}
		res.ReadsScanned += 2

		hits1 := kmer.CountHits(rec1.Seq, fr.KmerSize, fr.Canonical, targets, opts.MinKmersPerRead)
		keep := hits1 >= opts.MinKmersPerRead
		if !keep {
			hits2 := kmer.CountHits(rec2.Seq, fr.KmerSize, fr.Canonical, targets, opts.MinKmersPerRead)
			keep = hits2 >= opts.MinKmersPerRead
		}
		if keep {
			res.ReadsKept += 2
			if err := w1.Write(rec1); err != nil {
				closeAll()
				return nil, err
			}
			if err := w2.Write(rec2); err != nil {
				closeAll()
				return nil, err
			}
		}
	}
	if err := closeAll(); err != nil {
		return nil, err
	}
	return res, nil
}

// extractOutPath derives one output file location, matching the input's
// FASTA/FASTQ flavor.
func extractOutPath(m *project.Manifest, sample *project.SampleRecord, mate int, paired bool) string {
	ext := ".fastq.gz"
	if looksFasta(sample.Files[mate]) {
		ext = ".fasta.gz"
	}
	name := sample.Name + ext
	if paired {
		name = fmt.Sprintf("%s_R%d%s", sample.Name, mate+1, ext)
	}
	return m.ArtifactPath(project.StageExtract, name)
}

func looksFasta(path string) bool {
	base := strings.TrimSuffix(filepath.Base(path), ".gz")
	return strings.HasSuffix(base, ".fasta") || strings.HasSuffix(base, ".fa")
}

func outputsExist(rec *project.ExtractRecord) bool {
	for _, res := range rec.Samples {
		for _, out := range res.Outputs {
			if !fileExists(out) {
				return false
			}
		}
	}
	return true
}
