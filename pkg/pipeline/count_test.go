package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eaton-lab/kmpy/pkg/kmer"
	"github.com/eaton-lab/kmpy/pkg/pipeline"
	"github.com/eaton-lab/kmpy/pkg/project"
)

// fakeEngine records which samples it was asked to count and writes a
// minimal but real database for each, so skip detection sees the file.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Count(ctx context.Context, files []string, out string, p kmer.Params) (kmer.Stats, error) {
	sample := strings.TrimSuffix(filepath.Base(out), ".kdb.gz")
	if i := strings.LastIndex(sample, "_"); i >= 0 {
		sample = sample[i+1:]
	}
	e.mu.Lock()
	e.calls = append(e.calls, sample)
	e.mu.Unlock()

	if err := e.fail[sample]; err != nil {
		return kmer.Stats{}, err
	}
	db := &kmer.DB{
		K: p.K, Canonical: p.Canonical, MinDepth: p.MinDepth,
		Counts: map[string]uint32{"AAA": 2, "CCC": 1},
	}
	if err := kmer.WriteDB(out, db); err != nil {
		return kmer.Stats{}, err
	}
	return kmer.Stats{Distinct: 2, Total: 3}, nil
}

func (e *fakeEngine) sorted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := append([]string(nil), e.calls...)
	sort.Strings(out)
	return out
}

func newCountProject(t *testing.T) *project.Manifest {
	t.Helper()
	samples := map[string]*project.SampleRecord{
		"A": {Name: "A", Files: []string{"A_R1.fq", "A_R2.fq"}},
		"B": {Name: "B", Files: []string{"B.fq"}},
	}
	m, err := project.Init("test", t.TempDir(), samples, false)
	require.NoError(t, err)
	return m
}

func countOpts(engine kmer.Engine) pipeline.CountOptions {
	return pipeline.CountOptions{
		CountParams: project.CountParams{
			KmerSize: 3, MinDepth: 1, MaxDepth: 100, MaxCount: 255, Canonical: true,
		},
		Threads: 2,
		Engine:  engine,
	}
}

func TestCountRecordsAllSamples(t *testing.T) {
	m := newCountProject(t)
	engine := &fakeEngine{}

	require.NoError(t, pipeline.Count(context.Background(), m, countOpts(engine)))
	require.Equal(t, []string{"A", "B"}, engine.sorted())

	require.NotNil(t, m.Count)
	require.Len(t, m.Count.Samples, 2)
	require.Equal(t, uint64(2), m.Count.Samples["A"].Stats.DistinctKmers)
	require.FileExists(t, m.Count.Samples["A"].Database)

	// completion survives a reload
	loaded, err := project.Load(m.Path())
	require.NoError(t, err)
	require.True(t, loaded.StageComplete(project.StageCount))
}

func TestCountSkipsUnchangedSamples(t *testing.T) {
	m := newCountProject(t)
	engine := &fakeEngine{}
	opts := countOpts(engine)

	require.NoError(t, pipeline.Count(context.Background(), m, opts))
	require.Len(t, engine.calls, 2)

	// same parameters: nothing to do
	require.NoError(t, pipeline.Count(context.Background(), m, opts))
	require.Len(t, engine.calls, 2)

	// force recounts everything
	opts.Force = true
	require.NoError(t, pipeline.Count(context.Background(), m, opts))
	require.Len(t, engine.calls, 4)
}

func TestCountParameterChangeRecomputes(t *testing.T) {
	m := newCountProject(t)
	engine := &fakeEngine{}
	opts := countOpts(engine)

	require.NoError(t, pipeline.Count(context.Background(), m, opts))
	require.Len(t, engine.calls, 2)

	opts.KmerSize = 5
	require.NoError(t, pipeline.Count(context.Background(), m, opts))
	require.Len(t, engine.calls, 4, "fingerprint change recounts all samples")
	require.Equal(t, 5, m.Count.Params.KmerSize)
}

func TestCountInvalidatesDownstreamStages(t *testing.T) {
	m := newCountProject(t)
	m.Filter = &project.FilterRecord{}
	m.Extract = &project.ExtractRecord{}

	require.NoError(t, pipeline.Count(context.Background(), m, countOpts(&fakeEngine{})))
	require.Nil(t, m.Filter, "recounting invalidates filter results")
	require.Nil(t, m.Extract)
}

func TestCountAggregatesEngineFailures(t *testing.T) {
	m := newCountProject(t)
	boom := errors.New("kmc exploded")
	engine := &fakeEngine{fail: map[string]error{"A": boom}}

	err := pipeline.Count(context.Background(), m, countOpts(engine))
	require.Error(t, err)
	require.True(t, project.IsEngineError(err))

	var engErr *project.EngineError
	require.ErrorAs(t, err, &engErr)
	require.Len(t, engErr.Failures, 1)
	require.ErrorIs(t, engErr.Failures["A"], boom)

	// the batch still ran to completion and recorded the survivor
	require.Equal(t, []string{"A", "B"}, engine.sorted())
	require.NotNil(t, m.Count)
	require.Len(t, m.Count.Samples, 1)
	require.Contains(t, m.Count.Samples, "B")

	// a retry only revisits the failed sample
	engine.fail = nil
	require.NoError(t, pipeline.Count(context.Background(), m, countOpts(engine)))
	require.Equal(t, []string{"A", "A", "B"}, engine.sorted())
	require.Len(t, m.Count.Samples, 2)
}

func TestCountCanceledLeavesManifestUntouched(t *testing.T) {
	m := newCountProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pipeline.Count(ctx, m, countOpts(&fakeEngine{}))
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, m.Count)

	loaded, err := project.Load(m.Path())
	require.NoError(t, err)
	require.Nil(t, loaded.Count)
}

func TestCountRejectsInvalidParams(t *testing.T) {
	m := newCountProject(t)
	opts := countOpts(&fakeEngine{})
	opts.KmerSize = 1

	err := pipeline.Count(context.Background(), m, opts)
	require.ErrorIs(t, err, project.ErrInvalid)
}
