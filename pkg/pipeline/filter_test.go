package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eaton-lab/kmpy/pkg/pipeline"
	"github.com/eaton-lab/kmpy/pkg/project"
	"github.com/eaton-lab/kmpy/pkg/traits"
)

func writeReads(t *testing.T, dir, name string, seqs ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var buf []byte
	for _, seq := range seqs {
		qual := make([]byte, len(seq))
		for i := range qual {
			qual[i] = 'I'
		}
		buf = append(buf, '@', 'r', '\n')
		buf = append(buf, seq...)
		buf = append(buf, '\n', '+', '\n')
		buf = append(buf, qual...)
		buf = append(buf, '\n')
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

// countedProject builds a two-sample project and runs a real count at k=3,
// non-canonical. Sample A (paired) contributes AAA and GGG, sample B
// (single) contributes CCC.
func countedProject(t *testing.T) *project.Manifest {
	t.Helper()
	workdir := t.TempDir()
	r1 := writeReads(t, workdir, "A_R1.fastq", "AAAA")
	r2 := writeReads(t, workdir, "A_R2.fastq", "GGGG")
	b := writeReads(t, workdir, "B.fastq", "CCCC")

	samples, err := project.ResolveSamples([]string{r1, r2, b}, "_R")
	require.NoError(t, err)
	m, err := project.Init("test", workdir, samples, false)
	require.NoError(t, err)

	err = pipeline.Count(context.Background(), m, pipeline.CountOptions{
		CountParams: project.CountParams{
			KmerSize: 3, MinDepth: 1, MaxDepth: 100, MaxCount: 255, Canonical: false,
		},
	})
	require.NoError(t, err)
	return m
}

func filterOpts() pipeline.FilterOptions {
	return pipeline.FilterOptions{
		FilterParams: project.FilterParams{
			MinCov: 0.5,
			MinMap: [2]float64{0, 0.5},
			MaxMap: [2]float64{0, 1},
		},
		Threads: 2,
	}
}

func caseControl() traits.Table {
	return traits.Table{"A": 0, "B": 1}
}

func TestFilterRetainsGroupSpecificKmers(t *testing.T) {
	m := countedProject(t)

	// max-map[0]=0 demands absence from group 0, min-map[1]=0.5 demands
	// presence in group 1: of AAA, GGG (A only) and CCC (B only), only CCC
	// qualifies.
	require.NoError(t, pipeline.Filter(context.Background(), m, caseControl(), filterOpts()))

	require.NotNil(t, m.Filter)
	require.Equal(t, uint64(1), m.Filter.Retained)
	require.Equal(t, uint64(3), m.Filter.Scanned)
	require.Equal(t, [2][]string{{"A"}, {"B"}}, m.Filter.Groups)
	require.Equal(t, 3, m.Filter.KmerSize)
	require.False(t, m.Filter.Canonical)
	require.False(t, m.Filter.CompletedAt.IsZero())

	set, err := pipeline.LoadKmerSet(m.Filter.Kmers)
	require.NoError(t, err)
	require.Equal(t, map[string]struct{}{"CCC": {}}, set)
}

func TestFilterIntervalBoundsAreClosed(t *testing.T) {
	m := countedProject(t)

	// cov values here are exactly 0 or 1 per group; with the full [0,1]
	// interval on both groups and min-cov at the boundary, everything passes
	opts := pipeline.FilterOptions{
		FilterParams: project.FilterParams{
			MinCov: 1.0,
			MinMap: [2]float64{0, 0},
			MaxMap: [2]float64{1, 1},
		},
	}
	require.NoError(t, pipeline.Filter(context.Background(), m, caseControl(), opts))
	require.Equal(t, uint64(3), m.Filter.Retained)
}

func TestFilterEmptyResultStillCompletes(t *testing.T) {
	m := countedProject(t)

	// no k-mer is present in every sample of both groups
	opts := pipeline.FilterOptions{
		FilterParams: project.FilterParams{
			MinCov: 1.0,
			MinMap: [2]float64{1, 1},
			MaxMap: [2]float64{1, 1},
		},
	}
	require.NoError(t, pipeline.Filter(context.Background(), m, caseControl(), opts))

	require.True(t, m.StageComplete(project.StageFilter))
	require.Zero(t, m.Filter.Retained)
	require.Equal(t, uint64(3), m.Filter.Scanned)

	set, err := pipeline.LoadKmerSet(m.Filter.Kmers)
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestFilterSkipsUnchangedAndHonorsForce(t *testing.T) {
	m := countedProject(t)
	opts := filterOpts()

	require.NoError(t, pipeline.Filter(context.Background(), m, caseControl(), opts))
	first := m.Filter

	require.NoError(t, pipeline.Filter(context.Background(), m, caseControl(), opts))
	require.Same(t, first, m.Filter, "unchanged fingerprint skips the stage")

	opts.Force = true
	require.NoError(t, pipeline.Filter(context.Background(), m, caseControl(), opts))
	require.NotSame(t, first, m.Filter)

	// changed thresholds also trigger a rerun
	opts.Force = false
	opts.MinCov = 0.25
	prev := m.Filter
	require.NoError(t, pipeline.Filter(context.Background(), m, caseControl(), opts))
	require.NotSame(t, prev, m.Filter)
}

func TestFilterInvalidatesExtract(t *testing.T) {
	m := countedProject(t)
	m.Extract = &project.ExtractRecord{}

	require.NoError(t, pipeline.Filter(context.Background(), m, caseControl(), filterOpts()))
	require.Nil(t, m.Extract)
}

func TestFilterPrerequisites(t *testing.T) {
	t.Run("count_never_ran", func(t *testing.T) {
		workdir := t.TempDir()
		b := writeReads(t, workdir, "B.fastq", "CCCC")
		samples, err := project.ResolveSamples([]string{b}, "_R")
		require.NoError(t, err)
		m, err := project.Init("test", workdir, samples, false)
		require.NoError(t, err)

		err = pipeline.Filter(context.Background(), m, traits.Table{"B": 1}, filterOpts())
		require.True(t, project.IsPrerequisite(err))
	})

	t.Run("database_deleted", func(t *testing.T) {
		m := countedProject(t)
		require.NoError(t, os.Remove(m.Count.Samples["B"].Database))

		err := pipeline.Filter(context.Background(), m, caseControl(), filterOpts())
		require.True(t, project.IsPrerequisite(err))
		require.ErrorContains(t, err, `"B"`)
	})
}

func TestFilterUnknownTraitSample(t *testing.T) {
	m := countedProject(t)

	err := pipeline.Filter(context.Background(), m,
		traits.Table{"A": 0, "B": 1, "Z": 1}, filterOpts())
	var unknown *project.UnknownSampleError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, []string{"Z"}, unknown.Names)
	require.Nil(t, m.Filter, "validation failures record nothing")
}

func TestFilterRejectsInvalidParams(t *testing.T) {
	m := countedProject(t)
	opts := filterOpts()
	opts.MinCov = 1.5

	err := pipeline.Filter(context.Background(), m, caseControl(), opts)
	require.ErrorIs(t, err, project.ErrInvalid)
}
