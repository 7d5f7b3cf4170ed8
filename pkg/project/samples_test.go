package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eaton-lab/kmpy/pkg/project"
)

// touch creates an empty file and returns its path.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("@r\nACGT\n+\nIIII\n"), 0o644))
	return path
}

func TestResolveSamplesPairing(t *testing.T) {
	dir := t.TempDir()
	r1 := touch(t, dir, "A_R1.fastq.gz")
	r2 := touch(t, dir, "A_R2.fastq.gz")
	single := touch(t, dir, "B.fastq")

	samples, err := project.ResolveSamples([]string{r2, single, r1}, "_R")
	require.NoError(t, err)
	require.Len(t, samples, 2)

	a := samples["A"]
	require.NotNil(t, a)
	require.True(t, a.Paired())
	require.Equal(t, []string{r1, r2}, a.Files, "R1 must sort before R2")

	b := samples["B"]
	require.NotNil(t, b)
	require.False(t, b.Paired())
	require.Equal(t, []string{single}, b.Files)
}

func TestResolveSamplesDirectoryExpansion(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "S_R1.fq")
	touch(t, dir, "S_R2.fq")

	samples, err := project.ResolveSamples([]string{dir}, "_R")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.True(t, samples["S"].Paired())
}

func TestResolveSamplesErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name  string
		setup func(t *testing.T) []string
	}{
		{
			name: "more_than_two_files_per_sample",
			setup: func(t *testing.T) []string {
				return []string{
					touch(t, dir, "X_R1.fq"),
					touch(t, dir, "X_R2.fq"),
					touch(t, dir, "X_R3.fq"),
				}
			},
		},
		{
			name: "duplicate_pair_marker",
			setup: func(t *testing.T) []string {
				sub := t.TempDir()
				return []string{
					touch(t, dir, "Y_R1.fq"),
					touch(t, sub, "Y_R1.fq"),
				}
			},
		},
		{
			name: "missing_path",
			setup: func(t *testing.T) []string {
				return []string{filepath.Join(dir, "nope.fq")}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := project.ResolveSamples(tt.setup(t), "_R")
			require.ErrorIs(t, err, project.ErrInvalid)
		})
	}
}

func TestResolveSamplesNoDelimiter(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "plain.fasta")

	samples, err := project.ResolveSamples([]string{path}, "_R")
	require.NoError(t, err)
	require.Contains(t, samples, "plain")
	require.Len(t, samples["plain"].Files, 1)
}
