package kmer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eaton-lab/kmpy/pkg/kmer"
)

func writeFastq(t *testing.T, dir, name string, seqs ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	for i, seq := range seqs {
		qual := make([]byte, len(seq))
		for j := range qual {
			qual[j] = 'I'
		}
		_, err = f.WriteString("@read" + string(rune('a'+i)) + "\n" + seq + "\n+\n" + string(qual) + "\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	return path
}

func TestNativeCount(t *testing.T) {
	dir := t.TempDir()
	// AAAA yields AAA twice, ACGT yields ACG and CGT once each
	in := writeFastq(t, dir, "s.fastq", "AAAA", "ACGT")
	out := filepath.Join(dir, "s.kdb")

	p := kmer.Params{K: 3, MinDepth: 1, MaxDepth: 100, MaxCount: 255, Canonical: false}
	stats, err := kmer.Native{}.Count(context.Background(), []string{in}, out, p)
	require.NoError(t, err)
	require.Equal(t, uint64(3), stats.Distinct)
	require.Equal(t, uint64(4), stats.Total)

	db, err := kmer.ReadDB(out)
	require.NoError(t, err)
	require.Equal(t, 3, db.K)
	require.False(t, db.Canonical)
	require.Equal(t, uint32(2), db.Counts["AAA"])
	require.Equal(t, uint32(1), db.Counts["ACG"])
	require.Equal(t, uint32(1), db.Counts["CGT"])
}

func TestNativeCountDepthBounds(t *testing.T) {
	dir := t.TempDir()
	in := writeFastq(t, dir, "s.fastq", "AAAA", "ACGT")
	out := filepath.Join(dir, "s.kdb")

	// min_depth 2 keeps only AAA
	p := kmer.Params{K: 3, MinDepth: 2, MaxDepth: 100, MaxCount: 255}
	stats, err := kmer.Native{}.Count(context.Background(), []string{in}, out, p)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.Distinct)

	db, err := kmer.ReadDB(out)
	require.NoError(t, err)
	require.Contains(t, db.Counts, "AAA")
	require.NotContains(t, db.Counts, "ACG")

	// max_depth 1 drops AAA instead
	p = kmer.Params{K: 3, MinDepth: 1, MaxDepth: 1, MaxCount: 255}
	_, err = kmer.Native{}.Count(context.Background(), []string{in}, out, p)
	require.NoError(t, err)

	db, err = kmer.ReadDB(out)
	require.NoError(t, err)
	require.NotContains(t, db.Counts, "AAA")
	require.Contains(t, db.Counts, "ACG")
}

func TestNativeCountCapsDepth(t *testing.T) {
	dir := t.TempDir()
	// AAA appears 4 times across two reads
	in := writeFastq(t, dir, "s.fastq", "AAAAA", "AAAAA")
	out := filepath.Join(dir, "s.kdb")

	p := kmer.Params{K: 3, MinDepth: 1, MaxDepth: 100, MaxCount: 2}
	_, err := kmer.Native{}.Count(context.Background(), []string{in}, out, p)
	require.NoError(t, err)

	db, err := kmer.ReadDB(out)
	require.NoError(t, err)
	require.Equal(t, uint32(2), db.Counts["AAA"], "stored depth saturates at max_count")
}

func TestNativeCountCanceled(t *testing.T) {
	dir := t.TempDir()
	in := writeFastq(t, dir, "s.fastq", "ACGT")
	out := filepath.Join(dir, "s.kdb")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := kmer.Native{}.Count(ctx, []string{in}, out, kmer.Params{K: 3, MinDepth: 1, MaxDepth: 10, MaxCount: 255})
	require.ErrorIs(t, err, context.Canceled)
	require.NoFileExists(t, out, "no database written for a canceled run")
}

func TestWriteDBLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.kdb")
	db := &kmer.DB{K: 3, Counts: map[string]uint32{"AAA": 1}}
	require.NoError(t, kmer.WriteDB(path, db))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
