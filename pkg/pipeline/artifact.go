package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/eaton-lab/kmpy/pkg/project"
)

// gzipLineWriter writes buffered lines through gzip to a file.
type gzipLineWriter struct {
	f   *os.File
	gz  *gzip.Writer
	buf *bufio.Writer
}

func newGzipLineWriter(path string) (*gzipLineWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", path, err)
	}
	gz := gzip.NewWriter(f)
	return &gzipLineWriter{f: f, gz: gz, buf: bufio.NewWriter(gz)}, nil
}

func (w *gzipLineWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *gzipLineWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// LoadKmerSet reads a filter-stage output file into a membership set. Only
// the k-mer column is needed for extraction; the coverage columns are
// skipped.
func LoadKmerSet(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open kmer set %s: %w", path, err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("kmer set %s is not gzip: %w", path, err)
		}
		defer gz.Close()
		src = gz
	}

	set := make(map[string]struct{})
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		seq, _, _ := strings.Cut(line, "\t")
		if seq == "" {
			return nil, fmt.Errorf("kmer set %s has a malformed row %q: %w",
				path, line, project.ErrCorrupt)
		}
		set[seq] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read kmer set %s: %w", path, err)
	}
	return set, nil
}
