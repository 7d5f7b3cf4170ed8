package seqio

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Writer emits sequence records, gzip-compressed when the path ends in
// ".gz". Records with quality strings are written as FASTQ, the rest as
// FASTA, so extraction preserves the input format.
type Writer struct {
	f   *os.File
	gz  *gzip.Writer
	buf *bufio.Writer
}

// Create opens path for writing, truncating any existing file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", path, err)
	}
	w := &Writer{f: f}
	if strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(f)
		w.buf = bufio.NewWriter(w.gz)
	} else {
		w.buf = bufio.NewWriter(f)
	}
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(rec *Record) error {
	var err error
	if rec.Qual != "" {
		_, err = fmt.Fprintf(w.buf, "@%s\n%s\n+\n%s\n", rec.ID, rec.Seq, rec.Qual)
	} else {
		_, err = fmt.Fprintf(w.buf, ">%s\n%s\n", rec.ID, rec.Seq)
	}
	return err
}

// Close flushes and releases the underlying handles.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.f.Close()
			return err
		}
	}
	return w.f.Close()
}
