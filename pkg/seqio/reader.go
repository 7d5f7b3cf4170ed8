// Package seqio streams sequence records out of FASTQ and FASTA files,
// transparently decompressing gzip input, and writes FASTQ output.
package seqio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// scanner buffer sized for long reads and single-line genome FASTA.
const maxLineBytes = 4 * 1024 * 1024

// Record is one sequence read. Qual is empty for FASTA input.
type Record struct {
	ID   string
	Seq  string
	Qual string
}

// Reader streams records from one sequence file. The format is detected
// from the first byte: '@' for FASTQ, '>' for FASTA.
type Reader struct {
	f       *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner
	fasta   bool
	path    string

	// pending FASTA header carried over between records
	pendingID string
	started   bool
}

// Open opens a FASTQ or FASTA file, gzip-compressed or plain.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}

	var src io.Reader = f
	var gz *gzip.Reader
	if strings.HasSuffix(path, ".gz") {
		gz, err = gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("unable to read gzip %s: %w", path, err)
		}
		src = gz
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	return &Reader{f: f, gz: gz, scanner: scanner, path: path}, nil
}

// Next returns the next record or io.EOF when the file is exhausted.
func (r *Reader) Next() (*Record, error) {
	if !r.started {
		if err := r.start(); err != nil {
			return nil, err
		}
	}
	if r.fasta {
		return r.nextFasta()
	}
	return r.nextFastq()
}

// start consumes the first line and fixes the format.
func (r *Reader) start() error {
	line, err := r.nextLine()
	if err != nil {
		return err
	}
	r.started = true
	switch {
	case strings.HasPrefix(line, "@"):
		r.fasta = false
		r.pendingID = strings.TrimPrefix(line, "@")
	case strings.HasPrefix(line, ">"):
		r.fasta = true
		r.pendingID = strings.TrimPrefix(line, ">")
	default:
		return fmt.Errorf("%s: not a FASTQ or FASTA file", r.path)
	}
	return nil
}

func (r *Reader) nextFastq() (*Record, error) {
	if r.pendingID == "" {
		header, err := r.nextLine()
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(header, "@") {
			return nil, fmt.Errorf("%s: malformed FASTQ header %q", r.path, header)
		}
		r.pendingID = strings.TrimPrefix(header, "@")
	}

	seq, err := r.nextLine()
	if err != nil {
		return nil, fmt.Errorf("%s: truncated FASTQ record %q", r.path, r.pendingID)
	}
	if _, err := r.nextLine(); err != nil { // "+" separator
		return nil, fmt.Errorf("%s: truncated FASTQ record %q", r.path, r.pendingID)
	}
	qual, err := r.nextLine()
	if err != nil {
		return nil, fmt.Errorf("%s: truncated FASTQ record %q", r.path, r.pendingID)
	}

	rec := &Record{ID: r.pendingID, Seq: seq, Qual: qual}
	r.pendingID = ""
	return rec, nil
}

func (r *Reader) nextFasta() (*Record, error) {
	if r.pendingID == "" {
		return nil, io.EOF
	}
	id := r.pendingID
	var seq strings.Builder
	for {
		line, err := r.nextLine()
		if err == io.EOF {
			r.pendingID = ""
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(line, ">") {
			r.pendingID = strings.TrimPrefix(line, ">")
			break
		}
		seq.WriteString(line)
	}
	if seq.Len() == 0 {
		return nil, fmt.Errorf("%s: empty FASTA record %q", r.path, id)
	}
	return &Record{ID: id, Seq: seq.String()}, nil
}

// nextLine returns the next non-empty line or io.EOF.
func (r *Reader) nextLine() (string, error) {
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r\n")
		if line != "" {
			return line, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return "", fmt.Errorf("unable to read %s: %w", r.path, err)
	}
	return "", io.EOF
}

// Close releases the underlying file handles.
func (r *Reader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	return r.f.Close()
}
