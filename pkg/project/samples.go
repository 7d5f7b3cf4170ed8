package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultDelim is the file-name token separating the sample name from the
// read-pair marker, e.g. sampleA_R1.fastq.gz.
const DefaultDelim = "_R"

// sequence file extensions stripped before delimiter matching.
var seqExtensions = []string{
	".fastq", ".fq", ".fasta", ".fa",
}

// ResolveSamples derives the sample table from a list of files or
// directories (directories expand to their contained files). The sample
// name is the portion of the base file name before the last occurrence of
// delim; when delim is absent the whole stem is the name. Files whose
// post-delimiter suffix starts with "1" or "2" are grouped as an R1/R2 pair
// under the same sample, R1 first.
//
// More than two files mapping to one sample name, duplicate pair markers,
// and missing paths are validation errors.
func ResolveSamples(paths []string, delim string) (map[string]*SampleRecord, error) {
	if delim == "" {
		delim = DefaultDelim
	}

	files, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files found: %w", ErrInvalid)
	}

	type entry struct {
		path string
		mate int // 1 or 2 for paired reads, 0 for single-end
	}
	grouped := make(map[string][]entry)
	for _, path := range files {
		name, mate := splitSampleName(filepath.Base(path), delim)
		grouped[name] = append(grouped[name], entry{path: path, mate: mate})
	}

	samples := make(map[string]*SampleRecord, len(grouped))
	for name, entries := range grouped {
		if len(entries) > 2 {
			return nil, fmt.Errorf(
				"sample %q matches %d files, expected at most 2: %w",
				name, len(entries), ErrInvalid)
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].mate != entries[j].mate {
				return entries[i].mate < entries[j].mate
			}
			return entries[i].path < entries[j].path
		})
		if len(entries) == 2 {
			if entries[0].mate == entries[1].mate {
				return nil, fmt.Errorf(
					"sample %q has two files with the same read-pair marker: %w",
					name, ErrInvalid)
			}
		}
		rec := &SampleRecord{Name: name}
		for _, e := range entries {
			rec.Files = append(rec.Files, e.path)
		}
		samples[name] = rec
	}
	return samples, nil
}

// expandPaths flattens directories into their files and verifies that every
// path exists.
func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("path %s does not exist: %w", path, ErrInvalid)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read directory %s: %w", path, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitSampleName returns the sample name and the read-pair mate number (0
// when the file is not part of a pair) for a base file name.
func splitSampleName(base, delim string) (name string, mate int) {
	stem := stripSeqExtensions(base)
	idx := strings.LastIndex(stem, delim)
	if idx < 0 {
		return stem, 0
	}
	suffix := stem[idx+len(delim):]
	switch {
	case strings.HasPrefix(suffix, "1"):
		mate = 1
	case strings.HasPrefix(suffix, "2"):
		mate = 2
	}
	return stem[:idx], mate
}

// stripSeqExtensions removes a trailing .gz plus one sequence extension.
func stripSeqExtensions(base string) string {
	if strings.HasSuffix(base, ".gz") {
		base = strings.TrimSuffix(base, ".gz")
	}
	for _, ext := range seqExtensions {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}
