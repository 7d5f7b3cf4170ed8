package kmer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// KMC counts k-mers by shelling out to the KMC toolkit: `kmc` builds the
// database, `kmc_tools transform ... dump` flattens it to text, and the
// dump is re-encoded as a native DB so downstream stages read one format.
// KMC is treated as a black box that may exit non-zero.
type KMC struct {
	// Bin and ToolsBin override the binary names, e.g. for container paths.
	Bin      string
	ToolsBin string
}

func (e KMC) Name() string { return "kmc" }

func (e KMC) bin() string {
	if e.Bin != "" {
		return e.Bin
	}
	return "kmc"
}

func (e KMC) toolsBin() string {
	if e.ToolsBin != "" {
		return e.ToolsBin
	}
	return "kmc_tools"
}

// Count implements Engine.
func (e KMC) Count(ctx context.Context, files []string, out string, p Params) (Stats, error) {
	tmpDir, err := os.MkdirTemp("", "kmc-*")
	if err != nil {
		return Stats{}, fmt.Errorf("unable to create kmc scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// KMC takes its input list as an @file.
	listPath := filepath.Join(tmpDir, "files.lst")
	if err := os.WriteFile(listPath, []byte(strings.Join(files, "\n")+"\n"), 0o644); err != nil {
		return Stats{}, fmt.Errorf("unable to write kmc file list: %w", err)
	}

	dbPrefix := filepath.Join(tmpDir, "db")
	format := "-fq"
	if looksFasta(files[0]) {
		format = "-fm"
	}
	args := []string{
		format,
		fmt.Sprintf("-k%d", p.K),
		fmt.Sprintf("-ci%d", p.MinDepth),
		fmt.Sprintf("-cx%d", p.MaxDepth),
		fmt.Sprintf("-cs%d", p.MaxCount),
		fmt.Sprintf("-t%d", max(p.Threads, 1)),
	}
	if !p.Canonical {
		args = append(args, "-b")
	}
	args = append(args, "@"+listPath, dbPrefix, tmpDir)

	if err := runCmd(ctx, e.bin(), args...); err != nil {
		return Stats{}, err
	}

	dumpPath := filepath.Join(tmpDir, "dump.txt")
	if err := runCmd(ctx, e.toolsBin(),
		"transform", dbPrefix, "dump", dumpPath); err != nil {
		return Stats{}, err
	}

	db, err := parseDump(dumpPath, p)
	if err != nil {
		return Stats{}, err
	}
	if err := WriteDB(out, db); err != nil {
		return Stats{}, err
	}
	distinct, total := db.Stats()
	return Stats{Distinct: distinct, Total: total}, nil
}

func runCmd(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(output))
		if len(msg) > 400 {
			msg = msg[len(msg)-400:]
		}
		return fmt.Errorf("%s %s: %w: %s", bin, args[0], err, msg)
	}
	return nil
}

// parseDump reads a kmc_tools dump (kmer<TAB>count per line).
func parseDump(path string, p Params) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open kmc dump: %w", err)
	}
	defer f.Close()

	counts := make(map[string]uint32)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed kmc dump line %q: %w", scanner.Text(), err)
		}
		counts[fields[0]] = uint32(n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read kmc dump: %w", err)
	}
	return &DB{K: p.K, Canonical: p.Canonical, MinDepth: p.MinDepth, Counts: counts}, nil
}

func looksFasta(path string) bool {
	base := strings.TrimSuffix(filepath.Base(path), ".gz")
	return strings.HasSuffix(base, ".fasta") || strings.HasSuffix(base, ".fa")
}
