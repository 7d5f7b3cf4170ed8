package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/eaton-lab/kmpy/pkg/project"
)

// newInfoCmd returns the `kmerkit info` command.
func newInfoCmd(deps *Deps) *cobra.Command {
	var (
		flagJSON  string
		flagStats bool
		flagWatch bool
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "show project status",
		Long: strings.TrimSpace(`
Show the status of a kmerkit project: registered samples and which stages
have completed with which parameters. --stats adds per-sample counting
statistics. --watch keeps running and re-prints the status whenever the
manifest file changes, which is useful while long stages run elsewhere.
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := printInfo(out, flagJSON, flagStats); err != nil {
				return err
			}
			if !flagWatch {
				return nil
			}
			return watchInfo(cmd, flagJSON, flagStats)
		},
	}

	cmd.Flags().StringVarP(&flagJSON, "json", "j", "", "kmerkit project JSON file")
	cmd.MarkFlagRequired("json")
	cmd.Flags().BoolVar(&flagStats, "stats", false, "show per-sample count statistics")
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "re-print status when the manifest changes")

	return cmd
}

func printInfo(out io.Writer, path string, stats bool) error {
	m, err := project.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "project %s (%s)\n", m.Name, m.Workdir)
	fmt.Fprintf(out, "samples: %d\n", len(m.Samples))
	for _, name := range m.SampleNames() {
		rec := m.Samples[name]
		layout := "single-end"
		if rec.Paired() {
			layout = "paired-end"
		}
		fmt.Fprintf(out, "  %s\t%s\n", name, layout)
	}

	if m.Count != nil {
		fmt.Fprintf(out, "count: done (k=%d canonical=%v, %d samples, %s)\n",
			m.Count.Params.KmerSize, m.Count.Params.Canonical,
			len(m.Count.Samples), m.Count.CompletedAt.Format("2006-01-02 15:04"))
		if stats {
			for _, name := range m.SampleNames() {
				if res, ok := m.Count.Samples[name]; ok {
					fmt.Fprintf(out, "  %s\tdistinct=%d\ttotal=%d\n",
						name, res.Stats.DistinctKmers, res.Stats.TotalKmers)
				}
			}
		}
	} else {
		fmt.Fprintln(out, "count: pending")
	}

	if m.Filter != nil {
		fmt.Fprintf(out, "filter: done (retained %d of %d kmers, group0=%d group1=%d)\n",
			m.Filter.Retained, m.Filter.Scanned,
			len(m.Filter.Groups[0]), len(m.Filter.Groups[1]))
	} else {
		fmt.Fprintln(out, "filter: pending")
	}

	if m.Extract != nil {
		var kept uint64
		for _, res := range m.Extract.Samples {
			kept += res.ReadsKept
		}
		fmt.Fprintf(out, "extract: done (%d samples, %d reads kept)\n",
			len(m.Extract.Samples), kept)
	} else {
		fmt.Fprintln(out, "extract: pending")
	}
	return nil
}

// watchInfo follows the manifest's directory: stage drivers replace the
// file via rename, so watching the file itself would lose the watch after
// the first update.
func watchInfo(cmd *cobra.Command, path string, stats bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to watch manifest: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("unable to watch manifest: %w", err)
	}

	out := cmd.OutOrStdout()
	target := filepath.Clean(path)
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				fmt.Fprintln(out)
				if err := printInfo(out, path, stats); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "manifest unreadable: %v\n", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		}
	}
}
