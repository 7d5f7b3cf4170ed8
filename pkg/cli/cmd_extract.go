package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eaton-lab/kmpy/pkg/pipeline"
	"github.com/eaton-lab/kmpy/pkg/project"
)

// newExtractCmd returns the `kmerkit extract` command.
func newExtractCmd(deps *Deps) *cobra.Command {
	var (
		flagJSON    string
		flagThreads int
		flagForce   bool
		params      project.ExtractParams
	)

	cmd := &cobra.Command{
		Use:   "extract [flags] SAMPLES...",
		Short: "extract reads containing target kmers",
		Long: strings.TrimSpace(`
Extract reads that contain at least --min-kmers-per-read of the kmers
retained by the filter stage. With --keep-paired, whole read pairs are kept
when either mate matches; otherwise reads are assessed individually.

Samples can be selected three ways, tried in this order for each argument:

1. sample names registered in the project (always wins);
2. a single group id, 0 or 1, selecting every sample in that filter-stage
   group;
3. paths to read files not previously registered, treated as an ad-hoc
   sample set for this extraction only.

An argument that could be both a group id and an existing file is rejected
as ambiguous. Extraction requires a completed filter stage.
`),
		Example: strings.TrimSpace(`
kmerkit extract -j /tmp/test.json A B C D      # select from init
kmerkit extract -j /tmp/test.json 1            # select from filter group
kmerkit extract -j /tmp/test.json ./data/*.gz  # select new files
`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := project.Load(flagJSON)
			if err != nil {
				return err
			}

			threads := flagThreads
			if threads < 1 {
				threads = deps.Config.Threads
			}

			err = pipeline.Extract(cmd.Context(), m, args, pipeline.ExtractOptions{
				ExtractParams: params,
				Threads:       threads,
				Force:         flagForce,
				Progress:      deps.progress(),
				Delim:         deps.Config.Delim,
			})
			if err != nil {
				return err
			}

			var kept, scanned uint64
			for _, res := range m.Extract.Samples {
				kept += res.ReadsKept
				scanned += res.ReadsScanned
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kept %d of %d reads across %d samples\n",
				kept, scanned, len(m.Extract.Samples))
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagJSON, "json", "j", "", "kmerkit project JSON file")
	cmd.MarkFlagRequired("json")
	cmd.Flags().IntVar(&params.MinKmersPerRead, "min-kmers-per-read", 1, "matching kmers required to keep a read")
	cmd.Flags().BoolVar(&params.KeepPaired, "keep-paired", true, "keep whole read pairs when either mate matches")
	cmd.Flags().IntVar(&flagThreads, "threads", 0, "worker count (default from config)")
	cmd.Flags().BoolVar(&flagForce, "force", false, "re-extract even when results exist")

	return cmd
}
