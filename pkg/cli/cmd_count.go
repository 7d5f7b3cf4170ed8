package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eaton-lab/kmpy/pkg/kmer"
	"github.com/eaton-lab/kmpy/pkg/pipeline"
	"github.com/eaton-lab/kmpy/pkg/project"
)

// newCountCmd returns the `kmerkit count` command.
func newCountCmd(deps *Deps) *cobra.Command {
	var (
		flagJSON    string
		flagEngine  string
		flagThreads int
		flagForce   bool
		params      project.CountParams
	)

	cmd := &cobra.Command{
		Use:   "count",
		Short: "count kmers in each sample's read files",
		Long: strings.TrimSpace(`
Count kmers in each sample's fastq/fasta files.

Writes one k-mer database per sample to <workdir>/<name>_count_<sample>.kdb.gz
and records database locations and summary statistics in the manifest.
Samples already counted under identical parameters are skipped unless
--force is given; changing parameters triggers a recount and clears any
downstream filter/extract results.

The default engine counts in-process; --engine kmc shells out to the KMC
toolkit for large projects.
`),
		Example: strings.TrimSpace(`
kmerkit count -j /tmp/test.json --kmer-size 35 --min-depth 5
kmerkit count -j /tmp/test.json --engine kmc --threads 8
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := project.Load(flagJSON)
			if err != nil {
				return err
			}

			engine := deps.engine()
			switch flagEngine {
			case "":
			case "native":
				engine = kmer.Native{}
			case "kmc":
				engine = kmer.KMC{Bin: deps.Config.KmcPath}
			default:
				return fmt.Errorf("unknown engine %q (want native or kmc): %w",
					flagEngine, project.ErrInvalid)
			}

			threads := flagThreads
			if threads < 1 {
				threads = deps.Config.Threads
			}

			err = pipeline.Count(cmd.Context(), m, pipeline.CountOptions{
				CountParams: params,
				Threads:     threads,
				Force:       flagForce,
				Progress:    deps.progress(),
				Engine:      engine,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "counted %d samples (k=%d)\n",
				len(m.Count.Samples), params.KmerSize)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagJSON, "json", "j", "", "kmerkit project JSON file")
	cmd.MarkFlagRequired("json")
	cmd.Flags().IntVar(&params.KmerSize, "kmer-size", 17, "k-mer length (>= 2)")
	cmd.Flags().IntVar(&params.MinDepth, "min-depth", 1, "minimum k-mer depth to keep")
	cmd.Flags().IntVar(&params.MaxDepth, "max-depth", 1_000_000_000, "maximum k-mer depth to keep")
	cmd.Flags().IntVar(&params.MaxCount, "max-count", 255, "cap stored counts at this value")
	cmd.Flags().BoolVar(&params.Canonical, "canonical", true, "count canonical k-mer forms")
	cmd.Flags().StringVar(&flagEngine, "engine", "", "counting engine: native or kmc (default from config)")
	cmd.Flags().IntVar(&flagThreads, "threads", 0, "worker count (default from config)")
	cmd.Flags().BoolVar(&flagForce, "force", false, "recount even when results exist")

	return cmd
}
