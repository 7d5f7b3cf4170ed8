package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eaton-lab/kmpy/pkg/pipeline"
	"github.com/eaton-lab/kmpy/pkg/project"
	"github.com/eaton-lab/kmpy/pkg/traits"
)

// newFilterCmd returns the `kmerkit filter` command.
func newFilterCmd(deps *Deps) *cobra.Command {
	var (
		flagJSON        string
		flagTraits      string
		flagMinCov      float64
		flagMinMap      []float64
		flagMaxMap      []float64
		flagMinMapCanon []float64
		flagThreads     int
		flagForce       bool
	)

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "filter kmers by case/control group coverage",
		Long: strings.TrimSpace(`
Filter kmers based on their distribution among two trait groups.

The trait file maps sample names to binary group labels (0/1); every named
sample must already exist in the project. For each k-mer observed across
the labeled samples' count databases, the per-group coverage fraction is
the share of that group's samples containing the k-mer. A k-mer is retained
when it reaches --min-cov in at least one group and its coverage sits
inside [min, max] for both groups (closed intervals, boundaries pass).

Retained kmers and their group coverages are written to
<workdir>/<name>_filter_kmers.tsv.gz. Zero retained kmers is recorded as a
valid, empty result.
`),
		Example: strings.TrimSpace(`
kmerkit filter -j /tmp/test.json --traits traits.csv
kmerkit filter -j /tmp/test.json --traits traits.csv --min-map 0,0.5 --max-map 0.1,1
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := project.Load(flagJSON)
			if err != nil {
				return err
			}

			params := project.FilterParams{MinCov: flagMinCov}
			if err := fillPair(&params.MinMap, "min-map", flagMinMap); err != nil {
				return err
			}
			if err := fillPair(&params.MaxMap, "max-map", flagMaxMap); err != nil {
				return err
			}
			if err := fillPair(&params.MinMapCanon, "min-map-canon", flagMinMapCanon); err != nil {
				return err
			}

			table, err := traits.Load(flagTraits)
			if err != nil {
				return err
			}

			threads := flagThreads
			if threads < 1 {
				threads = deps.Config.Threads
			}

			err = pipeline.Filter(cmd.Context(), m, table, pipeline.FilterOptions{
				FilterParams: params,
				Threads:      threads,
				Force:        flagForce,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "retained %d of %d kmers -> %s\n",
				m.Filter.Retained, m.Filter.Scanned, m.Filter.Kmers)
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagJSON, "json", "j", "", "kmerkit project JSON file")
	cmd.MarkFlagRequired("json")
	cmd.Flags().StringVar(&flagTraits, "traits", "", "trait table (sample,label rows; csv or tsv)")
	cmd.MarkFlagRequired("traits")
	cmd.Flags().Float64Var(&flagMinCov, "min-cov", 0.5, "minimum coverage in at least one group")
	cmd.Flags().Float64SliceVar(&flagMinMap, "min-map", []float64{0.0, 0.1}, "per-group minimum coverage (group0,group1)")
	cmd.Flags().Float64SliceVar(&flagMaxMap, "max-map", []float64{0.1, 1.0}, "per-group maximum coverage (group0,group1)")
	cmd.Flags().Float64SliceVar(&flagMinMapCanon, "min-map-canon", []float64{0.0, 0.5}, "per-group canonical-form minimum coverage")
	cmd.Flags().IntVar(&flagThreads, "threads", 0, "worker count (default from config)")
	cmd.Flags().BoolVar(&flagForce, "force", false, "refilter even when results exist")

	return cmd
}

// fillPair copies a two-element flag slice into a per-group array.
func fillPair(dst *[2]float64, name string, vals []float64) error {
	if len(vals) != 2 {
		return fmt.Errorf("--%s wants exactly 2 values (group0,group1), got %d: %w",
			name, len(vals), project.ErrInvalid)
	}
	dst[0], dst[1] = vals[0], vals[1]
	return nil
}
