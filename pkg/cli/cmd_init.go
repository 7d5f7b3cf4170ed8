package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eaton-lab/kmpy/pkg/project"
)

// newInitCmd returns the `kmerkit init` command.
func newInitCmd(deps *Deps) *cobra.Command {
	var (
		flagName    string
		flagWorkdir string
		flagDelim   string
		flagForce   bool
	)

	cmd := &cobra.Command{
		Use:   "init [flags] DATA...",
		Short: "initialize a kmerkit project from read files",
		Long: strings.TrimSpace(`
Initialize a kmerkit project.

Creates a JSON project manifest at <workdir>/<name>.json. Sample names are
parsed from input file names by splitting on the last occurrence of the
delimiter (default "_R"); paired reads are detected from _R1/_R2 markers.
Directories expand to the files they contain.

Re-running init on an existing project fails unless --force is given, in
which case the manifest is replaced and all stage state is reset.
`),
		Example: strings.TrimSpace(`
kmerkit init -n test -w /tmp ./data/fastqs/*.gz
kmerkit init -n test -w /tmp ./data-1/A.fastq ./data-2/B.fastq
`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delim := flagDelim
			if delim == "" {
				delim = deps.Config.Delim
			}
			workdir := flagWorkdir
			if workdir == "" {
				workdir = deps.Config.Workdir
			}

			samples, err := project.ResolveSamples(args, delim)
			if err != nil {
				return err
			}
			m, err := project.Init(flagName, workdir, samples, flagForce)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized project %s (%d samples) at %s\n",
				m.Name, len(m.Samples), m.Path())
			for _, name := range m.SampleNames() {
				rec := m.Samples[name]
				layout := "single-end"
				if rec.Paired() {
					layout = "paired-end"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%s\t%s\n",
					name, layout, strings.Join(rec.Files, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagName, "name", "n", "test", "prefix for output files")
	cmd.Flags().StringVarP(&flagWorkdir, "workdir", "w", "", "directory for output files (default from config)")
	cmd.Flags().StringVar(&flagDelim, "delim", "", `sample name delimiter (default "_R")`)
	cmd.Flags().BoolVar(&flagForce, "force", false, "overwrite an existing project manifest")

	return cmd
}
