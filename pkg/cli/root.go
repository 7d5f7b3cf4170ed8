package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/eaton-lab/kmpy/pkg/config"
	"github.com/eaton-lab/kmpy/pkg/kmer"
	"github.com/eaton-lab/kmpy/pkg/log"
)

// Version is the build-time version. Override with:
//
//	-ldflags "-X github.com/eaton-lab/kmpy/pkg/cli.Version=v1.2.3"
var Version = "dev"

// Deps holds injectable dependencies for commands. Tests provide their own
// IO streams, config, and counting engine; the CLI entry point relies on
// ApplyDefaults.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	Engine kmer.Engine

	In  io.Reader
	Out io.Writer
	Err io.Writer

	flags globalFlags
}

type globalFlags struct {
	CfgFile    string
	Verbose    bool
	Debug      bool
	JSONLog    bool
	NoProgress bool
}

// Option is a functional option for configuring command dependencies.
type Option func(*Deps)

// WithIO sets the command IO streams. A nil errOut falls back to out.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(d *Deps) {
		d.In = in
		d.Out = out
		d.Err = errOut
	}
}

// WithConfig injects a user config, bypassing the config file lookup.
func WithConfig(cfg *config.Config) Option {
	return func(d *Deps) { d.Config = cfg }
}

// WithLogger injects a logger, bypassing flag-driven construction.
func WithLogger(lg *slog.Logger) Option {
	return func(d *Deps) { d.Logger = lg }
}

// WithEngine injects a counting engine, overriding the config selection.
func WithEngine(e kmer.Engine) Option {
	return func(d *Deps) { d.Engine = e }
}

// ApplyDefaults fills unset dependencies with production defaults.
func (d *Deps) ApplyDefaults() error {
	if d.In == nil {
		d.In = os.Stdin
	}
	if d.Out == nil {
		d.Out = os.Stdout
	}
	if d.Err == nil {
		d.Err = os.Stderr
	}
	if d.Config == nil {
		var err error
		if d.flags.CfgFile != "" {
			d.Config, err = config.ReadFrom(d.flags.CfgFile)
		} else {
			d.Config, err = config.Read()
		}
		if err != nil {
			return err
		}
	}
	if d.Logger == nil {
		level := slog.LevelWarn
		if d.flags.Verbose {
			level = slog.LevelInfo
		}
		if d.flags.Debug {
			level = slog.LevelDebug
		}
		d.Logger = log.NewLogger(log.LoggerConfig{
			Version: Version,
			Out:     d.Err,
			Level:   level,
			JSON:    d.flags.JSONLog,
		})
	}
	return nil
}

// engine resolves the counting engine from injection, then config.
func (d *Deps) engine() kmer.Engine {
	if d.Engine != nil {
		return d.Engine
	}
	if d.Config != nil && d.Config.Engine == "kmc" {
		return kmer.KMC{Bin: d.Config.KmcPath}
	}
	return kmer.Native{}
}

// progress reports whether stage drivers should draw progress bars.
func (d *Deps) progress() bool {
	if d.flags.NoProgress {
		return false
	}
	if d.Config != nil && d.Config.Progress != nil {
		return *d.Config.Progress
	}
	return d.Err == os.Stderr
}

// NewRootCmd constructs the root command with functional options applied.
func NewRootCmd(options ...Option) *cobra.Command {
	deps := &Deps{}
	for _, o := range options {
		if o != nil {
			o(deps)
		}
	}
	return newRootCmdWithDeps(deps)
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "kmerkit",
		Short: "kmerkit — genomic k-mer pipeline toolkit",
		Long: `kmerkit drives a multi-stage k-mer analysis pipeline over a persisted
project manifest: init registers samples from read files, count builds
per-sample k-mer databases, filter classifies k-mers by case/control group
coverage, and extract pulls the reads containing retained k-mers.

Every stage records its parameters and outputs in <workdir>/<name>.json and
refuses to run before its prerequisite stage has completed.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.ApplyDefaults(); err != nil {
				return err
			}
			cmd.SetContext(log.ContextWithLogger(cmd.Context(), deps.Logger))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	if deps.In != nil {
		root.SetIn(deps.In)
	}
	if deps.Out != nil {
		root.SetOut(deps.Out)
	}
	if deps.Err != nil {
		root.SetErr(deps.Err)
	}

	root.PersistentFlags().StringVar(
		&deps.flags.CfgFile,
		"config",
		"",
		"config file (default: <user config dir>/kmerkit/config.yaml)",
	)
	root.PersistentFlags().BoolVarP(
		&deps.flags.Verbose,
		"verbose",
		"v",
		false,
		"enable verbose output",
	)
	root.PersistentFlags().BoolVarP(
		&deps.flags.Debug,
		"debug",
		"d",
		false,
		"enable debug output",
	)
	root.PersistentFlags().BoolVar(
		&deps.flags.JSONLog,
		"log-json",
		false,
		"emit logs as JSON",
	)
	root.PersistentFlags().BoolVar(
		&deps.flags.NoProgress,
		"no-progress",
		false,
		"disable progress bars",
	)

	root.AddCommand(newInitCmd(deps))
	root.AddCommand(newCountCmd(deps))
	root.AddCommand(newFilterCmd(deps))
	root.AddCommand(newExtractCmd(deps))
	root.AddCommand(newInfoCmd(deps))

	return root
}
