package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/tagprobe/internal/blob"
	"github.com/banshee-data/tagprobe/internal/card"
	"github.com/banshee-data/tagprobe/internal/config"
	"github.com/banshee-data/tagprobe/internal/fill"
	"github.com/banshee-data/tagprobe/internal/metrics"
	"github.com/banshee-data/tagprobe/internal/monitoring"
	"github.com/banshee-data/tagprobe/internal/store"
	"github.com/banshee-data/tagprobe/internal/summary"
	"github.com/banshee-data/tagprobe/internal/variant"
)

// selectionFlags are shared by the commands that enumerate variants.
type selectionFlags struct {
	year        string
	measure     string
	tagger      string
	ptBin       string
	tree        string
	systematics bool
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.year, "year", "2018", "data-taking period")
	cmd.Flags().StringVar(&f.measure, "measure", "Eff", "measurement (Eff or Mis)")
	cmd.Flags().StringVar(&f.tagger, "tagger", "", "top tagger (Res or Mrg)")
	cmd.Flags().StringVar(&f.ptBin, "pt-bin", "", `top pt bin "<lo>to<hi>"; inclusive when empty`)
	cmd.Flags().StringVar(&f.tree, "tree", "", "event table name; configuration default when empty")
	cmd.Flags().BoolVar(&f.systematics, "systematics", false, "fill the configured systematic sources")
	_ = cmd.MarkFlagRequired("tagger")
}

func (f *selectionFlags) selector() variant.Selector {
	return variant.Selector{
		Year:        f.year,
		Measurement: f.measure,
		Tagger:      f.tagger,
		PtBin:       f.ptBin,
		Systematics: f.systematics,
	}
}

func (f *selectionFlags) enumerate(cfg *config.Analysis) (*variant.Enumeration, error) {
	if f.tree != "" {
		c := *cfg
		c.Tree = f.tree
		cfg = &c
	}
	return variant.Enumerate(cfg, f.selector())
}

// InputsOptions configure the inputs command.
type InputsOptions struct {
	selectionFlags
	InputDir   string
	OutputDir  string
	Workers    int
	Publish    string
	ShapePlots bool
}

// NewInputsCommand creates the inputs command.
func NewInputsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InputsOptions{}
	cmd := &cobra.Command{
		Use:   "inputs",
		Short: "Fill template histograms and write the fit card",
		Long: `Enumerate every histogram variant of one (year, measurement, tagger,
pt bin) selection, fill them from the per-source event files, merge the
results into one pass and one fail store, and write the card and fit
script into <output-dir>/<year>_inputs_<measure>_<tagger>[_topPt<bin>].

Event files are read from <input-dir>/<year>_<source>.db. An s3://
input directory is staged to local disk first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			dir, err := runInputs(cmd.Context(), rootOpts.Config(), rootOpts.metrics, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&opts.InputDir, "input-dir", "", "directory or s3:// prefix holding the event files")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", ".", "parent directory of the fit directory")
	cmd.Flags().IntVar(&opts.Workers, "workers", fill.DefaultWorkers, "processes filled concurrently")
	cmd.Flags().StringVar(&opts.Publish, "publish", "", "s3:// prefix to upload the fit directory to")
	cmd.Flags().BoolVar(&opts.ShapePlots, "shape-plots", false, "plot nominal against shifted shapes")
	_ = cmd.MarkFlagRequired("input-dir")
	return cmd
}

func runInputs(ctx context.Context, cfg *config.Analysis, m *metrics.Collector, opts *InputsOptions) (string, error) {
	if opts.Publish != "" && !blob.IsRemote(opts.Publish) {
		return "", fmt.Errorf("--publish needs an %s prefix, got %q", blob.Scheme, opts.Publish)
	}
	e, err := opts.enumerate(cfg)
	if err != nil {
		return "", err
	}
	outDir := filepath.Join(opts.OutputDir, variant.DirName(opts.selector()))
	log := monitoring.L().With(zap.String("fit", filepath.Base(outDir)))
	log.Info("enumerated variants",
		zap.Int("variants", len(e.Variants)),
		zap.Int("processes", len(e.Processes)))

	r := &fill.Runner{
		Enum:      e,
		Year:      opts.year,
		InputDir:  opts.InputDir,
		OutputDir: outDir,
		Workers:   opts.Workers,
		Metrics:   m,
	}

	var stager *blob.Stager
	if blob.IsRemote(opts.InputDir) || blob.IsRemote(opts.Publish) {
		staging, err := os.MkdirTemp("", "tagprobe-stage-")
		if err != nil {
			return "", err
		}
		defer os.RemoveAll(staging)
		stager, err = blob.New(ctx, blob.ConfigFromEnv(), staging)
		if err != nil {
			return "", fmt.Errorf("object storage: %w", err)
		}
	}
	if blob.IsRemote(opts.InputDir) {
		r.Open = stager.Opener(opts.InputDir, fill.OpenFile)
	}

	res, err := r.Run(ctx)
	if err != nil {
		return "", err
	}
	log.Info("filled", zap.Int("filled", res.Filled), zap.Int("skipped", res.Skipped))

	if err := writeCard(ctx, e, outDir, opts.systematics, m); err != nil {
		return "", err
	}

	if opts.ShapePlots && opts.systematics {
		pass, err := store.Open(ctx, fill.MergedPath(outDir, "pass"))
		if err != nil {
			return "", err
		}
		defer pass.Close()
		var sources []string
		for _, s := range e.Systematics {
			sources = append(sources, s.Name)
		}
		plotDir := filepath.Join(outDir, "shapes")
		if err := os.MkdirAll(plotDir, 0o755); err != nil {
			return "", err
		}
		if _, err := summary.PlotSystematics(ctx, pass, e.Processes.WithoutData().Labels(), sources, plotDir); err != nil {
			return "", err
		}
	}

	if opts.Publish != "" {
		uris, err := stager.Publish(ctx, outDir, blob.Join(opts.Publish, filepath.Base(outDir)))
		if err != nil {
			return "", err
		}
		log.Info("published", zap.Strings("objects", uris))
	}
	return outDir, nil
}

// writeCard assembles the card from the merged stores in dir and writes
// it with the fit script.
func writeCard(ctx context.Context, e *variant.Enumeration, dir string, systematics bool, m *metrics.Collector) error {
	pass, err := store.Open(ctx, fill.MergedPath(dir, "pass"))
	if err != nil {
		return err
	}
	defer pass.Close()
	fail, err := store.Open(ctx, fill.MergedPath(dir, "fail"))
	if err != nil {
		return err
	}
	defer fail.Close()

	in, err := card.Assemble(ctx, e, pass, fail, systematics)
	if err != nil {
		return err
	}
	if _, err := card.WriteFile(dir, in); err != nil {
		return err
	}
	labels := make([]string, len(in.Rates))
	for i, r := range in.Rates {
		labels[i] = r.Process
	}
	if _, err := card.WriteScript(dir, labels); err != nil {
		return err
	}
	if m != nil {
		m.CardsWritten.Inc()
	}
	return nil
}
