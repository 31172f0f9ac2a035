// Package cli wires the tagprobe commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/tagprobe/internal/config"
	"github.com/banshee-data/tagprobe/internal/metrics"
	"github.com/banshee-data/tagprobe/internal/monitoring"
)

// RootOptions holds global flags and the state they produce.
type RootOptions struct {
	ConfigPath  string
	Verbose     bool
	MetricsFile string

	cfg     *config.Analysis
	metrics *metrics.Collector
}

// Config returns the loaded analysis configuration.
func (o *RootOptions) Config() *config.Analysis { return o.cfg }

// NewRootCommand creates the root command for the tagprobe CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tagprobe",
		Short: "Top tagger tag-and-probe inputs and scale factor summaries",
		Long: `Build pass and fail template histograms for top tagger tag-and-probe
fits, write the fit card and script, and summarise the fitted scale factors.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := monitoring.Configure(opts.Verbose); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			if cmd.Name() == "version" {
				return nil
			}
			var err error
			if opts.ConfigPath != "" {
				opts.cfg, err = config.Load(opts.ConfigPath)
			} else {
				opts.cfg, err = config.Default()
			}
			if err != nil {
				return err
			}
			opts.metrics = metrics.New()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			defer monitoring.L().Sync() //nolint:errcheck
			if opts.metrics == nil {
				return nil
			}
			return opts.metrics.WriteToTextfile(opts.MetricsFile)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "analysis configuration (.yaml, .yml or .json); embedded defaults when empty")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")

	cmd.AddCommand(NewInputsCommand(opts))
	cmd.AddCommand(NewVariantsCommand(opts))
	cmd.AddCommand(NewCardCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}
