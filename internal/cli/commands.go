package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/tagprobe/internal/card"
	"github.com/banshee-data/tagprobe/internal/summary"
	"github.com/banshee-data/tagprobe/internal/variant"
	"github.com/banshee-data/tagprobe/internal/version"
)

// NewVariantsCommand creates the variants command.
func NewVariantsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &selectionFlags{}
	cmd := &cobra.Command{
		Use:   "variants",
		Short: "List the histogram variants of a selection",
		Long: `Print every variant of one (year, measurement, tagger, pt bin)
selection in enumeration order: variant name, stored histogram name,
event table, selection and weight.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			e, err := opts.enumerate(rootOpts.Config())
			if err != nil {
				return err
			}
			data := make(map[string]bool)
			for _, p := range e.Processes.Data() {
				data[p.Label] = true
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VARIANT\tSTORED AS\tTABLE\tSELECTION\tWEIGHT")
			for _, k := range e.Keys() {
				s := e.Variants[k]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					k, k.OutputName(data[k.Process]), e.Tree+s.TableSuffix, s.Selection, s.Weight)
			}
			return w.Flush()
		},
	}
	opts.register(cmd)
	return cmd
}

// NewCardCommand creates the card command.
func NewCardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &selectionFlags{}
	var dir string
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Rewrite the card and fit script from merged stores",
		Long: `Regenerate sf.txt and runfits.sh in an existing fit directory from its
merged top_mass_pass.db and top_mass_fail.db stores. The directory
defaults to <year>_inputs_<measure>_<tagger>[_topPt<bin>] in the current
directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			e, err := opts.enumerate(rootOpts.Config())
			if err != nil {
				return err
			}
			if dir == "" {
				dir = variant.DirName(opts.selector())
			}
			if err := writeCard(cmd.Context(), e, dir, opts.systematics, rootOpts.metrics); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, card.CardFile))
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "fit directory holding the merged stores")
	return cmd
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := summary.Options{}
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarise fitted scale factors across pt bins",
		Long: `Read every <year>_inputs_<measure>_<tagger>_topPt<bin> fit directory
under the input directory, apply the impact correction to the configured
measurement, and write the scale factor store, a CSV summary and one PNG
and HTML plot per measurement.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			opts.Metrics = rootOpts.metrics
			rep, err := summary.Run(cmd.Context(), rootOpts.Config(), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range rep.Tables {
				for _, s := range t.Series {
					fmt.Fprintf(out, "%s %s %s mean SF %.3f\n", t.Year, t.SFLabel, s.Title, s.Mean)
				}
			}
			fmt.Fprintln(out, rep.Store)
			fmt.Fprintln(out, rep.CSV)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Year, "year", "2018", "data-taking period")
	cmd.Flags().StringVar(&opts.InputDir, "input-dir", ".", "directory holding the fit directories")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "directory for the summary outputs")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
