// Package cli is the command line interface of automl.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/dataset"
	"github.com/thalesfsp/automl/estimator"
	"github.com/thalesfsp/automl/hpo"
)

// flags of the run command
type runFlags struct {
	config    string // options file
	data      string // CSV file
	seed      int64  // overrides the seed of the options file
	baselines bool   // scores every model with defaults before the search
	refit     string // metric whose best pipeline is trained again
}

// Execute runs the CLI root command
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "automl",
		Short:        "Search feature transformations, models and hyperparameters together",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level: %s", logLevel)
			}

			logrus.SetLevel(level)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	root.AddCommand(newRunCmd(), newTransformsCmd(), newModelsCmd())

	return root
}

// newRunCmd runs one optimization from an options file.
func newRunCmd() *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the nested pipeline optimization",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := automl.LoadOptions(f.config)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("seed") {
				opts.Seed = f.seed
			}

			opts.Logger = logrus.StandardLogger()

			data, err := dataset.Load(f.data)
			if err != nil {
				return err
			}

			logrus.Infof("loaded %d rows with columns %s", data.Rows(), strings.Join(data.Columns(), ", "))

			config := estimator.DefaultConfig()
			config.Workers = max(opts.Workers, config.Workers)
			config.Logger = logrus.StandardLogger()

			p, err := automl.New(opts, estimator.NewTrainer(config))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()

			if f.baselines {
				results, err := p.Baselines(ctx, data)
				if err != nil {
					return err
				}

				for _, r := range results {
					fmt.Fprintf(out, "baseline %s: %s\n", r.Model.Name, formatMetrics(r.Metrics))
				}
			}

			if _, err := p.Fit(ctx, data); err != nil {
				return err
			}

			report, err := p.Report()
			if err != nil {
				return err
			}

			fmt.Fprint(out, report)

			if f.refit != "" {
				eval, err := p.RefitBest(ctx, data, f.refit)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "refit %s: %s (saved at %s)\n", eval.Model.Name, formatMetrics(eval.Metrics), eval.Path)
			}

			logrus.Infof("results saved to %s", p.Path())

			return nil
		},
	}

	cmd.Flags().StringVar(&f.config, "config", "", "Options file (YAML)")
	cmd.Flags().StringVar(&f.data, "data", "", "Data file (CSV with a header row)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Seed overriding the options file")
	cmd.Flags().BoolVar(&f.baselines, "baselines", false, "Score every model with default hyperparameters first")
	cmd.Flags().StringVar(&f.refit, "refit", "", "Train the best pipeline of this metric again and score it on the test split")

	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

// newTransformsCmd lists the candidate transformations.
func newTransformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transforms",
		Short: "List the candidate transformations of input and output features",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "inputs:  %s\n", strings.Join(automl.DefaultTransformations, ", "))
			fmt.Fprintf(out, "outputs: %s\n", strings.Join(automl.DefaultOutputTransformations, ", "))
		},
	}
}

// newModelsCmd lists the built-in models and their default spaces.
func newModelsCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the built-in models and their hyperparameter spaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := automl.Mode(mode)
			if m != automl.Regression && m != automl.Classification {
				return fmt.Errorf("%w: unknown mode %q", automl.ErrInvalidOptions, mode)
			}

			spaces := estimator.Spaces(m)

			names := make([]string, 0, len(spaces))
			for name := range spaces {
				names = append(names, name)
			}

			sort.Strings(names)

			out := cmd.OutOrStdout()

			for _, name := range names {
				fmt.Fprintf(out, "%s\n", name)

				for _, d := range spaces[name] {
					fmt.Fprintf(out, "  %s\n", describeDimension(d))
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(automl.Regression), "Problem mode (regression, classification)")

	return cmd
}

func describeDimension(d hpo.Dimension) string {
	if d.Type == hpo.CategoricalType {
		return fmt.Sprintf("%s (%s): %s", d.Name, d.Type, strings.Join(d.Categories, ", "))
	}

	return fmt.Sprintf("%s (%s): [%g, %g]", d.Name, d.Type, d.Low, d.High)
}

// formatMetrics renders metrics sorted by name.
func formatMetrics(values map[string]float64) string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}

	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.4f", name, values[name])
	}

	return strings.Join(parts, " ")
}
