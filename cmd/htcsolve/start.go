package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wanko/clingo/pkg/lib/signals"
	"github.com/wanko/clingo/pkg/version"
)

type options struct {
	minInt        int
	maxInt        int
	models        int
	csp           bool
	strict        bool
	seed          int64
	restartBase   int
	portfolio     int
	checkSolution bool
	checkState    bool
	printAux      bool
	stats         bool
	metricsAddr   string
	timeLimit     time.Duration
	configPath    string
	overrides     []string
	debug         bool
	version       bool
}

func newRootCmd() *cobra.Command {
	cmd := newSolveCmd("htcsolve [files]", "Solves logic programs with linear constraints over integers")
	cmd.AddCommand(
		newSolveCmd("solve [files]", "Solves programs read from files or stdin"),
		newTranslateCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newSolveCmd(use, short string) *cobra.Command {
	o := options{}

	cmd := &cobra.Command{
		Use:          use,
		Short:        short,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.version {
				fmt.Print(version.String())
				return nil
			}

			if o.configPath != "" || len(o.overrides) > 0 {
				if err := o.applyConfig(cmd.Flags()); err != nil {
					return err
				}
			}

			logger := logrus.New()
			if o.debug {
				logger.SetLevel(logrus.DebugLevel)
			}

			ctx, cancel := context.WithCancel(signals.Context())
			defer cancel()
			if o.timeLimit > 0 {
				var tcancel context.CancelFunc
				ctx, tcancel = context.WithTimeout(ctx, o.timeLimit)
				defer tcancel()
			}

			return o.run(ctx, logger, args)
		},
	}

	cmd.Flags().IntVar(&o.minInt, "min-int", -20, "smallest value of the integer domain")
	cmd.Flags().IntVar(&o.maxInt, "max-int", 20, "largest value of the integer domain")
	cmd.Flags().IntVarP(&o.models, "models", "n", 0, "maximum number of models to enumerate, 0 for all")
	cmd.Flags().BoolVar(&o.csp, "csp", false, "give constraint atoms classical instead of founded value semantics")
	cmd.Flags().BoolVar(&o.strict, "strict", false, "reject guard bounds outside the integer domain instead of clamping them")
	cmd.Flags().Int64Var(&o.seed, "seed", 0, "seed for decision heuristic tie breaking")
	cmd.Flags().IntVar(&o.restartBase, "restart-base", 64, "base of the Luby restart sequence")
	cmd.Flags().IntVar(&o.portfolio, "portfolio", 1, "number of solver cores racing on the same program")
	cmd.Flags().BoolVar(&o.checkSolution, "check-solution", false, "verify every model against the constraints")
	cmd.Flags().BoolVar(&o.checkState, "check-state", false, "verify that all variable domains are singletons in a model")
	cmd.Flags().BoolVar(&o.printAux, "print-auxvars", false, "print assignments of auxiliary variables")
	cmd.Flags().BoolVar(&o.stats, "stats", false, "print solver statistics")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, empty to disable")
	cmd.Flags().DurationVar(&o.timeLimit, "time-limit", 0, "interrupt solving after this duration, 0 for no limit")
	cmd.Flags().StringVar(&o.configPath, "config", "", "path to a YAML config file, explicit flags take precedence")
	cmd.Flags().StringArrayVar(&o.overrides, "set", nil, "override a config value, given as key=value")

	cmd.Flags().BoolVar(&o.debug, "debug", false, "use debug log level")
	cmd.Flags().BoolVar(&o.version, "version", false, "displays the solver version")

	return cmd
}

func newTranslateCmd() *cobra.Command {
	o := options{}

	cmd := &cobra.Command{
		Use:          "translate [files]",
		Short:        "Prints the rules and constraints the founded semantics translation produces",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logrus.New()
			if o.debug {
				logger.SetLevel(logrus.DebugLevel)
			}
			return o.translate(logger, args)
		},
	}

	cmd.Flags().IntVar(&o.minInt, "min-int", -20, "smallest value of the integer domain")
	cmd.Flags().IntVar(&o.maxInt, "max-int", 20, "largest value of the integer domain")
	cmd.Flags().BoolVar(&o.strict, "strict", false, "reject guard bounds outside the integer domain instead of clamping them")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "use debug log level")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the solver version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(version.String())
		},
	}
}
