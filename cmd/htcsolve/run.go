package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wanko/clingo/pkg/lib/server"
	"github.com/wanko/clingo/pkg/metrics"
	"github.com/wanko/clingo/pkg/search"
	"github.com/wanko/clingo/pkg/solve"
)

func (o *options) run(ctx context.Context, logger *logrus.Logger, files []string) error {
	src, err := readPrograms(files)
	if err != nil {
		return err
	}

	count := 0
	opts := []solve.Option{
		solve.WithBounds(o.minInt, o.maxInt),
		solve.WithMaxModels(o.models),
		solve.WithSeed(o.seed),
		solve.WithRestartBase(o.restartBase),
		solve.WithPortfolio(o.portfolio),
		solve.WithLogger(logger),
		solve.WithModelHandler(func(m solve.Model) bool {
			count++
			printModel(os.Stdout, count, m, o.printAux)
			if o.metricsAddr != "" {
				metrics.EmitModelMetric()
			}
			return true
		}),
	}
	if o.csp {
		opts = append(opts, solve.WithMode(solve.ModeCSP))
	}
	if o.strict {
		opts = append(opts, solve.WithStrict())
	}
	if o.checkSolution {
		opts = append(opts, solve.WithSolutionCheck())
	}
	if o.checkState {
		opts = append(opts, solve.WithStateCheck())
	}

	solver, err := solve.New(opts...)
	if err != nil {
		return err
	}

	var provider metrics.MetricsProvider = metrics.NewMetricsNil()
	if o.metricsAddr != "" {
		metrics.RegisterSolver()
		provider = metrics.NewMetricsSolver(solver)
		listenAndServe, err := server.GetListenAndServeFunc(
			server.WithAddress(o.metricsAddr),
			server.WithLogger(logger),
			server.WithDebug(o.debug),
		)
		if err != nil {
			return err
		}
		go func() {
			if err := listenAndServe(); err != nil {
				logger.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	if err := solver.Add(src); err != nil {
		return err
	}

	start := time.Now()
	res, err := solver.Solve(ctx)
	duration := time.Since(start)
	if err != nil {
		return err
	}

	if o.metricsAddr != "" {
		metrics.EmitSolveMetric(res.Status, duration)
		if o.csp {
			metrics.EmitCSPStep(res.Status.String())
		} else {
			metrics.EmitHTCStep(res.Status.String())
		}
		if err := provider.HandleMetrics(); err != nil {
			logger.WithError(err).Warn("failed to update metrics")
		}
	}

	if res.Optimum != nil {
		fmt.Println("OPTIMUM FOUND")
	} else {
		fmt.Println(res.Status)
	}
	if o.stats {
		printStats(os.Stdout, solver.Statistics(), duration)
	}

	if res.Status == search.Interrupted {
		return errors.New("solving was interrupted")
	}
	return nil
}

func (o *options) translate(logger *logrus.Logger, files []string) error {
	src, err := readPrograms(files)
	if err != nil {
		return err
	}

	opts := []solve.Option{
		solve.WithBounds(o.minInt, o.maxInt),
		solve.WithLogger(logger),
	}
	if o.strict {
		opts = append(opts, solve.WithStrict())
	}
	solver, err := solve.New(opts...)
	if err != nil {
		return err
	}
	if err := solver.Add(src); err != nil {
		return err
	}
	return solver.Translate(os.Stdout)
}

func readPrograms(files []string) (string, error) {
	if len(files) == 0 {
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", errors.Wrap(err, "failed to read program from stdin")
		}
		return string(src), nil
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read program %s", f)
		}
		parts = append(parts, string(src))
	}
	return strings.Join(parts, "\n"), nil
}

func printModel(w io.Writer, number int, m solve.Model, printAux bool) {
	fmt.Fprintf(w, "Answer: %d\n", number)
	fmt.Fprintln(w, strings.Join(m.Atoms, " "))
	parts := make([]string, 0, len(m.Assignments))
	for _, a := range m.Assignments {
		if !a.Defined {
			continue
		}
		if !printAux && strings.HasPrefix(a.Name, "aux(") {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%d", a.Name, a.Value))
	}
	fmt.Fprintln(w, "Valid assignment for constraints found:")
	fmt.Fprintln(w, strings.Join(parts, " "))
	if m.Cost != nil {
		fmt.Fprintf(w, "Cost: %d\n", *m.Cost)
	}
}

func printStats(w io.Writer, stats solve.Statistics, duration time.Duration) {
	fmt.Fprintf(w, "\nModels       : %d\n", stats.Models)
	fmt.Fprintf(w, "Time         : %.3fs\n", duration.Seconds())
	fmt.Fprintf(w, "Conflicts    : %d\n", stats.Conflicts)
	fmt.Fprintf(w, "Decisions    : %d\n", stats.Decisions)
	fmt.Fprintf(w, "Restarts     : %d\n", stats.Restarts)
	fmt.Fprintf(w, "Propagations : %d\n", stats.Propagations)
	fmt.Fprintf(w, "Learnt       : %d\n", stats.Learnt)
	fmt.Fprintf(w, "Order lits   : %d\n", stats.OrderLiterals)
	fmt.Fprintf(w, "Constraints  : %d\n", stats.Constraints)
	fmt.Fprintf(w, "Aux vars     : %d\n", stats.AuxVars)
}
