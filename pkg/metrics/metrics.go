package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wanko/clingo/pkg/search"
	"github.com/wanko/clingo/pkg/solve"
)

const (
	ModeLabel   = "mode"
	StatusLabel = "status"
	Outcome     = "outcome"
	Succeeded   = "succeeded"
	Failed      = "failed"
)

// StatisticsSource yields cumulative solver statistics. *solve.Solver
// satisfies it.
type StatisticsSource interface {
	Statistics() solve.Statistics
}

type MetricsProvider interface {
	HandleMetrics() error
}

type metricsSolver struct {
	source StatisticsSource
}

func NewMetricsSolver(source StatisticsSource) MetricsProvider {
	return &metricsSolver{source}
}

func (m *metricsSolver) HandleMetrics() error {
	stats := m.source.Statistics()
	orderLiteralCount.Set(float64(stats.OrderLiterals))
	constraintCount.Set(float64(stats.Constraints))
	auxiliaryVariableCount.Set(float64(stats.AuxVars))
	searchCounters.update(stats)
	return nil
}

type MetricsNil struct{}

func NewMetricsNil() MetricsProvider {
	return &MetricsNil{}
}

func (*MetricsNil) HandleMetrics() error {
	return nil
}

// To add new metrics:
// 1. Register them in RegisterSolver() below.
// 2. Update them in HandleMetrics (or through an Emit helper instead).
var (
	orderLiteralCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "order_literal_count",
			Help: "Number of order literals introduced for integer variables",
		},
	)

	constraintCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "constraint_count",
			Help: "Number of linear constraints after translation",
		},
	)

	auxiliaryVariableCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auxiliary_variable_count",
			Help: "Number of auxiliary integer variables introduced by the translation",
		},
	)

	modelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "models_total",
			Help: "Monotonic count of models found",
		},
	)

	conflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conflicts_total",
			Help: "Monotonic count of conflicts hit during search",
		},
	)

	decisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decisions_total",
			Help: "Monotonic count of decisions taken during search",
		},
	)

	restartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "restarts_total",
			Help: "Monotonic count of search restarts",
		},
	)

	propagationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "propagations_total",
			Help: "Monotonic count of literals assigned by propagation",
		},
	)

	learntNogoodsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "learnt_nogoods_total",
			Help: "Monotonic count of nogoods learnt from conflicts",
		},
	)

	solveStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solve_steps_total",
			Help: "Monotonic count of solve steps by final search status",
		},
		[]string{StatusLabel},
	)

	solveDurationSummary = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "solve_duration_seconds",
			Help:       "The duration of a solve step",
			Objectives: map[float64]float64{0.95: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{Outcome},
	)

	searchCounters = newSearchStatCounter()
)

// searchStatCounter converts the solver's cumulative statistics into counter
// increments. Read and write access to the last observed snapshot are
// protected by mutex.
type searchStatCounter struct {
	last     solve.Statistics
	lastLock sync.Mutex
}

func newSearchStatCounter() *searchStatCounter {
	return &searchStatCounter{}
}

func (s *searchStatCounter) update(cur solve.Statistics) {
	s.lastLock.Lock()
	defer s.lastLock.Unlock()
	conflictsTotal.Add(float64(cur.Conflicts - s.last.Conflicts))
	decisionsTotal.Add(float64(cur.Decisions - s.last.Decisions))
	restartsTotal.Add(float64(cur.Restarts - s.last.Restarts))
	propagationsTotal.Add(float64(cur.Propagations - s.last.Propagations))
	learntNogoodsTotal.Add(float64(cur.Learnt - s.last.Learnt))
	s.last = cur
}

func RegisterSolver() {
	prometheus.MustRegister(orderLiteralCount)
	prometheus.MustRegister(constraintCount)
	prometheus.MustRegister(auxiliaryVariableCount)
	prometheus.MustRegister(modelsTotal)
	prometheus.MustRegister(conflictsTotal)
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(restartsTotal)
	prometheus.MustRegister(propagationsTotal)
	prometheus.MustRegister(learntNogoodsTotal)
	prometheus.MustRegister(solveStepsTotal)
	prometheus.MustRegister(solveDurationSummary)
}

func EmitModelMetric() {
	modelsTotal.Inc()
}

func EmitSolveMetric(status search.Status, duration time.Duration) {
	solveStepsTotal.WithLabelValues(status.String()).Inc()
	switch status {
	case search.Satisfiable, search.Unsatisfiable:
		solveDurationSummary.WithLabelValues(Succeeded).Observe(duration.Seconds())
	default:
		solveDurationSummary.WithLabelValues(Failed).Observe(duration.Seconds())
	}
}
