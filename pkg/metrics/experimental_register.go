//go:build experimental_metrics
// +build experimental_metrics

package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	// Register experimental metrics
	stepMetrics = stepCounters(htcMode, cspMode)
	registerStepMetrics()
}

func stepCounters(modes ...string) map[string]*prometheus.CounterVec {
	result := map[string]*prometheus.CounterVec{}
	for _, s := range modes {
		result[s] = createStepCounterVec(s)
	}
	return result
}

func createStepCounterVec(mode string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solve_steps_" + mode,
			Help: fmt.Sprintf("Count of solve steps in %s mode by final search status", mode),
		},
		[]string{StatusLabel},
	)
}

func registerStepMetrics() {
	for _, v := range stepMetrics {
		prometheus.MustRegister(v)
	}
}
