package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	// Solver modes
	htcMode = "htc"
	cspMode = "csp"
)

var (
	stepMetrics = map[string]*prometheus.CounterVec{}
)

func EmitHTCStep(status string) {
	emitStep(htcMode, status)
}

func EmitCSPStep(status string) {
	emitStep(cspMode, status)
}

func emitStep(mode, status string) {
	if counter, ok := stepMetrics[mode]; ok {
		counter.WithLabelValues(status).Inc()
	}
}
