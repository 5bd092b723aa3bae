package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GCSequence exports the state of stop/collect/start sequences.
var GCSequence = GCSequenceExporter{
	runs: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequence",
			Name:      "runs_total",
			Help:      "How many gc sequences have been finished.",
		},
		[]string{"result", "failed_step"},
	),
	duration: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sequence",
			Name:      "duration_seconds",
			Help:      "How long it took to run the whole gc sequence.",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"result"},
	),
	stepDuration: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sequence",
			Name:      "step_duration_seconds",
			Help:      "How long it took to run a single step of the sequence.",
			Buckets:   []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60, 300, 1800},
		},
		[]string{"step", "result"},
	),
	rejected: promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequence",
			Name:      "rejected_triggers_total",
			Help:      "How many triggers have been rejected because another sequence was in flight.",
		},
	),
	inFlight: promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sequence",
			Name:      "in_flight",
			Help:      "Whether a gc sequence is running at the moment.",
		},
	),
}

type GCSequenceExporter struct {
	runs         *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	stepDuration *prometheus.HistogramVec
	rejected     prometheus.Counter
	inFlight     prometheus.Gauge
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}

	return "failed"
}

func (e *GCSequenceExporter) SequenceStarted() {
	e.inFlight.Inc()
}

func (e *GCSequenceExporter) SequenceFinished(ok bool, failedStep string, startedAt time.Time) {
	e.inFlight.Dec()

	e.runs.With(prometheus.Labels{"result": resultLabel(ok), "failed_step": failedStep}).Inc()
	e.duration.With(prometheus.Labels{"result": resultLabel(ok)}).Observe(time.Since(startedAt).Seconds())
}

func (e *GCSequenceExporter) StepFinished(step string, ok bool, elapsed time.Duration) {
	e.stepDuration.With(prometheus.Labels{"step": step, "result": resultLabel(ok)}).Observe(elapsed.Seconds())
}

func (e *GCSequenceExporter) TriggerRejected() {
	e.rejected.Inc()
}
