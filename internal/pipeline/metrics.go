package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the "outcome" label.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
)

// Metrics holds the Prometheus collectors owned by the pipeline. A nil
// *Metrics disables instrumentation.
type Metrics struct {
	// stageDuration records the wall-clock time of each stage.
	stageDuration *prometheus.HistogramVec
	// stageFailures counts failures per stage.
	stageFailures *prometheus.CounterVec
	// runsTotal counts completed runs by outcome: ok, error or timeout.
	runsTotal *prometheus.CounterVec
	// songsReturned records how many songs each successful run returned.
	songsReturned prometheus.Histogram
}

// NewMetrics registers the pipeline collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toonify",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),

		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toonify",
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Total number of pipeline stage failures, partitioned by stage.",
		}, []string{"stage"}),

		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toonify",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs, partitioned by outcome.",
		}, []string{"outcome"}),

		songsReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "toonify",
			Subsystem: "pipeline",
			Name:      "songs_returned",
			Help:      "Number of songs returned per successful run.",
			Buckets:   []float64{0, 1, 3, 5, 10, 15, 25},
		}),
	}
}

func (m *Metrics) observeStage(s Stage, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(s)).Observe(d.Seconds())
	if failed {
		m.stageFailures.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) observeRun(outcome string, songs int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	if outcome == outcomeOK {
		m.songsReturned.Observe(float64(songs))
	}
}
