package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stepPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "steprelay",
		Subsystem: "persistence",
		Name:      "last_step_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent step record persisted to Postgres.",
	})
	uploadCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "steprelay",
		Subsystem: "uploads",
		Name:      "processed_total",
		Help:      "Screenshot uploads processed, labelled by outcome.",
	}, []string{"result"})
	extractedSteps = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "steprelay",
		Subsystem: "uploads",
		Name:      "extracted_steps",
		Help:      "Distribution of step counts extracted from screenshots.",
		Buckets:   prometheus.ExponentialBuckets(500, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(stepPersistGauge, uploadCounter, extractedSteps)
}

// RecordStepPersisted updates the persistence watermark gauge.
func RecordStepPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	stepPersistGauge.Set(float64(ts.Unix()))
}

// RecordUpload counts one processed upload. result is one of
// "insert", "update", "unreadable" or "ocr_error".
func RecordUpload(result string) {
	uploadCounter.WithLabelValues(result).Inc()
}

// ObserveExtractedSteps records the step count read from a screenshot.
func ObserveExtractedSteps(steps int) {
	extractedSteps.Observe(float64(steps))
}
