package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "felica_"

	ResultSuccess     = "success"
	ResultNotFelica   = "not_felica"
	ResultReadError   = "read_error"
	ResultStoreError  = "storage_error"
	ResultDecodeError = "decode_error"
)

var (
	registerOnce sync.Once

	sessionsTotal       *prometheus.CounterVec
	sessionLatency      *prometheus.HistogramVec
	recordsAppended     prometheus.Counter
	discontinuitiesSeen prometheus.Counter
)

// Init registers the reader metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		sessionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sessions_total",
				Help: "Total card presentations by result",
			},
			[]string{"result"},
		)
		sessionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "session_latency_seconds",
				Help:    "Card presentation processing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		recordsAppended = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_appended_total",
				Help: "Total history records appended to card logs",
			},
		)
		discontinuitiesSeen = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "discontinuities_total",
				Help: "Total card presentations whose history did not overlap the card log",
			},
		)

		prometheus.MustRegister(sessionsTotal, sessionLatency, recordsAppended, discontinuitiesSeen)
	})
}

// ObserveSession records one card presentation.
func ObserveSession(result string, started time.Time) {
	if sessionsTotal == nil {
		return
	}
	sessionsTotal.WithLabelValues(result).Inc()
	sessionLatency.WithLabelValues(result).Observe(time.Since(started).Seconds())
}

func AddAppended(n int) {
	if recordsAppended == nil || n <= 0 {
		return
	}
	recordsAppended.Add(float64(n))
}

func IncDiscontinuity() {
	if discontinuitiesSeen == nil {
		return
	}
	discontinuitiesSeen.Inc()
}
