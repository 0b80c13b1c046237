package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectorMetrics are the Prometheus collectors exported by the service.
type DetectorMetrics struct {
	BlocksAnalyzed         *prometheus.CounterVec
	SuspiciousTransactions prometheus.Counter
	PairMatches            prometheus.Counter
	LookupFailures         prometheus.Counter
	PartialResults         prometheus.Counter
	SinkFailures           *prometheus.CounterVec
	AnalysisDuration       prometheus.Histogram
	LastAnalyzedBlock      prometheus.Gauge
}

// Outcome labels for BlocksAnalyzed.
const (
	OutcomeClean      = "clean"
	OutcomeSuspicious = "suspicious"
	OutcomeFailed     = "failed"
)

func NewDetectorMetrics() *DetectorMetrics {
	return &DetectorMetrics{
		BlocksAnalyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashguard_blocks_analyzed_total",
			Help: "Total number of blocks analyzed, by outcome",
		}, []string{"outcome"}),
		SuspiciousTransactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashguard_suspicious_transactions_total",
			Help: "Total number of transactions flagged as suspected flash loans",
		}),
		PairMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashguard_pair_matches_total",
			Help: "Total number of circular transfer pairs found",
		}),
		LookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashguard_lookup_failures_total",
			Help: "Total number of sender transaction-count lookups skipped after failing",
		}),
		PartialResults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashguard_partial_results_total",
			Help: "Total number of analyses that completed with skipped lookups",
		}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashguard_sink_failures_total",
			Help: "Total number of failed report deliveries, by destination",
		}, []string{"destination"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flashguard_analysis_duration_seconds",
			Help:    "Wall time spent analyzing a block",
			Buckets: prometheus.DefBuckets,
		}),
		LastAnalyzedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flashguard_last_analyzed_block",
			Help: "Number of the most recently analyzed block",
		}),
	}
}

func (m *DetectorMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.BlocksAnalyzed,
		m.SuspiciousTransactions,
		m.PairMatches,
		m.LookupFailures,
		m.PartialResults,
		m.SinkFailures,
		m.AnalysisDuration,
		m.LastAnalyzedBlock,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveAnalysis records one successful analysis.
func (m *DetectorMetrics) ObserveAnalysis(block uint64, suspicious, matches, lookupFailures int, took time.Duration) {
	outcome := OutcomeClean
	if suspicious > 0 {
		outcome = OutcomeSuspicious
	}
	m.BlocksAnalyzed.WithLabelValues(outcome).Inc()
	m.SuspiciousTransactions.Add(float64(suspicious))
	m.PairMatches.Add(float64(matches))
	if lookupFailures > 0 {
		m.LookupFailures.Add(float64(lookupFailures))
		m.PartialResults.Inc()
	}
	m.AnalysisDuration.Observe(took.Seconds())
	m.LastAnalyzedBlock.Set(float64(block))
}

func (m *DetectorMetrics) ObserveFailure(took time.Duration) {
	m.BlocksAnalyzed.WithLabelValues(OutcomeFailed).Inc()
	m.AnalysisDuration.Observe(took.Seconds())
}
