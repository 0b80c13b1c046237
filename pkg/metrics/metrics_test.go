package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorMetrics(t *testing.T) {
	m := NewDetectorMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.ObserveAnalysis(100, 2, 4, 0, 10*time.Millisecond)
	m.ObserveAnalysis(101, 0, 0, 3, 5*time.Millisecond)
	m.ObserveFailure(time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksAnalyzed.WithLabelValues(OutcomeSuspicious)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksAnalyzed.WithLabelValues(OutcomeClean)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksAnalyzed.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SuspiciousTransactions))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.PairMatches))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LookupFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PartialResults))
	assert.Equal(t, 101.0, testutil.ToFloat64(m.LastAnalyzedBlock))
}

func TestDetectorMetrics_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, NewDetectorMetrics().Register(reg))
	require.Error(t, NewDetectorMetrics().Register(reg))
}
