package scanner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3ekko/flashguard/pkg/detector"
	"github.com/web3ekko/flashguard/pkg/events"
)

type fakeAnalyzer struct {
	mu         sync.Mutex
	seen       []uint64
	suspicious map[uint64]bool
	failing    map[uint64]bool
}

func (f *fakeAnalyzer) AnalyzeBlock(_ context.Context, n uint64) (*events.AnalysisReport, error) {
	f.mu.Lock()
	f.seen = append(f.seen, n)
	f.mu.Unlock()

	if f.failing[n] {
		return nil, errors.New("rpc unavailable")
	}
	res := &detector.Result{BlockNumber: n}
	if f.suspicious[n] {
		res.Suspicious = []detector.SuspiciousTransaction{{TxHash: "0xaa", PossibleAttack: true, SuspectedFlashLoan: true}}
	}
	return events.NewAnalysisReport(res, time.Now(), 0), nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestScan_CoversRangeAndCountsOutcomes(t *testing.T) {
	fa := &fakeAnalyzer{
		suspicious: map[uint64]bool{12: true, 15: true},
		failing:    map[uint64]bool{13: true},
	}
	s := New(fa, quiet())

	var got []uint64
	sum, err := s.Scan(context.Background(), 10, 19, func(o BlockOutcome) {
		got = append(got, o.BlockNumber)
		if o.BlockNumber == 13 {
			assert.Error(t, o.Err)
			assert.Nil(t, o.Report)
		}
	})
	require.NoError(t, err)

	assert.Equal(t, Summary{Scanned: 10, Suspicious: 2, Failed: 1}, sum)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	assert.Equal(t, []uint64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, got)
}

func TestScan_SingleBlock(t *testing.T) {
	fa := &fakeAnalyzer{}
	sum, err := New(fa, quiet()).Scan(context.Background(), 7, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Scanned)
	assert.Equal(t, []uint64{7}, fa.seen)
}

func TestScan_InvalidRange(t *testing.T) {
	s := New(&fakeAnalyzer{}, quiet())

	_, err := s.Scan(context.Background(), 0, 5, nil)
	assert.ErrorIs(t, err, detector.ErrInvalidInput)

	_, err = s.Scan(context.Background(), 9, 5, nil)
	assert.ErrorIs(t, err, detector.ErrInvalidInput)
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := New(&fakeAnalyzer{}, quiet()).Scan(ctx, 1, 1000, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, sum.Scanned, 1000)
}
