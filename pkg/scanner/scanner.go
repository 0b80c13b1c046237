// Package scanner analyzes a contiguous range of blocks as a stream.
package scanner

import (
	"context"
	"fmt"

	"github.com/reugn/go-streams/extension"
	"github.com/reugn/go-streams/flow"
	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/pkg/detector"
	"github.com/web3ekko/flashguard/pkg/events"
)

// blockWorkers is how many blocks are analyzed at once.
const blockWorkers = 4

// BlockAnalyzer is satisfied by the block analysis service.
type BlockAnalyzer interface {
	AnalyzeBlock(ctx context.Context, blockNumber uint64) (*events.AnalysisReport, error)
}

// BlockOutcome is the result for one block of a scan. Exactly one of Report
// and Err is set.
type BlockOutcome struct {
	BlockNumber uint64
	Report      *events.AnalysisReport
	Err         error
}

// Summary totals a finished scan.
type Summary struct {
	Scanned    int
	Suspicious int
	Failed     int
}

type Scanner struct {
	analyzer BlockAnalyzer
	log      logrus.FieldLogger
}

func New(analyzer BlockAnalyzer, log logrus.FieldLogger) *Scanner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scanner{analyzer: analyzer, log: log.WithField("component", "scanner")}
}

// Scan analyzes every block in [from, to]. A failing block is reported
// through onResult and counted; it never stops the scan. onResult may be nil
// and is called from a single goroutine, in completion order.
func (s *Scanner) Scan(ctx context.Context, from, to uint64, onResult func(BlockOutcome)) (Summary, error) {
	var sum Summary
	if from == 0 || to < from {
		return sum, fmt.Errorf("invalid block range %d..%d: %w", from, to, detector.ErrInvalidInput)
	}

	in := make(chan any)
	out := make(chan any)

	go func() {
		defer close(in)
		for n := from; ; n++ {
			select {
			case <-ctx.Done():
				return
			case in <- n:
			}
			if n == to {
				return
			}
		}
	}()

	analyze := flow.NewMap(func(n uint64) BlockOutcome {
		report, err := s.analyzer.AnalyzeBlock(ctx, n)
		return BlockOutcome{BlockNumber: n, Report: report, Err: err}
	}, blockWorkers)

	go extension.NewChanSource(in).
		Via(analyze).
		To(extension.NewChanSink(out))

	for item := range out {
		o := item.(BlockOutcome)
		sum.Scanned++
		switch {
		case o.Err != nil:
			sum.Failed++
			s.log.WithError(o.Err).WithField("block", o.BlockNumber).Warn("block analysis failed")
		case o.Report.DetectedSuspiciousActivity:
			sum.Suspicious++
			s.log.WithFields(logrus.Fields{
				"block":        o.BlockNumber,
				"transactions": len(o.Report.SuspiciousTransactions),
			}).Info("suspicious activity detected")
		}
		if onResult != nil {
			onResult(o)
		}
	}

	s.log.WithFields(logrus.Fields{
		"from":       from,
		"to":         to,
		"scanned":    sum.Scanned,
		"suspicious": sum.Suspicious,
		"failed":     sum.Failed,
	}).Info("scan finished")

	return sum, ctx.Err()
}
