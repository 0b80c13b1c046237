// Package service wires the detector to metrics, persistence and report sinks.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/pkg/detector"
	"github.com/web3ekko/flashguard/pkg/events"
	"github.com/web3ekko/flashguard/pkg/metrics"
	"github.com/web3ekko/flashguard/pkg/sinks"
)

// Analyzer runs the detection pipeline for one block.
type Analyzer interface {
	Analyze(ctx context.Context, blockNumber uint64) (*detector.Result, error)
}

// ReportStore persists reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report *events.AnalysisReport) error
}

// BlockAnalysisService analyzes a block and distributes the report.
// Persisting and publishing are best effort: their failures are logged and
// counted but never fail AnalyzeBlock.
type BlockAnalysisService struct {
	analyzer Analyzer
	store    ReportStore
	sink     sinks.Sink
	metrics  *metrics.DetectorMetrics
	log      logrus.FieldLogger
	now      func() time.Time
}

type Option func(*BlockAnalysisService)

func WithStore(s ReportStore) Option {
	return func(svc *BlockAnalysisService) { svc.store = s }
}

func WithSink(s sinks.Sink) Option {
	return func(svc *BlockAnalysisService) { svc.sink = s }
}

func WithMetrics(m *metrics.DetectorMetrics) Option {
	return func(svc *BlockAnalysisService) { svc.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(svc *BlockAnalysisService) { svc.log = l }
}

func NewBlockAnalysisService(analyzer Analyzer, opts ...Option) *BlockAnalysisService {
	svc := &BlockAnalysisService{
		analyzer: analyzer,
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.log = svc.log.WithField("component", "service")
	return svc
}

// AnalyzeBlock returns detector.ErrInvalidInput for block 0 and an
// *detector.AnalysisFailure when the analysis itself fails.
func (s *BlockAnalysisService) AnalyzeBlock(ctx context.Context, blockNumber uint64) (*events.AnalysisReport, error) {
	if blockNumber == 0 {
		return nil, fmt.Errorf("block number must be positive: %w", detector.ErrInvalidInput)
	}
	log := s.log.WithField("block", blockNumber)

	start := s.now()
	res, err := s.analyzer.Analyze(ctx, blockNumber)
	took := s.now().Sub(start)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveFailure(took)
		}
		log.WithError(err).Error("block analysis failed")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveAnalysis(blockNumber, len(res.Suspicious), len(res.Matches), len(res.LookupFailures), took)
	}

	report := events.NewAnalysisReport(res, start, took)
	log = log.WithField("report", report.ID.String())
	log.WithFields(logrus.Fields{
		"suspicious": len(report.SuspiciousTransactions),
		"partial":    report.Partial,
		"took":       took,
	}).Info("block analyzed")

	if s.store != nil {
		if err := s.store.SaveReport(ctx, report); err != nil {
			s.sinkFailed("store")
			log.WithError(err).Warn("failed to persist report")
		}
	}
	if s.sink != nil {
		if err := s.sink.Emit(ctx, report); err != nil {
			s.sinkFailed("sink")
			log.WithError(err).Warn("failed to publish report")
		}
	}
	return report, nil
}

func (s *BlockAnalysisService) sinkFailed(destination string) {
	if s.metrics != nil {
		s.metrics.SinkFailures.WithLabelValues(destination).Inc()
	}
}
