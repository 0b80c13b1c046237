// Package sinks delivers analysis reports to downstream systems.
package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/web3ekko/flashguard/pkg/events"
)

// Sink receives every analysis report. Emit must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, report *events.AnalysisReport) error
	Close() error
}

// MultiSink fans a report out to every configured sink. All sinks are tried;
// their errors are joined.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

// Len returns the number of wrapped sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Emit(ctx context.Context, report *events.AnalysisReport) error {
	var errs []error
	for i, s := range m.sinks {
		if err := s.Emit(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
