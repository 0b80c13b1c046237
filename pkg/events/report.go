package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/web3ekko/flashguard/pkg/detector"
)

// AnalysisReport is the record published to sinks and persisted for every
// analyzed block.
type AnalysisReport struct {
	ID                         uuid.UUID                        `json:"id"`
	BlockNumber                uint64                           `json:"blockNumber"`
	DetectedSuspiciousActivity bool                             `json:"detectedSuspiciousActivity"`
	SuspiciousTransactions     []detector.SuspiciousTransaction `json:"suspiciousTransactions"`
	PairMatches                []detector.PairMatch             `json:"pairMatches"`
	LookupFailures             []detector.LookupFailure         `json:"lookupFailures,omitempty"`
	Partial                    bool                             `json:"partial"`
	AnalyzedAt                 time.Time                        `json:"analyzedAt"`
	DurationMS                 int64                            `json:"durationMs"`
}

// NewAnalysisReport stamps res with a fresh report ID.
func NewAnalysisReport(res *detector.Result, analyzedAt time.Time, took time.Duration) *AnalysisReport {
	r := &AnalysisReport{
		ID:                     uuid.New(),
		BlockNumber:            res.BlockNumber,
		SuspiciousTransactions: res.Suspicious,
		PairMatches:            res.Matches,
		LookupFailures:         res.LookupFailures,
		Partial:                res.Partial(),
		AnalyzedAt:             analyzedAt.UTC(),
		DurationMS:             took.Milliseconds(),
	}
	r.DetectedSuspiciousActivity = res.DetectedSuspiciousActivity()
	if r.SuspiciousTransactions == nil {
		r.SuspiciousTransactions = []detector.SuspiciousTransaction{}
	}
	if r.PairMatches == nil {
		r.PairMatches = []detector.PairMatch{}
	}
	return r
}

// Key identifies the report on keyed transports.
func (r *AnalysisReport) Key() string {
	return fmt.Sprintf("%d", r.BlockNumber)
}

// ObjectName is the archive path of the report.
func (r *AnalysisReport) ObjectName() string {
	return fmt.Sprintf("reports/%d/%s.json", r.BlockNumber, r.ID)
}

func (r *AnalysisReport) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis report for block %d: %w", r.BlockNumber, err)
	}
	return data, nil
}

// UnmarshalReport decodes a report produced by Marshal.
func UnmarshalReport(data []byte) (*AnalysisReport, error) {
	var r AnalysisReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis report: %w", err)
	}
	return &r, nil
}
