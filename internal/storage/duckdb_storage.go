package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/sirupsen/logrus"

	"github.com/web3ekko/flashguard/pkg/detector"
	"github.com/web3ekko/flashguard/pkg/events"
)

// ErrNotFound is returned when no report exists for a block.
var ErrNotFound = errors.New("no report found")

// Findings is the latest stored verdict for a block.
type Findings struct {
	BlockNumber                uint64                           `json:"blockNumber"`
	ReportID                   string                           `json:"reportId"`
	AnalyzedAt                 time.Time                        `json:"analyzedAt"`
	DetectedSuspiciousActivity bool                             `json:"detectedSuspiciousActivity"`
	Partial                    bool                             `json:"partial"`
	SuspiciousTransactions     []detector.SuspiciousTransaction `json:"suspiciousTransactions"`
}

// DuckDBStorage keeps analysis reports in DuckDB.
type DuckDBStorage struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// NewDuckDBStorage opens the database at path; an empty path is in-memory.
func NewDuckDBStorage(path string, log logrus.FieldLogger) (*DuckDBStorage, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &DuckDBStorage{db: db, log: log.WithField("component", "duckdb_storage")}
	if err := s.initialize(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return s, nil
}

func (s *DuckDBStorage) initialize(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analysis_reports (
			id VARCHAR PRIMARY KEY,
			block_number BIGINT NOT NULL,
			detected BOOLEAN NOT NULL,
			partial BOOLEAN NOT NULL,
			analyzed_at TIMESTAMP NOT NULL,
			duration_ms BIGINT NOT NULL,
			report_json VARCHAR NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS suspicious_transactions (
			report_id VARCHAR NOT NULL,
			block_number BIGINT NOT NULL,
			position INTEGER NOT NULL,
			tx_hash VARCHAR NOT NULL,
			initiator_address VARCHAR NOT NULL,
			possible_attack BOOLEAN NOT NULL,
			suspected_flash_loan BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_block ON analysis_reports (block_number)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	s.log.Debug("report tables ready")
	return nil
}

// SaveReport stores the report and one row per flagged transaction.
func (s *DuckDBStorage) SaveReport(ctx context.Context, report *events.AnalysisReport) error {
	data, err := report.Marshal()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_reports (id, block_number, detected, partial, analyzed_at, duration_ms, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID.String(), int64(report.BlockNumber), report.DetectedSuspiciousActivity, report.Partial,
		report.AnalyzedAt.UTC(), report.DurationMS, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to store report %s: %w", report.ID, err)
	}

	for i, st := range report.SuspiciousTransactions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO suspicious_transactions
				(report_id, block_number, position, tx_hash, initiator_address, possible_attack, suspected_flash_loan)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			report.ID.String(), int64(report.BlockNumber), i, st.TxHash, st.InitiatorAddress,
			st.PossibleAttack, st.SuspectedFlashLoan,
		)
		if err != nil {
			return fmt.Errorf("failed to store suspicious transaction %s: %w", st.TxHash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report %s: %w", report.ID, err)
	}
	return nil
}

// FindingsByBlock returns the most recent findings for blockNumber, or ErrNotFound.
func (s *DuckDBStorage) FindingsByBlock(ctx context.Context, blockNumber uint64) (*Findings, error) {
	f := &Findings{BlockNumber: blockNumber, SuspiciousTransactions: []detector.SuspiciousTransaction{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, analyzed_at, detected, partial
		FROM analysis_reports
		WHERE block_number = ?
		ORDER BY analyzed_at DESC
		LIMIT 1`, int64(blockNumber),
	).Scan(&f.ReportID, &f.AnalyzedAt, &f.DetectedSuspiciousActivity, &f.Partial)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("block %d: %w", blockNumber, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report for block %d: %w", blockNumber, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_hash, initiator_address, possible_attack, suspected_flash_loan
		FROM suspicious_transactions
		WHERE report_id = ?
		ORDER BY position`, f.ReportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings for block %d: %w", blockNumber, err)
	}
	defer rows.Close()

	for rows.Next() {
		var st detector.SuspiciousTransaction
		if err := rows.Scan(&st.TxHash, &st.InitiatorAddress, &st.PossibleAttack, &st.SuspectedFlashLoan); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.SuspiciousTransactions = append(f.SuspiciousTransactions, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	f.AnalyzedAt = f.AnalyzedAt.UTC()
	return f, nil
}

// ReportCount returns how many reports are stored.
func (s *DuckDBStorage) ReportCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}

func (s *DuckDBStorage) Close() error {
	return s.db.Close()
}
