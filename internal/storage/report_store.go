package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fadai88/grid-trading-crypto/internal/infrastructure"
	"github.com/fadai88/grid-trading-crypto/internal/model"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// StoredReport 持久化的回测结果摘要
type StoredReport struct {
	ID          string          `json:"id" db:"id"`
	Symbol      string          `json:"symbol" db:"symbol"`
	InitialCash string          `json:"initial_cash" db:"initial_cash"`
	FinalValue  string          `json:"final_value" db:"final_value"`
	Metrics     json.RawMessage `json:"metrics" db:"metrics"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ReportStore persists finished backtest reports so past runs can be
// listed and compared.
type ReportStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReportStore(db *pgxpool.Pool, logger *zap.Logger) *ReportStore {
	return &ReportStore{db: db, logger: logger}
}

func (s *ReportStore) Save(ctx context.Context, id string, report *model.LadderReport) error {
	metrics, err := json.Marshal(report.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	trades, err := json.Marshal(report.Trades)
	if err != nil {
		return fmt.Errorf("failed to marshal trades: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO backtest_reports (id, symbol, initial_cash, final_value, metrics, trades, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, report.Symbol, report.InitialCash, report.FinalValue, metrics, trades, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert backtest report: %w", err)
	}

	infrastructure.DBInsertRate.WithLabelValues("backtest_reports").Inc()
	s.logger.Info("saved backtest report",
		zap.String("report_id", id),
		zap.String("symbol", report.Symbol),
	)
	return nil
}

func (s *ReportStore) Recent(ctx context.Context, limit int) ([]StoredReport, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, symbol, initial_cash::text, final_value::text, metrics, created_at
		FROM backtest_reports
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := make([]StoredReport, 0, limit)
	for rows.Next() {
		var r StoredReport
		if err := rows.Scan(&r.ID, &r.Symbol, &r.InitialCash, &r.FinalValue, &r.Metrics, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
