package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KotFed0t/invest_performance/internal/converter/dbConverter"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/model/dbModel"
	"github.com/KotFed0t/invest_performance/utils"
)

const (
	performanceColumnsCount = 5
	// postgres limits a statement to 65535 bind parameters
	maxInsertRows = 65535 / performanceColumnsCount
)

// PerformanceStore persists one owner kind's daily series in a table keyed by (owner, dt).
// Rows are always written as whole ranges: replacements run inside one database transaction
// so readers never observe a partially written series.
type PerformanceStore struct {
	pg          *Postgres
	table       string
	ownerColumn string
	batchSize   int
}

func newPerformanceStore(pg *Postgres, table, ownerColumn string) *PerformanceStore {
	batchSize := pg.cfg.Postgres.InsertBatchSize
	if batchSize <= 0 || batchSize > maxInsertRows {
		batchSize = maxInsertRows
	}
	return &PerformanceStore{pg: pg, table: table, ownerColumn: ownerColumn, batchSize: batchSize}
}

func NewPortfolioPerformanceStore(pg *Postgres) *PerformanceStore {
	return newPerformanceStore(pg, "portfolio_performance", "portfolio_id")
}

func NewAccountPerformanceStore(pg *Postgres) *PerformanceStore {
	return newPerformanceStore(pg, "account_performance", "account_id")
}

func NewBrokeragePerformanceStore(pg *Postgres) *PerformanceStore {
	return newPerformanceStore(pg, "brokerage_performance", "brokerage_id")
}

func (s *PerformanceStore) op(method string) string {
	return fmt.Sprintf("PerformanceStore(%s).%s", s.table, method)
}

// ReplaceSeries swaps the owner's whole series for the given one.
func (s *PerformanceStore) ReplaceSeries(ctx context.Context, ownerID int64, series []model.DatedPerformance) error {
	return s.pg.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.DeleteSeries(ctx, ownerID); err != nil {
			return err
		}
		return s.UpsertSeries(ctx, ownerID, series)
	})
}

// ReplaceSeriesFrom swaps rows dated on or after from, earlier rows stay untouched.
func (s *PerformanceStore) ReplaceSeriesFrom(ctx context.Context, ownerID int64, from time.Time, series []model.DatedPerformance) error {
	return s.pg.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.DeleteSeriesFrom(ctx, ownerID, from); err != nil {
			return err
		}
		return s.UpsertSeries(ctx, ownerID, series)
	})
}

// UpsertSeries inserts rows or updates them in place when (owner, dt) already exists.
// All chunks are written in one transaction.
func (s *PerformanceStore) UpsertSeries(ctx context.Context, ownerID int64, series []model.DatedPerformance) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := s.op("UpsertSeries")

	slog.Debug("UpsertSeries start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID), slog.Int("rows", len(series)))
	defer func() {
		if err != nil {
			slog.Error("UpsertSeries failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertSeries completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	if len(series) == 0 {
		return nil
	}

	return s.pg.WithinTransaction(ctx, func(ctx context.Context) error {
		for len(series) > 0 {
			n := min(len(series), s.batchSize)
			query, args := s.buildUpsert(ownerID, series[:n])
			if _, err := s.pg.txOrDb(ctx).ExecContext(ctx, query, args...); err != nil {
				return err
			}
			series = series[n:]
		}
		return nil
	})
}

func (s *PerformanceStore) buildUpsert(ownerID int64, rows []model.DatedPerformance) (string, []any) {
	sb := strings.Builder{}
	args := make([]any, 0, len(rows)*performanceColumnsCount)

	sb.WriteString(fmt.Sprintf(`INSERT INTO %s (%s, dt, invested, realized, current_value) VALUES `, s.table, s.ownerColumn))

	for i, row := range rows {
		args = append(args, ownerID, utils.Day(row.Date), row.Invested, row.Realized, row.CurrentValue)

		start := i*performanceColumnsCount + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			start, start+1, start+2, start+3, start+4,
		))

		if i < len(rows)-1 {
			sb.WriteString(",")
		}
	}

	sb.WriteString(fmt.Sprintf(`
		ON CONFLICT (%s, dt) DO UPDATE SET
			invested = EXCLUDED.invested,
			realized = EXCLUDED.realized,
			current_value = EXCLUDED.current_value;
	`, s.ownerColumn))

	return sb.String(), args
}

// GetSeries reads the owner's rows ascending by date; nil bounds are open.
func (s *PerformanceStore) GetSeries(ctx context.Context, ownerID int64, from, to *time.Time) (series []model.DatedPerformance, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := s.op("GetSeries")

	query := fmt.Sprintf(`
		SELECT dt, invested, realized, current_value
		FROM %s
		WHERE %s = $1
		AND ($2::date IS NULL OR dt >= $2::date)
		AND ($3::date IS NULL OR dt <= $3::date)
		ORDER BY dt
		`, s.table, s.ownerColumn)

	slog.Debug("GetSeries start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID))
	defer func() {
		if err != nil {
			slog.Error("GetSeries failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetSeries completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("rows", len(series)))
		}
	}()

	rows, err := s.pg.txOrDb(ctx).QueryxContext(ctx, query, ownerID, dayOrNil(from), dayOrNil(to))
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbPerf dbModel.Performance
		err = rows.StructScan(&dbPerf)
		if err != nil {
			return nil, err
		}
		series = append(series, dbConverter.ConvertPerformance(dbPerf))
	}

	return series, rows.Err()
}

func (s *PerformanceStore) DeleteSeries(ctx context.Context, ownerID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := s.op("DeleteSeries")
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, s.table, s.ownerColumn)

	slog.Debug("DeleteSeries start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID))
	defer func() {
		if err != nil {
			slog.Error("DeleteSeries failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteSeries completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = s.pg.txOrDb(ctx).ExecContext(ctx, query, ownerID)
	return err
}

func (s *PerformanceStore) DeleteSeriesFrom(ctx context.Context, ownerID int64, from time.Time) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := s.op("DeleteSeriesFrom")
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND dt >= $2`, s.table, s.ownerColumn)

	slog.Debug("DeleteSeriesFrom start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID), slog.Time("from", from))
	defer func() {
		if err != nil {
			slog.Error("DeleteSeriesFrom failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteSeriesFrom completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = s.pg.txOrDb(ctx).ExecContext(ctx, query, ownerID, utils.Day(from))
	return err
}

func dayOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return utils.Day(*t)
}
