package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceStore_BuildUpsert(t *testing.T) {
	store := NewAccountPerformanceStore(&Postgres{cfg: &config.Config{}})
	rows := []model.DatedPerformance{
		{Date: time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC), Invested: decimal.NewFromInt(10), Realized: decimal.Zero, CurrentValue: decimal.NewFromInt(12)},
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Invested: decimal.NewFromInt(10), Realized: decimal.NewFromInt(1), CurrentValue: decimal.NewFromInt(13)},
	}

	query, args := store.buildUpsert(42, rows)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO account_performance (account_id, dt, invested, realized, current_value) VALUES ($1, $2, $3, $4, $5),($6, $7, $8, $9, $10)"))
	assert.Contains(t, query, "ON CONFLICT (account_id, dt) DO UPDATE SET")
	require.Len(t, args, 10)
	assert.Equal(t, int64(42), args[0])
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), args[1])
	assert.Equal(t, int64(42), args[5])
}

func TestPerformanceStore_BatchSizeIsBounded(t *testing.T) {
	cfg := &config.Config{}

	cfg.Postgres.InsertBatchSize = 0
	assert.Equal(t, maxInsertRows, NewPortfolioPerformanceStore(&Postgres{cfg: cfg}).batchSize)

	cfg.Postgres.InsertBatchSize = 100000
	assert.Equal(t, maxInsertRows, NewPortfolioPerformanceStore(&Postgres{cfg: cfg}).batchSize)

	cfg.Postgres.InsertBatchSize = 500
	store := NewBrokeragePerformanceStore(&Postgres{cfg: cfg})
	assert.Equal(t, 500, store.batchSize)
	assert.Equal(t, "brokerage_performance", store.table)
	assert.Equal(t, "brokerage_id", store.ownerColumn)
}

const (
	deleteAllQuery  = "DELETE FROM portfolio_performance WHERE portfolio_id = $1"
	deleteFromQuery = "DELETE FROM portfolio_performance WHERE portfolio_id = $1 AND dt >= $2"
	insertQuery     = "INSERT INTO portfolio_performance (portfolio_id, dt, invested, realized, current_value) VALUES"
	selectQuery     = "SELECT dt, invested, realized, current_value FROM portfolio_performance WHERE portfolio_id = $1"
)

// sqlPattern matches query words separated by any whitespace.
func sqlPattern(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`)
}

func exact(query string) string {
	return `^\s*` + sqlPattern(query) + `\s*$`
}

func prefix(query string) string {
	return `^\s*` + sqlPattern(query)
}

func newMockedStore(t *testing.T, batchSize int) (*PerformanceStore, *Postgres, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.Postgres.InsertBatchSize = batchSize
	pg := NewPostgres(cfg, sqlx.NewDb(db, "pgx"))

	return NewPortfolioPerformanceStore(pg), pg, mock
}

func jan(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func seriesOf(days ...int) []model.DatedPerformance {
	series := make([]model.DatedPerformance, 0, len(days))
	for _, d := range days {
		series = append(series, model.DatedPerformance{
			Date:         jan(d),
			Invested:     decimal.NewFromInt(100),
			Realized:     decimal.Zero,
			CurrentValue: decimal.NewFromInt(int64(100 + d)),
		})
	}
	return series
}

func TestPerformanceStore_ReplaceSeries(t *testing.T) {
	store, _, mock := newMockedStore(t, 0)

	mock.ExpectBegin()
	mock.ExpectExec(exact(deleteAllQuery)).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(prefix(insertQuery)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.ReplaceSeries(context.Background(), 7, seriesOf(1, 2))

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceStore_ReplaceSeriesFrom(t *testing.T) {
	store, _, mock := newMockedStore(t, 0)

	// строки до from не удаляются
	mock.ExpectBegin()
	mock.ExpectExec(exact(deleteFromQuery)).WithArgs(int64(7), jan(5)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(prefix(insertQuery)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.ReplaceSeriesFrom(context.Background(), 7, time.Date(2024, time.January, 5, 18, 30, 0, 0, time.UTC), seriesOf(6, 7))

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceStore_ReplaceSeriesFromRollsBackOnInsertFailure(t *testing.T) {
	store, _, mock := newMockedStore(t, 0)
	errInsert := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec(exact(deleteFromQuery)).WithArgs(int64(7), jan(5)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(prefix(insertQuery)).WillReturnError(errInsert)
	mock.ExpectRollback()

	err := store.ReplaceSeriesFrom(context.Background(), 7, jan(5), seriesOf(6, 7))

	assert.ErrorIs(t, err, errInsert)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceStore_UpsertSeriesChunksShareOneTransaction(t *testing.T) {
	store, _, mock := newMockedStore(t, 2)
	errInsert := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec(prefix(insertQuery)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(prefix(insertQuery)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertSeries(context.Background(), 7, seriesOf(1, 2, 3)))

	// сбой на втором куске откатывает и первый
	mock.ExpectBegin()
	mock.ExpectExec(prefix(insertQuery)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(prefix(insertQuery)).WillReturnError(errInsert)
	mock.ExpectRollback()

	assert.ErrorIs(t, store.UpsertSeries(context.Background(), 7, seriesOf(1, 2, 3)), errInsert)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceStore_UpsertSeriesJoinsOuterTransaction(t *testing.T) {
	store, pg, mock := newMockedStore(t, 0)

	mock.ExpectBegin()
	mock.ExpectExec(exact(deleteFromQuery)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(prefix(insertQuery)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := pg.WithinTransaction(context.Background(), func(ctx context.Context) error {
		if err := store.DeleteSeriesFrom(ctx, 7, jan(3)); err != nil {
			return err
		}
		return store.UpsertSeries(ctx, 7, seriesOf(3))
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceStore_UpsertEmptySeriesIsNoop(t *testing.T) {
	store, _, mock := newMockedStore(t, 0)

	require.NoError(t, store.UpsertSeries(context.Background(), 7, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceStore_GetSeriesBounds(t *testing.T) {
	store, _, mock := newMockedStore(t, 0)
	from := time.Date(2024, time.January, 2, 23, 0, 0, 0, time.UTC)

	columns := []string{"dt", "invested", "realized", "current_value"}
	mock.ExpectQuery(prefix(selectQuery)).
		WithArgs(int64(7), jan(2), nil).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(jan(2), "100", "0", "102.5").
			AddRow(jan(3), "100", "1", "103"))

	series, err := store.GetSeries(context.Background(), 7, &from, nil)

	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, jan(2), series[0].Date)
	assert.True(t, decimal.RequireFromString("102.5").Equal(series[0].CurrentValue))
	assert.True(t, decimal.NewFromInt(1).Equal(series[1].Realized))

	to := jan(10)
	mock.ExpectQuery(prefix(selectQuery)).
		WithArgs(int64(7), nil, jan(10)).
		WillReturnRows(sqlmock.NewRows(columns))

	series, err = store.GetSeries(context.Background(), 7, nil, &to)

	require.NoError(t, err)
	assert.Empty(t, series)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceStore_DeleteSeriesFromKeepsEarlierRows(t *testing.T) {
	store, _, mock := newMockedStore(t, 0)

	mock.ExpectExec(exact(deleteFromQuery)).WithArgs(int64(7), jan(4)).WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.DeleteSeriesFrom(context.Background(), 7, time.Date(2024, time.January, 4, 12, 0, 0, 0, time.UTC)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
