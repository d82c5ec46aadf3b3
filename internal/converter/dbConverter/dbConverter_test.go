package dbConverter

import (
	"database/sql"
	"testing"
	"time"

	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/model/dbModel"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertTransaction_AccountLink(t *testing.T) {
	row := dbModel.Transaction{
		TransactionID: 7,
		PortfolioID:   3,
		Type:          "sell",
		Dt:            time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		Ticker:        "SBER",
		Shares:        decimal.NewFromInt(2),
	}

	unlinked := ConvertTransaction(row)
	assert.Nil(t, unlinked.AccountID)
	assert.Equal(t, model.TransactionSell, unlinked.Type)

	row.AccountID = sql.NullInt64{Int64: 11, Valid: true}
	linked := ConvertTransaction(row)
	require.NotNil(t, linked.AccountID)
	assert.Equal(t, int64(11), *linked.AccountID)
}

func TestConvertPerformance_TruncatesDate(t *testing.T) {
	got := ConvertPerformance(dbModel.Performance{Dt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))})
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), got.Date)
}
