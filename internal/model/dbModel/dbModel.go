package dbModel

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	TransactionID int64           `db:"transaction_id"`
	PortfolioID   int64           `db:"portfolio_id"`
	AccountID     sql.NullInt64   `db:"account_id"`
	Type          string          `db:"type"`
	Dt            time.Time       `db:"dt"`
	Ticker        string          `db:"ticker"`
	Shares        decimal.Decimal `db:"shares"`
	PricePerShare decimal.Decimal `db:"price_per_share"`
	Fees          decimal.Decimal `db:"fees"`
}

type Performance struct {
	Dt           time.Time       `db:"dt"`
	Invested     decimal.Decimal `db:"invested"`
	Realized     decimal.Decimal `db:"realized"`
	CurrentValue decimal.Decimal `db:"current_value"`
}

type Portfolio struct {
	PortfolioID int64  `db:"portfolio_id"`
	UserID      int64  `db:"user_id"`
	Name        string `db:"name"`
}

type Brokerage struct {
	BrokerageID int64  `db:"brokerage_id"`
	UserID      int64  `db:"user_id"`
	Name        string `db:"name"`
}

type BrokerageAccount struct {
	AccountID   int64  `db:"account_id"`
	BrokerageID int64  `db:"brokerage_id"`
	UserID      int64  `db:"user_id"`
	Name        string `db:"name"`
}
