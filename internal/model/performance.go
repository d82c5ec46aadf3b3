package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DatedPerformance is one day of an owner's performance series.
type DatedPerformance struct {
	Date         time.Time
	Invested     decimal.Decimal
	Realized     decimal.Decimal
	CurrentValue decimal.Decimal
}

// Unrealized is the paper gain of currently held shares.
func (p DatedPerformance) Unrealized() decimal.Decimal {
	return p.CurrentValue.Sub(p.Invested)
}

type DatedQuote struct {
	Ticker string          `json:"ticker"`
	Date   time.Time       `json:"date"`
	Price  decimal.Decimal `json:"price"`
}
