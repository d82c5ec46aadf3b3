package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

func (t TransactionType) Valid() bool {
	return t == TransactionBuy || t == TransactionSell
}

// Transaction is one executed trade. AccountID is nil when the trade isn't linked to a brokerage account.
type Transaction struct {
	TransactionID int64
	PortfolioID   int64
	AccountID     *int64
	Type          TransactionType
	Date          time.Time
	Ticker        string
	Shares        decimal.Decimal
	PricePerShare decimal.Decimal
	Fees          decimal.Decimal
}

// Amount is shares * price, without fees.
func (t Transaction) Amount() decimal.Decimal {
	return t.Shares.Mul(t.PricePerShare)
}
