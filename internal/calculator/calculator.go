package calculator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/shopspring/decimal"
)

type QuoteSource interface {
	GetHistoricalPrices(ctx context.Context, ticker string) ([]model.DatedQuote, error)
}

// Calculator turns buy/sell transactions and historical quotes into a daily performance series.
//
// Sells are trusted: the calculator doesn't check that sold shares are actually held on that day.
// Validation belongs to whoever creates transactions. Fed an oversell, the ticker's quantity and
// cost basis go negative and the series carries that state forward without an error.
type Calculator struct {
	quotes QuoteSource
}

func New(quotes QuoteSource) *Calculator {
	return &Calculator{quotes: quotes}
}

// Calculate fetches the history of every ticker referenced by txs and computes the series over [start, end].
func (c *Calculator) Calculate(ctx context.Context, txs []model.Transaction, start, end time.Time) ([]model.DatedPerformance, error) {
	if len(txs) == 0 || utils.Day(end).Before(utils.Day(start)) {
		return []model.DatedPerformance{}, nil
	}

	quotes, err := c.FetchQuotes(ctx, txs, nil)
	if err != nil {
		return nil, err
	}

	return ComputeSeries(txs, start, end, quotes), nil
}

// FetchQuotes fetches histories for tickers of txs that are missing in known and adds them to it.
// A nil known map is allocated. Errors from the quote source are returned as is.
func (c *Calculator) FetchQuotes(ctx context.Context, txs []model.Transaction, known map[string][]model.DatedQuote) (map[string][]model.DatedQuote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Calculator.FetchQuotes"

	if known == nil {
		known = make(map[string][]model.DatedQuote)
	}

	for _, ticker := range tickersOf(txs) {
		if _, ok := known[ticker]; ok {
			continue
		}

		quotes, err := c.quotes.GetHistoricalPrices(ctx, ticker)
		if err != nil {
			slog.Error("got error from quotes.GetHistoricalPrices", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker), slog.String("err", err.Error()))
			return nil, err
		}
		known[ticker] = quotes
	}

	return known, nil
}

// position is the average-cost state of one ticker.
type position struct {
	quantity decimal.Decimal
	invested decimal.Decimal
	price    decimal.Decimal
	hasPrice bool
}

type sweepState struct {
	positions    map[string]*position
	invested     decimal.Decimal
	realized     decimal.Decimal
	currentValue decimal.Decimal
}

func (s *sweepState) position(ticker string) *position {
	p, ok := s.positions[ticker]
	if !ok {
		p = &position{}
		s.positions[ticker] = p
	}
	return p
}

// apply books tx and returns the signed change of held shares.
func (s *sweepState) apply(tx model.Transaction) decimal.Decimal {
	p := s.position(tx.Ticker)

	switch tx.Type {
	case model.TransactionBuy:
		cost := tx.Amount().Add(tx.Fees)
		p.quantity = p.quantity.Add(tx.Shares)
		p.invested = p.invested.Add(cost)
		s.invested = s.invested.Add(cost)
		return tx.Shares

	case model.TransactionSell:
		// доля вложений по средней цене до продажи; делим один раз после умножения,
		// полная продажа списывает вложения целиком
		costBasis := decimal.Zero
		switch {
		case p.quantity.IsZero():
		case tx.Shares.Equal(p.quantity):
			costBasis = p.invested
		default:
			costBasis = p.invested.Mul(tx.Shares).Div(p.quantity)
		}
		proceeds := tx.Amount().Sub(tx.Fees)

		p.quantity = p.quantity.Sub(tx.Shares)
		p.invested = p.invested.Sub(costBasis)
		s.invested = s.invested.Sub(costBasis)
		s.realized = s.realized.Add(proceeds.Sub(costBasis))
		return tx.Shares.Neg()
	}

	return decimal.Zero
}

type priceEvent struct {
	ticker string
	price  decimal.Decimal
}

// ComputeSeries returns one DatedPerformance per calendar day of [start, end], ascending.
// It is empty when txs is empty or end is before start. quotesByTicker holds each ticker's
// sparse history; tickers without history keep invested/realized but never add value.
func ComputeSeries(txs []model.Transaction, start, end time.Time, quotesByTicker map[string][]model.DatedQuote) []model.DatedPerformance {
	start, end = utils.Day(start), utils.Day(end)
	if len(txs) == 0 || end.Before(start) {
		return []model.DatedPerformance{}
	}

	sorted := make([]model.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utils.Day(sorted[i].Date).Before(utils.Day(sorted[j].Date))
	})

	state := &sweepState{positions: make(map[string]*position)}

	// baseline prices and quote-change events inside (start, end]
	events := make(map[time.Time][]priceEvent)
	for _, ticker := range tickersOf(sorted) {
		var baselineDay time.Time
		for _, q := range quotesByTicker[ticker] {
			day := utils.Day(q.Date)
			switch {
			case !day.After(start):
				if p := state.position(ticker); !p.hasPrice || !day.Before(baselineDay) {
					p.price, p.hasPrice, baselineDay = q.Price, true, day
				}
			case !day.After(end):
				events[day] = append(events[day], priceEvent{ticker: ticker, price: q.Price})
			}
		}
	}

	// replay everything up to and including start
	next := 0
	for ; next < len(sorted) && !utils.Day(sorted[next].Date).After(start); next++ {
		state.apply(sorted[next])
	}
	for _, p := range state.positions {
		if p.hasPrice {
			state.currentValue = state.currentValue.Add(p.quantity.Mul(p.price))
		}
	}

	series := make([]model.DatedPerformance, 0, utils.DaysBetween(start, end))
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.After(start) {
			for ; next < len(sorted) && utils.Day(sorted[next].Date).Equal(day); next++ {
				delta := state.apply(sorted[next])
				if p := state.positions[sorted[next].Ticker]; p.hasPrice {
					state.currentValue = state.currentValue.Add(delta.Mul(p.price))
				}
			}

			for _, ev := range events[day] {
				p := state.position(ev.ticker)
				if !p.quantity.IsZero() {
					if p.hasPrice {
						state.currentValue = state.currentValue.Add(p.quantity.Mul(ev.price.Sub(p.price)))
					} else {
						state.currentValue = state.currentValue.Add(p.quantity.Mul(ev.price))
					}
				}
				p.price, p.hasPrice = ev.price, true
			}
		}

		series = append(series, model.DatedPerformance{
			Date:         day,
			Invested:     state.invested,
			Realized:     state.realized,
			CurrentValue: state.currentValue,
		})
	}

	return series
}

func tickersOf(txs []model.Transaction) []string {
	seen := make(map[string]struct{}, len(txs))
	tickers := make([]string, 0, len(txs))
	for _, tx := range txs {
		if _, ok := seen[tx.Ticker]; ok {
			continue
		}
		seen[tx.Ticker] = struct{}{}
		tickers = append(tickers, tx.Ticker)
	}
	sort.Strings(tickers)
	return tickers
}
