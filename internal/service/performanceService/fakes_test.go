package performanceService

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KotFed0t/invest_performance/data/repository"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/shopspring/decimal"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buy(id int64, d int, portfolioID int64, accountID *int64, ticker, shares, price, fees string) model.Transaction {
	return model.Transaction{
		TransactionID: id,
		PortfolioID:   portfolioID,
		AccountID:     accountID,
		Type:          model.TransactionBuy,
		Date:          day(d),
		Ticker:        ticker,
		Shares:        dec(shares),
		PricePerShare: dec(price),
		Fees:          dec(fees),
	}
}

func ptr(v int64) *int64 {
	return &v
}

type fakeStore struct {
	mu   sync.Mutex
	rows map[int64]map[time.Time]model.DatedPerformance
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[int64]map[time.Time]model.DatedPerformance)}
}

func (s *fakeStore) put(ownerID int64, series []model.DatedPerformance) {
	if s.rows[ownerID] == nil {
		s.rows[ownerID] = make(map[time.Time]model.DatedPerformance)
	}
	for _, row := range series {
		s.rows[ownerID][utils.Day(row.Date)] = row
	}
}

func (s *fakeStore) deleteFrom(ownerID int64, from time.Time) {
	for d := range s.rows[ownerID] {
		if !d.Before(from) {
			delete(s.rows[ownerID], d)
		}
	}
}

func (s *fakeStore) ReplaceSeries(_ context.Context, ownerID int64, series []model.DatedPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, ownerID)
	s.put(ownerID, series)
	return nil
}

func (s *fakeStore) ReplaceSeriesFrom(_ context.Context, ownerID int64, from time.Time, series []model.DatedPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteFrom(ownerID, utils.Day(from))
	s.put(ownerID, series)
	return nil
}

func (s *fakeStore) UpsertSeries(_ context.Context, ownerID int64, series []model.DatedPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(ownerID, series)
	return nil
}

func (s *fakeStore) GetSeries(_ context.Context, ownerID int64, from, to *time.Time) ([]model.DatedPerformance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := make([]model.DatedPerformance, 0)
	for d, row := range s.rows[ownerID] {
		if from != nil && d.Before(utils.Day(*from)) {
			continue
		}
		if to != nil && d.After(utils.Day(*to)) {
			continue
		}
		series = append(series, row)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series, nil
}

func (s *fakeStore) DeleteSeries(_ context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, ownerID)
	return nil
}

func (s *fakeStore) DeleteSeriesFrom(_ context.Context, ownerID int64, from time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteFrom(ownerID, utils.Day(from))
	return nil
}

func (s *fakeStore) series(ownerID int64) []model.DatedPerformance {
	series, _ := s.GetSeries(context.Background(), ownerID, nil, nil)
	return series
}

type fakeRepo struct {
	users      []int64
	portfolios map[int64][]int64
	accounts   []model.BrokerageAccount
	txs        []model.Transaction
}

func (r *fakeRepo) GetUserIDs(_ context.Context) ([]int64, error) {
	return r.users, nil
}

func (r *fakeRepo) GetUserPortfolioIDs(_ context.Context, userID int64) ([]int64, error) {
	return r.portfolios[userID], nil
}

func (r *fakeRepo) GetUserAccounts(_ context.Context, userID int64) ([]model.BrokerageAccount, error) {
	accounts := make([]model.BrokerageAccount, 0)
	for _, account := range r.accounts {
		if account.UserID == userID {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

func (r *fakeRepo) GetBrokerageAccountIDs(_ context.Context, brokerageID int64) ([]int64, error) {
	ids := make([]int64, 0)
	for _, account := range r.accounts {
		if account.BrokerageID == brokerageID {
			ids = append(ids, account.AccountID)
		}
	}
	return ids, nil
}

func (r *fakeRepo) GetAccount(_ context.Context, accountID int64) (model.BrokerageAccount, error) {
	for _, account := range r.accounts {
		if account.AccountID == accountID {
			return account, nil
		}
	}
	return model.BrokerageAccount{}, repository.ErrNotFound
}

func (r *fakeRepo) GetPortfolioTransactions(_ context.Context, portfolioID int64) ([]model.Transaction, error) {
	txs := make([]model.Transaction, 0)
	for _, tx := range r.txs {
		if tx.PortfolioID == portfolioID {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (r *fakeRepo) GetAccountTransactions(_ context.Context, accountID int64) ([]model.Transaction, error) {
	txs := make([]model.Transaction, 0)
	for _, tx := range r.txs {
		if tx.AccountID != nil && *tx.AccountID == accountID {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (r *fakeRepo) deleteTx(transactionID int64) {
	txs := r.txs[:0]
	for _, tx := range r.txs {
		if tx.TransactionID != transactionID {
			txs = append(txs, tx)
		}
	}
	r.txs = txs
}

type fakeQuoteSource struct {
	mu     sync.Mutex
	quotes map[string][]model.DatedQuote
	failOn map[string]error
}

func (f *fakeQuoteSource) GetHistoricalPrices(_ context.Context, ticker string) ([]model.DatedQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[ticker]; ok {
		return nil, err
	}
	return f.quotes[ticker], nil
}

type recalcCall struct {
	kind    string
	ownerID int64
	cutoff  time.Time
}

type recordingUpdater struct {
	kind  string
	calls *[]recalcCall
	err   error
}

func (u recordingUpdater) RecalculateFrom(_ context.Context, ownerID int64, cutoff time.Time) error {
	*u.calls = append(*u.calls, recalcCall{kind: u.kind, ownerID: ownerID, cutoff: cutoff})
	return u.err
}
