package journalService

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/data/repository"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/service"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chatID      = int64(100)
	otherChatID = int64(200)
	userID      = int64(1)
	otherUserID = int64(2)
)

type fakeRepo struct {
	users      map[int64]int64
	portfolios map[int64]model.Portfolio
	brokerages map[int64]model.Brokerage
	accounts   map[int64]model.BrokerageAccount
	txs        []model.Transaction
	nextID     int64
	rolledBack int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:      map[int64]int64{chatID: userID, otherChatID: otherUserID},
		portfolios: map[int64]model.Portfolio{10: {PortfolioID: 10, UserID: userID, Name: "Основной"}, 20: {PortfolioID: 20, UserID: otherUserID, Name: "Чужой"}},
		brokerages: map[int64]model.Brokerage{30: {BrokerageID: 30, UserID: userID, Name: "Брокер"}},
		accounts:   map[int64]model.BrokerageAccount{40: {AccountID: 40, BrokerageID: 30, UserID: userID, Name: "ИИС"}},
		nextID:     1000,
	}
}

func (r *fakeRepo) WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error {
	snapshot := append([]model.Transaction(nil), r.txs...)
	if err := tFunc(ctx); err != nil {
		r.txs = snapshot
		r.rolledBack++
		return err
	}
	return nil
}

func (r *fakeRepo) RegUser(_ context.Context, chatID int64) (int64, error) {
	if _, ok := r.users[chatID]; ok {
		return 0, repository.ErrAlreadyExists
	}
	r.nextID++
	r.users[chatID] = r.nextID
	return r.nextID, nil
}

func (r *fakeRepo) GetUserID(_ context.Context, chatID int64) (int64, error) {
	id, ok := r.users[chatID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func (r *fakeRepo) CreatePortfolio(_ context.Context, name string, userID int64) (int64, error) {
	r.nextID++
	r.portfolios[r.nextID] = model.Portfolio{PortfolioID: r.nextID, UserID: userID, Name: name}
	return r.nextID, nil
}

func (r *fakeRepo) GetPortfolio(_ context.Context, portfolioID int64) (model.Portfolio, error) {
	p, ok := r.portfolios[portfolioID]
	if !ok {
		return model.Portfolio{}, repository.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) CreateBrokerage(_ context.Context, name string, userID int64) (int64, error) {
	r.nextID++
	r.brokerages[r.nextID] = model.Brokerage{BrokerageID: r.nextID, UserID: userID, Name: name}
	return r.nextID, nil
}

func (r *fakeRepo) GetBrokerage(_ context.Context, brokerageID int64) (model.Brokerage, error) {
	b, ok := r.brokerages[brokerageID]
	if !ok {
		return model.Brokerage{}, repository.ErrNotFound
	}
	return b, nil
}

func (r *fakeRepo) CreateAccount(_ context.Context, name string, brokerageID, userID int64) (int64, error) {
	r.nextID++
	r.accounts[r.nextID] = model.BrokerageAccount{AccountID: r.nextID, BrokerageID: brokerageID, UserID: userID, Name: name}
	return r.nextID, nil
}

func (r *fakeRepo) GetAccount(_ context.Context, accountID int64) (model.BrokerageAccount, error) {
	a, ok := r.accounts[accountID]
	if !ok {
		return model.BrokerageAccount{}, repository.ErrNotFound
	}
	return a, nil
}

func (r *fakeRepo) InsertTransaction(_ context.Context, tx model.Transaction) (int64, error) {
	r.nextID++
	tx.TransactionID = r.nextID
	r.txs = append(r.txs, tx)
	return r.nextID, nil
}

func (r *fakeRepo) GetTransaction(_ context.Context, transactionID int64) (model.Transaction, error) {
	for _, tx := range r.txs {
		if tx.TransactionID == transactionID {
			return tx, nil
		}
	}
	return model.Transaction{}, repository.ErrNotFound
}

func (r *fakeRepo) DeleteTransaction(_ context.Context, transactionID int64) error {
	for i, tx := range r.txs {
		if tx.TransactionID == transactionID {
			r.txs = append(r.txs[:i:i], r.txs[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeRepo) GetPortfolioTickerTransactions(_ context.Context, portfolioID int64, ticker string) ([]model.Transaction, error) {
	res := make([]model.Transaction, 0)
	for _, tx := range r.txs {
		if tx.PortfolioID == portfolioID && tx.Ticker == ticker {
			res = append(res, tx)
		}
	}
	return res, nil
}

func (r *fakeRepo) GetAccountTickerTransactions(_ context.Context, accountID int64, ticker string) ([]model.Transaction, error) {
	res := make([]model.Transaction, 0)
	for _, tx := range r.txs {
		if tx.AccountID != nil && *tx.AccountID == accountID && tx.Ticker == ticker {
			res = append(res, tx)
		}
	}
	return res, nil
}

type fakeCascade struct {
	created []model.Transaction
	deleted []model.Transaction
	err     error
}

func (c *fakeCascade) OnTransactionCreated(_ context.Context, tx model.Transaction) error {
	c.created = append(c.created, tx)
	return c.err
}

func (c *fakeCascade) OnTransactionDeleted(_ context.Context, tx model.Transaction) error {
	c.deleted = append(c.deleted, tx)
	return c.err
}

type fakeSeries struct {
	series []model.DatedPerformance
}

func (f fakeSeries) GetSeries(_ context.Context, _ int64, _, _ *time.Time) ([]model.DatedPerformance, error) {
	return f.series, nil
}

type fakeGenerator struct {
	size int
}

func (g fakeGenerator) Generate(_ context.Context, _ []model.PerformanceReport) ([]byte, string, error) {
	return make([]byte, g.size), ".xlsx", nil
}

type fakeCloud struct {
	uploaded []string
}

func (c *fakeCloud) UploadFile(_ context.Context, _ io.Reader, filename string) (string, error) {
	c.uploaded = append(c.uploaded, filename)
	return "https://drive.test/" + filename, nil
}

func (c *fakeCloud) DeleteOldFiles(_ context.Context) error {
	return nil
}

var today = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newService(repo *fakeRepo, cascade *fakeCascade, gen fakeGenerator, cloud *fakeCloud, fileLimit int) *JournalService {
	cfg := &config.Config{}
	cfg.Telegram.FileLimitInBytes = fileLimit
	series := map[model.OwnerKind]SeriesReader{
		model.OwnerPortfolio: fakeSeries{series: []model.DatedPerformance{{Date: today, Invested: decimal.NewFromInt(1)}}},
		model.OwnerAccount:   fakeSeries{},
		model.OwnerBrokerage: fakeSeries{},
	}
	return New(cfg, repo, cascade, series, gen, cloud, clockwork.NewFakeClockAt(today))
}

func trade(txType model.TransactionType, d int, shares string) model.Transaction {
	return model.Transaction{
		PortfolioID:   10,
		Type:          txType,
		Date:          time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC),
		Ticker:        "sber",
		Shares:        decimal.RequireFromString(shares),
		PricePerShare: decimal.NewFromInt(100),
		Fees:          decimal.Zero,
	}
}

func TestAddTransaction(t *testing.T) {
	repo, cascade := newFakeRepo(), &fakeCascade{}
	s := newService(repo, cascade, fakeGenerator{}, &fakeCloud{}, 0)

	created, err := s.AddTransaction(context.Background(), chatID, trade(model.TransactionBuy, 10, "5"))

	require.NoError(t, err)
	assert.NotZero(t, created.TransactionID)
	assert.Equal(t, "SBER", created.Ticker)
	require.Len(t, cascade.created, 1)
	assert.Equal(t, created, cascade.created[0])
	assert.Len(t, repo.txs, 1)
}

func TestAddTransaction_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(tx *model.Transaction)
	}{
		{name: "zero shares", modify: func(tx *model.Transaction) { tx.Shares = decimal.Zero }},
		{name: "negative price", modify: func(tx *model.Transaction) { tx.PricePerShare = decimal.NewFromInt(-1) }},
		{name: "negative fees", modify: func(tx *model.Transaction) { tx.Fees = decimal.NewFromInt(-1) }},
		{name: "unknown type", modify: func(tx *model.Transaction) { tx.Type = "dividend" }},
		{name: "empty ticker", modify: func(tx *model.Transaction) { tx.Ticker = " " }},
		{name: "future date", modify: func(tx *model.Transaction) { tx.Date = today.AddDate(0, 0, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cascade := newFakeRepo(), &fakeCascade{}
			s := newService(repo, cascade, fakeGenerator{}, &fakeCloud{}, 0)

			tx := trade(model.TransactionBuy, 10, "5")
			tt.modify(&tx)
			_, err := s.AddTransaction(context.Background(), chatID, tx)

			assert.ErrorIs(t, err, service.ErrInvalidTransaction)
			assert.Empty(t, repo.txs)
			assert.Empty(t, cascade.created)
		})
	}
}

func TestAddTransaction_SellExceedingHoldings(t *testing.T) {
	repo, cascade := newFakeRepo(), &fakeCascade{}
	s := newService(repo, cascade, fakeGenerator{}, &fakeCloud{}, 0)

	_, err := s.AddTransaction(context.Background(), chatID, trade(model.TransactionBuy, 10, "5"))
	require.NoError(t, err)

	_, err = s.AddTransaction(context.Background(), chatID, trade(model.TransactionSell, 9, "1"))
	assert.ErrorIs(t, err, service.ErrInvalidTransaction)

	_, err = s.AddTransaction(context.Background(), chatID, trade(model.TransactionSell, 11, "6"))
	assert.ErrorIs(t, err, service.ErrInvalidTransaction)

	_, err = s.AddTransaction(context.Background(), chatID, trade(model.TransactionSell, 10, "5"))
	assert.NoError(t, err)
	assert.Len(t, repo.txs, 2)
}

func onAccount(tx model.Transaction, accountID int64) model.Transaction {
	tx.AccountID = &accountID
	return tx
}

func TestAddTransaction_SellExceedingAccountHoldings(t *testing.T) {
	repo, cascade := newFakeRepo(), &fakeCascade{}
	s := newService(repo, cascade, fakeGenerator{}, &fakeCloud{}, 0)

	// бумаги куплены вне счета, в портфеле их хватает
	_, err := s.AddTransaction(context.Background(), chatID, trade(model.TransactionBuy, 10, "5"))
	require.NoError(t, err)

	_, err = s.AddTransaction(context.Background(), chatID, onAccount(trade(model.TransactionSell, 11, "5"), 40))
	assert.ErrorIs(t, err, service.ErrInvalidTransaction)
	assert.Len(t, repo.txs, 1)

	_, err = s.AddTransaction(context.Background(), chatID, onAccount(trade(model.TransactionBuy, 11, "2"), 40))
	require.NoError(t, err)

	_, err = s.AddTransaction(context.Background(), chatID, onAccount(trade(model.TransactionSell, 12, "3"), 40))
	assert.ErrorIs(t, err, service.ErrInvalidTransaction)

	_, err = s.AddTransaction(context.Background(), chatID, onAccount(trade(model.TransactionSell, 12, "2"), 40))
	assert.NoError(t, err)
	assert.Len(t, repo.txs, 3)
	assert.Len(t, cascade.created, 3)
}

func TestAddTransaction_ForeignPortfolio(t *testing.T) {
	repo := newFakeRepo()
	s := newService(repo, &fakeCascade{}, fakeGenerator{}, &fakeCloud{}, 0)

	tx := trade(model.TransactionBuy, 10, "5")
	tx.PortfolioID = 20
	_, err := s.AddTransaction(context.Background(), chatID, tx)
	assert.ErrorIs(t, err, service.ErrForbidden)

	tx.PortfolioID = 99
	_, err = s.AddTransaction(context.Background(), chatID, tx)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestAddTransaction_CascadeFailureRollsBack(t *testing.T) {
	errCascade := errors.New("quotes are unavailable")
	repo, cascade := newFakeRepo(), &fakeCascade{err: errCascade}
	s := newService(repo, cascade, fakeGenerator{}, &fakeCloud{}, 0)

	_, err := s.AddTransaction(context.Background(), chatID, trade(model.TransactionBuy, 10, "5"))

	assert.ErrorIs(t, err, errCascade)
	assert.Empty(t, repo.txs)
	assert.Equal(t, 1, repo.rolledBack)
}

func TestDeleteTransaction(t *testing.T) {
	repo, cascade := newFakeRepo(), &fakeCascade{}
	s := newService(repo, cascade, fakeGenerator{}, &fakeCloud{}, 0)

	buyTx, err := s.AddTransaction(context.Background(), chatID, trade(model.TransactionBuy, 10, "5"))
	require.NoError(t, err)
	sellTx, err := s.AddTransaction(context.Background(), chatID, trade(model.TransactionSell, 12, "2"))
	require.NoError(t, err)

	// продажа осталась бы без покупки
	err = s.DeleteTransaction(context.Background(), chatID, buyTx.TransactionID)
	assert.ErrorIs(t, err, service.ErrInvalidTransaction)

	err = s.DeleteTransaction(context.Background(), otherChatID, sellTx.TransactionID)
	assert.ErrorIs(t, err, service.ErrForbidden)

	require.NoError(t, s.DeleteTransaction(context.Background(), chatID, sellTx.TransactionID))
	require.NoError(t, s.DeleteTransaction(context.Background(), chatID, buyTx.TransactionID))
	assert.Empty(t, repo.txs)
	assert.Len(t, cascade.deleted, 2)

	err = s.DeleteTransaction(context.Background(), chatID, buyTx.TransactionID)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestDeleteTransaction_AccountBuyBackingAccountSell(t *testing.T) {
	repo, cascade := newFakeRepo(), &fakeCascade{}
	s := newService(repo, cascade, fakeGenerator{}, &fakeCloud{}, 0)

	_, err := s.AddTransaction(context.Background(), chatID, trade(model.TransactionBuy, 9, "10"))
	require.NoError(t, err)
	accountBuy, err := s.AddTransaction(context.Background(), chatID, onAccount(trade(model.TransactionBuy, 10, "5"), 40))
	require.NoError(t, err)
	_, err = s.AddTransaction(context.Background(), chatID, onAccount(trade(model.TransactionSell, 12, "5"), 40))
	require.NoError(t, err)

	// портфелю бумаг хватает, счету нет
	err = s.DeleteTransaction(context.Background(), chatID, accountBuy.TransactionID)
	assert.ErrorIs(t, err, service.ErrInvalidTransaction)
	assert.Len(t, repo.txs, 3)
	assert.Empty(t, cascade.deleted)
}

func TestCreateAccount_ForeignBrokerage(t *testing.T) {
	repo := newFakeRepo()
	s := newService(repo, &fakeCascade{}, fakeGenerator{}, &fakeCloud{}, 0)

	_, err := s.CreateAccount(context.Background(), otherChatID, 30, "счет")
	assert.ErrorIs(t, err, service.ErrForbidden)

	accountID, err := s.CreateAccount(context.Background(), chatID, 30, "счет")
	require.NoError(t, err)
	assert.Equal(t, int64(30), repo.accounts[accountID].BrokerageID)
}

func TestRegUser_Twice(t *testing.T) {
	s := newService(newFakeRepo(), &fakeCascade{}, fakeGenerator{}, &fakeCloud{}, 0)

	assert.NoError(t, s.RegUser(context.Background(), 300))
	assert.NoError(t, s.RegUser(context.Background(), 300))
}

func TestGetPerformance(t *testing.T) {
	s := newService(newFakeRepo(), &fakeCascade{}, fakeGenerator{}, &fakeCloud{}, 0)

	report, err := s.GetPerformance(context.Background(), chatID, model.OwnerPortfolio, 10, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Основной", report.OwnerName)
	assert.Len(t, report.Series, 1)

	_, err = s.GetPerformance(context.Background(), otherChatID, model.OwnerAccount, 40, nil, nil)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = s.GetPerformance(context.Background(), chatID, "stock", 10, nil, nil)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestExportReport(t *testing.T) {
	cloud := &fakeCloud{}
	s := newService(newFakeRepo(), &fakeCascade{}, fakeGenerator{size: 10}, cloud, 100)

	file, err := s.ExportReport(context.Background(), chatID, model.OwnerPortfolio, 10)
	require.NoError(t, err)
	assert.Equal(t, "portfolio_10_2024-03-15.xlsx", file.Name)
	assert.Len(t, file.Bytes, 10)
	assert.Empty(t, file.Link)
	assert.Empty(t, cloud.uploaded)
}

func TestExportReport_TooLargeIsUploaded(t *testing.T) {
	cloud := &fakeCloud{}
	s := newService(newFakeRepo(), &fakeCascade{}, fakeGenerator{size: 101}, cloud, 100)

	file, err := s.ExportReport(context.Background(), chatID, model.OwnerPortfolio, 10)
	require.NoError(t, err)
	assert.Empty(t, file.Bytes)
	assert.Equal(t, "https://drive.test/portfolio_10_2024-03-15.xlsx", file.Link)
	assert.Equal(t, []string{"portfolio_10_2024-03-15.xlsx"}, cloud.uploaded)
}
