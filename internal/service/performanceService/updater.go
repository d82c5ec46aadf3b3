package performanceService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/invest_performance/internal/calculator"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/jonboulle/clockwork"
)

type SeriesStore interface {
	ReplaceSeries(ctx context.Context, ownerID int64, series []model.DatedPerformance) error
	ReplaceSeriesFrom(ctx context.Context, ownerID int64, from time.Time, series []model.DatedPerformance) error
	UpsertSeries(ctx context.Context, ownerID int64, series []model.DatedPerformance) error
	GetSeries(ctx context.Context, ownerID int64, from, to *time.Time) ([]model.DatedPerformance, error)
	DeleteSeries(ctx context.Context, ownerID int64) error
	DeleteSeriesFrom(ctx context.Context, ownerID int64, from time.Time) error
}

type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, txs []model.Transaction, known map[string][]model.DatedQuote) (map[string][]model.DatedQuote, error)
}

type Repository interface {
	GetUserIDs(ctx context.Context) ([]int64, error)
	GetUserPortfolioIDs(ctx context.Context, userID int64) ([]int64, error)
	GetUserAccounts(ctx context.Context, userID int64) ([]model.BrokerageAccount, error)
	GetBrokerageAccountIDs(ctx context.Context, brokerageID int64) ([]int64, error)
	GetAccount(ctx context.Context, accountID int64) (model.BrokerageAccount, error)
	GetPortfolioTransactions(ctx context.Context, portfolioID int64) ([]model.Transaction, error)
	GetAccountTransactions(ctx context.Context, accountID int64) ([]model.Transaction, error)
}

// Updater keeps the stored series of portfolios or brokerage accounts in line with their transactions.
// Both kinds run the calculator the same way and differ only in the transactions and the store used.
type Updater struct {
	kind       model.OwnerKind
	repo       Repository
	store      SeriesStore
	quotes     QuoteFetcher
	clock      clockwork.Clock
	loadTxs    func(ctx context.Context, ownerID int64) ([]model.Transaction, error)
	listOwners func(ctx context.Context, userID int64) ([]int64, error)
}

func NewPortfolioUpdater(repo Repository, store SeriesStore, quotes QuoteFetcher, clock clockwork.Clock) *Updater {
	return &Updater{
		kind:       model.OwnerPortfolio,
		repo:       repo,
		store:      store,
		quotes:     quotes,
		clock:      clock,
		loadTxs:    repo.GetPortfolioTransactions,
		listOwners: repo.GetUserPortfolioIDs,
	}
}

func NewAccountUpdater(repo Repository, store SeriesStore, quotes QuoteFetcher, clock clockwork.Clock) *Updater {
	return &Updater{
		kind:    model.OwnerAccount,
		repo:    repo,
		store:   store,
		quotes:  quotes,
		clock:   clock,
		loadTxs: repo.GetAccountTransactions,
		listOwners: func(ctx context.Context, userID int64) ([]int64, error) {
			accounts, err := repo.GetUserAccounts(ctx, userID)
			if err != nil {
				return nil, err
			}
			ids := make([]int64, 0, len(accounts))
			for _, account := range accounts {
				ids = append(ids, account.AccountID)
			}
			return ids, nil
		},
	}
}

func (u *Updater) op(method string) string {
	return fmt.Sprintf("Updater(%s).%s", u.kind, method)
}

// RecalculateFull recomputes the owner's series from its earliest transaction to today and replaces the stored one.
func (u *Updater) RecalculateFull(ctx context.Context, ownerID int64) error {
	return u.recalculateFull(ctx, ownerID, nil)
}

func (u *Updater) recalculateFull(ctx context.Context, ownerID int64, quotes map[string][]model.DatedQuote) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := u.op("RecalculateFull")

	slog.Debug("RecalculateFull start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID))
	defer func() {
		if err != nil {
			slog.Error("RecalculateFull failed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID), slog.String("err", err.Error()))
		} else {
			slog.Debug("RecalculateFull completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID))
		}
	}()

	txs, err := u.loadTxs(ctx, ownerID)
	if err != nil {
		return err
	}

	if len(txs) == 0 {
		return u.store.DeleteSeries(ctx, ownerID)
	}

	quotes, err = u.quotes.FetchQuotes(ctx, txs, quotes)
	if err != nil {
		return err
	}

	series := calculator.ComputeSeries(txs, earliestDate(txs), utils.Day(u.clock.Now()), quotes)

	return u.store.ReplaceSeries(ctx, ownerID, series)
}

// RecalculateFrom recomputes the series from cutoff to today. Earlier transactions still seed the state,
// only rows dated cutoff or later are written.
func (u *Updater) RecalculateFrom(ctx context.Context, ownerID int64, cutoff time.Time) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := u.op("RecalculateFrom")
	cutoff = utils.Day(cutoff)
	today := utils.Day(u.clock.Now())

	slog.Debug("RecalculateFrom start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID), slog.Time("cutoff", cutoff))
	defer func() {
		if err != nil {
			slog.Error("RecalculateFrom failed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID), slog.String("err", err.Error()))
		} else {
			slog.Debug("RecalculateFrom completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("ownerID", ownerID))
		}
	}()

	if cutoff.After(today) {
		slog.Info("cutoff is in the future, nothing to recalculate", slog.String("rqID", rqID), slog.String("op", op), slog.Time("cutoff", cutoff))
		return nil
	}

	txs, err := u.loadTxs(ctx, ownerID)
	if err != nil {
		return err
	}

	if len(txs) == 0 {
		return u.store.DeleteSeries(ctx, ownerID)
	}

	quotes, err := u.quotes.FetchQuotes(ctx, txs, nil)
	if err != nil {
		return err
	}

	// первая сделка позже cutoff (например удалили самую раннюю) - старые строки между ними надо убрать
	if earliest := earliestDate(txs); earliest.After(cutoff) {
		series := calculator.ComputeSeries(txs, earliest, today, quotes)
		return u.store.ReplaceSeriesFrom(ctx, ownerID, cutoff, series)
	}

	series := calculator.ComputeSeries(txs, cutoff, today, quotes)

	return u.store.UpsertSeries(ctx, ownerID, series)
}

// UpdateUser fully recalculates every owner of the user. quotes is shared between owners and filled on the way.
// A failed owner doesn't stop the others, all failures are joined.
func (u *Updater) UpdateUser(ctx context.Context, userID int64, quotes map[string][]model.DatedQuote) error {
	ownerIDs, err := u.listOwners(ctx, userID)
	if err != nil {
		return fmt.Errorf("list %s owners of user %d: %w", u.kind, userID, err)
	}

	if quotes == nil {
		quotes = make(map[string][]model.DatedQuote)
	}

	var errs []error
	for _, ownerID := range ownerIDs {
		if err = u.recalculateFull(ctx, ownerID, quotes); err != nil {
			errs = append(errs, fmt.Errorf("recalculate %s %d: %w", u.kind, ownerID, err))
		}
	}

	return errors.Join(errs...)
}

// UpdateAll walks all users one by one.
func (u *Updater) UpdateAll(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := u.op("UpdateAll")

	userIDs, err := u.repo.GetUserIDs(ctx)
	if err != nil {
		return err
	}

	slog.Info("UpdateAll start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("users", len(userIDs)))

	var errs []error
	for _, userID := range userIDs {
		if err = u.UpdateUser(ctx, userID, nil); err != nil {
			errs = append(errs, err)
		}
	}

	slog.Info("UpdateAll finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int("failed users", len(errs)))

	return errors.Join(errs...)
}

func earliestDate(txs []model.Transaction) time.Time {
	earliest := utils.Day(txs[0].Date)
	for _, tx := range txs[1:] {
		if d := utils.Day(tx.Date); d.Before(earliest) {
			earliest = d
		}
	}
	return earliest
}
