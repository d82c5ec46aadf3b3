package performanceService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// BrokerageUpdater builds a brokerage's series as the day by day sum of its accounts' stored series.
// Transactions are never read here, so account series must be up to date before it runs.
type BrokerageUpdater struct {
	repo         Repository
	accountStore SeriesStore
	store        SeriesStore
	clock        clockwork.Clock
	concurrency  int
}

func NewBrokerageUpdater(cfg *config.Config, repo Repository, accountStore, store SeriesStore, clock clockwork.Clock) *BrokerageUpdater {
	return &BrokerageUpdater{
		repo:         repo,
		accountStore: accountStore,
		store:        store,
		clock:        clock,
		concurrency:  concurrencyLimit(cfg.Performance.BatchConcurrency),
	}
}

func (b *BrokerageUpdater) RecalculateFull(ctx context.Context, brokerageID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageUpdater.RecalculateFull"

	slog.Debug("RecalculateFull start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("brokerageID", brokerageID))
	defer func() {
		if err != nil {
			slog.Error("RecalculateFull failed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("brokerageID", brokerageID), slog.String("err", err.Error()))
		} else {
			slog.Debug("RecalculateFull completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("brokerageID", brokerageID))
		}
	}()

	accountIDs, err := b.repo.GetBrokerageAccountIDs(ctx, brokerageID)
	if err != nil {
		return err
	}

	if len(accountIDs) == 0 {
		return b.store.DeleteSeries(ctx, brokerageID)
	}

	series, err := b.sumAccounts(ctx, accountIDs, nil)
	if err != nil {
		return err
	}

	return b.store.ReplaceSeries(ctx, brokerageID, series)
}

// RecalculateFrom rewrites brokerage rows dated cutoff or later from the accounts' rows in the same range.
func (b *BrokerageUpdater) RecalculateFrom(ctx context.Context, brokerageID int64, cutoff time.Time) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageUpdater.RecalculateFrom"
	cutoff = utils.Day(cutoff)

	slog.Debug("RecalculateFrom start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("brokerageID", brokerageID), slog.Time("cutoff", cutoff))
	defer func() {
		if err != nil {
			slog.Error("RecalculateFrom failed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("brokerageID", brokerageID), slog.String("err", err.Error()))
		} else {
			slog.Debug("RecalculateFrom completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("brokerageID", brokerageID))
		}
	}()

	if cutoff.After(utils.Day(b.clock.Now())) {
		return nil
	}

	accountIDs, err := b.repo.GetBrokerageAccountIDs(ctx, brokerageID)
	if err != nil {
		return err
	}

	if len(accountIDs) == 0 {
		return b.store.DeleteSeries(ctx, brokerageID)
	}

	series, err := b.sumAccounts(ctx, accountIDs, &cutoff)
	if err != nil {
		return err
	}

	// у счетов не осталось строк после cutoff - проще пересобрать целиком
	if len(series) == 0 {
		slog.Info("no account rows after cutoff, fallback to full recalculation", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("brokerageID", brokerageID))
		return b.RecalculateFull(ctx, brokerageID)
	}

	return b.store.ReplaceSeriesFrom(ctx, brokerageID, cutoff, series)
}

// sumAccounts reads the accounts' series (from on, if set) and sums them over every day
// from the earliest row to today. An account without a row for a day contributes zero.
func (b *BrokerageUpdater) sumAccounts(ctx context.Context, accountIDs []int64, from *time.Time) ([]model.DatedPerformance, error) {
	byDay := make(map[time.Time]model.DatedPerformance)
	var earliest time.Time

	for _, accountID := range accountIDs {
		accountSeries, err := b.accountStore.GetSeries(ctx, accountID, from, nil)
		if err != nil {
			return nil, fmt.Errorf("get series of account %d: %w", accountID, err)
		}

		for _, row := range accountSeries {
			day := utils.Day(row.Date)
			if earliest.IsZero() || day.Before(earliest) {
				earliest = day
			}

			sum := byDay[day]
			sum.Invested = sum.Invested.Add(row.Invested)
			sum.Realized = sum.Realized.Add(row.Realized)
			sum.CurrentValue = sum.CurrentValue.Add(row.CurrentValue)
			byDay[day] = sum
		}
	}

	if earliest.IsZero() {
		return []model.DatedPerformance{}, nil
	}

	today := utils.Day(b.clock.Now())
	series := make([]model.DatedPerformance, 0, utils.DaysBetween(earliest, today))
	for day := earliest; !day.After(today); day = day.AddDate(0, 0, 1) {
		row := byDay[day]
		row.Date = day
		series = append(series, row)
	}

	return series, nil
}

// UpdateUser recalculates the user's brokerages one after another.
func (b *BrokerageUpdater) UpdateUser(ctx context.Context, userID int64) error {
	accounts, err := b.repo.GetUserAccounts(ctx, userID)
	if err != nil {
		return fmt.Errorf("list accounts of user %d: %w", userID, err)
	}

	var errs []error
	for _, brokerageID := range brokerageIDsOf(accounts) {
		if err = b.RecalculateFull(ctx, brokerageID); err != nil {
			errs = append(errs, fmt.Errorf("recalculate brokerage %d: %w", brokerageID, err))
		}
	}

	return errors.Join(errs...)
}

// UpdateAll runs UpdateUser for every user concurrently. A failed user doesn't cancel the others.
func (b *BrokerageUpdater) UpdateAll(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "BrokerageUpdater.UpdateAll"

	userIDs, err := b.repo.GetUserIDs(ctx)
	if err != nil {
		return err
	}

	slog.Info("UpdateAll start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("users", len(userIDs)))

	errs := make([]error, len(userIDs))
	g := errgroup.Group{}
	g.SetLimit(b.concurrency)
	for i, userID := range userIDs {
		g.Go(func() error {
			errs[i] = b.UpdateUser(ctx, userID)
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("UpdateAll finished", slog.String("rqID", rqID), slog.String("op", op))

	return errors.Join(errs...)
}

// brokerageIDsOf keeps the order of accounts, which come sorted by brokerage.
func brokerageIDsOf(accounts []model.BrokerageAccount) []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, account := range accounts {
		if _, ok := seen[account.BrokerageID]; ok {
			continue
		}
		seen[account.BrokerageID] = struct{}{}
		ids = append(ids, account.BrokerageID)
	}
	return ids
}

func concurrencyLimit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}
