package performanceService

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

type UserIDsGetter interface {
	GetUserIDs(ctx context.Context) ([]int64, error)
}

// Batch is the nightly full recalculation of every user's portfolios, accounts and brokerages.
type Batch struct {
	users       UserIDsGetter
	portfolios  *Updater
	accounts    *Updater
	brokerages  *BrokerageUpdater
	concurrency int
	clock       clockwork.Clock
}

func NewBatch(
	cfg *config.Config,
	users UserIDsGetter,
	portfolios, accounts *Updater,
	brokerages *BrokerageUpdater,
	clock clockwork.Clock,
) *Batch {
	return &Batch{
		users:       users,
		portfolios:  portfolios,
		accounts:    accounts,
		brokerages:  brokerages,
		concurrency: concurrencyLimit(cfg.Performance.BatchConcurrency),
		clock:       clock,
	}
}

// Run fans out one task per user and waits for all of them. Failed users don't stop the others,
// their errors are joined into the result.
func (b *Batch) Run(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Batch.Run"
	startedAt := b.clock.Now()

	userIDs, err := b.users.GetUserIDs(ctx)
	if err != nil {
		slog.Error("got error from users.GetUserIDs", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	slog.Info("Batch.Run start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("users", len(userIDs)))

	errs := make([]error, len(userIDs))
	g := errgroup.Group{}
	g.SetLimit(b.concurrency)
	for i, userID := range userIDs {
		g.Go(func() error {
			errs[i] = b.runUser(ctx, userID)
			return nil
		})
	}
	_ = g.Wait()

	err = errors.Join(errs...)
	if err != nil {
		slog.Error("Batch.Run finished with errors", slog.String("rqID", rqID), slog.String("op", op), slog.Duration("took", b.clock.Since(startedAt)), slog.String("err", err.Error()))
		return err
	}

	slog.Info("Batch.Run finished", slog.String("rqID", rqID), slog.String("op", op), slog.Duration("took", b.clock.Since(startedAt)))

	return nil
}

func (b *Batch) runUser(ctx context.Context, userID int64) error {
	// котировки одного тикера качаем один раз на пользователя
	quotes := make(map[string][]model.DatedQuote)

	portfolioErr := b.portfolios.UpdateUser(ctx, userID, quotes)
	accountErr := b.accounts.UpdateUser(ctx, userID, quotes)
	brokerageErr := b.brokerages.UpdateUser(ctx, userID)

	return errors.Join(portfolioErr, accountErr, brokerageErr)
}
