package performanceService

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
)

type OwnerUpdater interface {
	RecalculateFrom(ctx context.Context, ownerID int64, cutoff time.Time) error
}

type AccountGetter interface {
	GetAccount(ctx context.Context, accountID int64) (model.BrokerageAccount, error)
}

// Cascade brings the series touched by a created or deleted transaction up to date.
// It runs synchronously, so its error is the error of the mutation.
type Cascade struct {
	accounts         AccountGetter
	portfolioUpdater OwnerUpdater
	accountUpdater   OwnerUpdater
	brokerageUpdater OwnerUpdater
	slackDays        int
}

func NewCascade(cfg *config.Config, accounts AccountGetter, portfolioUpdater, accountUpdater, brokerageUpdater OwnerUpdater) *Cascade {
	return &Cascade{
		accounts:         accounts,
		portfolioUpdater: portfolioUpdater,
		accountUpdater:   accountUpdater,
		brokerageUpdater: brokerageUpdater,
		slackDays:        max(cfg.Performance.CascadeSlackDays, 0),
	}
}

func (c *Cascade) OnTransactionCreated(ctx context.Context, tx model.Transaction) error {
	return c.onTransactionChanged(ctx, "OnTransactionCreated", tx)
}

func (c *Cascade) OnTransactionDeleted(ctx context.Context, tx model.Transaction) error {
	return c.onTransactionChanged(ctx, "OnTransactionDeleted", tx)
}

// Cutoff is the first day rewritten after a change of a transaction dated date.
func (c *Cascade) Cutoff(date time.Time) time.Time {
	return utils.Day(date).AddDate(0, 0, -c.slackDays)
}

func (c *Cascade) onTransactionChanged(ctx context.Context, method string, tx model.Transaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Cascade." + method
	cutoff := c.Cutoff(tx.Date)

	slog.Debug(method+" start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", tx.TransactionID), slog.Time("cutoff", cutoff))
	defer func() {
		if err != nil {
			slog.Error(method+" failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug(method+" completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var account *model.BrokerageAccount
	if tx.AccountID != nil {
		acc, err := c.accounts.GetAccount(ctx, *tx.AccountID)
		if err != nil {
			return fmt.Errorf("resolve account %d: %w", *tx.AccountID, err)
		}
		account = &acc
	}

	if err = c.portfolioUpdater.RecalculateFrom(ctx, tx.PortfolioID, cutoff); err != nil {
		return fmt.Errorf("recalculate portfolio %d: %w", tx.PortfolioID, err)
	}

	if account == nil {
		return nil
	}

	// счет раньше брокера: брокер суммирует уже обновленные серии счетов
	if err = c.accountUpdater.RecalculateFrom(ctx, account.AccountID, cutoff); err != nil {
		return fmt.Errorf("recalculate account %d: %w", account.AccountID, err)
	}

	if err = c.brokerageUpdater.RecalculateFrom(ctx, account.BrokerageID, cutoff); err != nil {
		return fmt.Errorf("recalculate brokerage %d: %w", account.BrokerageID, err)
	}

	return nil
}
