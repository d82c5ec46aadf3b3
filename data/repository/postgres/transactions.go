package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/invest_performance/data/repository"
	"github.com/KotFed0t/invest_performance/internal/converter/dbConverter"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/model/dbModel"
	"github.com/KotFed0t/invest_performance/utils"
)

const transactionColumns = `transaction_id, portfolio_id, account_id, type, dt, ticker, shares, price_per_share, fees`

func (r *Postgres) InsertTransaction(ctx context.Context, tx model.Transaction) (transactionID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertTransaction"
	query := `
		INSERT INTO transactions(portfolio_id, account_id, type, dt, ticker, shares, price_per_share, fees)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING transaction_id
	`

	slog.Debug("InsertTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("transaction", tx))
	defer func() {
		if err != nil {
			slog.Error("InsertTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(
		ctx,
		query,
		tx.PortfolioID,
		tx.AccountID,
		string(tx.Type),
		tx.Date,
		tx.Ticker,
		tx.Shares,
		tx.PricePerShare,
		tx.Fees,
	).Scan(&transactionID)
	if err != nil {
		return 0, mapErr(err)
	}

	return transactionID, nil
}

func (r *Postgres) GetTransaction(ctx context.Context, transactionID int64) (tx model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetTransaction"
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = $1`

	slog.Debug("GetTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", transactionID))
	defer func() {
		if err != nil {
			slog.Error("GetTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	dbTx := dbModel.Transaction{}
	err = r.txOrDb(ctx).GetContext(ctx, &dbTx, query, transactionID)
	if err != nil {
		return model.Transaction{}, mapErr(err)
	}

	return dbConverter.ConvertTransaction(dbTx), nil
}

func (r *Postgres) DeleteTransaction(ctx context.Context, transactionID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DeleteTransaction"
	query := `DELETE FROM transactions WHERE transaction_id = $1`

	slog.Debug("DeleteTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", transactionID))
	defer func() {
		if err != nil {
			slog.Error("DeleteTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteTransaction completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, transactionID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *Postgres) getTransactions(ctx context.Context, op, query string, args ...any) (txs []model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("getTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("args", args))
	defer func() {
		if err != nil {
			slog.Error("getTransactions failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("getTransactions completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(txs)))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbTx dbModel.Transaction
		err = rows.StructScan(&dbTx)
		if err != nil {
			return nil, err
		}
		txs = append(txs, dbConverter.ConvertTransaction(dbTx))
	}

	return txs, rows.Err()
}

func (r *Postgres) GetPortfolioTransactions(ctx context.Context, portfolioID int64) ([]model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1
		ORDER BY dt, transaction_id
		`

	return r.getTransactions(ctx, "Postgres.GetPortfolioTransactions", query, portfolioID)
}

func (r *Postgres) GetAccountTransactions(ctx context.Context, accountID int64) ([]model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY dt, transaction_id
		`

	return r.getTransactions(ctx, "Postgres.GetAccountTransactions", query, accountID)
}

// GetPortfolioTickerTransactions is used to validate sells against the holdings as of a date.
func (r *Postgres) GetPortfolioTickerTransactions(ctx context.Context, portfolioID int64, ticker string) ([]model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1
		AND ticker = $2
		ORDER BY dt, transaction_id
		`

	return r.getTransactions(ctx, "Postgres.GetPortfolioTickerTransactions", query, portfolioID, ticker)
}

func (r *Postgres) GetAccountTickerTransactions(ctx context.Context, accountID int64, ticker string) ([]model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		AND ticker = $2
		ORDER BY dt, transaction_id
		`

	return r.getTransactions(ctx, "Postgres.GetAccountTickerTransactions", query, accountID, ticker)
}
