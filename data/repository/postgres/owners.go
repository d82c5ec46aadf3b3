package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/invest_performance/internal/converter/dbConverter"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/model/dbModel"
	"github.com/KotFed0t/invest_performance/utils"
)

func (r *Postgres) RegUser(ctx context.Context, chatID int64) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO users(chat_id) VALUES($1) RETURNING user_id`

	slog.Debug("RegUser start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("RegUser failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("RegUser completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, chatID).Scan(&userID)
	if err != nil {
		return 0, mapErr(err)
	}

	return userID, nil
}

func (r *Postgres) GetUserID(ctx context.Context, chatID int64) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT user_id FROM users WHERE chat_id = $1`

	slog.Debug("GetUserID start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetUserID failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUserID completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).GetContext(ctx, &userID, query, chatID)
	if err != nil {
		return 0, mapErr(err)
	}

	return userID, nil
}

func (r *Postgres) GetUserIDs(ctx context.Context) (userIDs []int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetUserIDs"
	query := `SELECT user_id FROM users ORDER BY user_id`

	slog.Debug("GetUserIDs start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		if err != nil {
			slog.Error("GetUserIDs failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUserIDs completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(userIDs)))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &userIDs, query)
	return userIDs, err
}

func (r *Postgres) CreatePortfolio(ctx context.Context, name string, userID int64) (portfolioID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO portfolios(name, user_id) VALUES($1, $2) RETURNING portfolio_id`

	slog.Debug("CreatePortfolio start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreatePortfolio failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreatePortfolio completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, name, userID).Scan(&portfolioID)
	if err != nil {
		return 0, mapErr(err)
	}

	return portfolioID, nil
}

func (r *Postgres) GetPortfolio(ctx context.Context, portfolioID int64) (portfolio model.Portfolio, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT portfolio_id, user_id, name FROM portfolios WHERE portfolio_id = $1`

	slog.Debug("GetPortfolio start", slog.String("rqID", rqID), slog.Int64("portfolioID", portfolioID))
	defer func() {
		if err != nil {
			slog.Error("GetPortfolio failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPortfolio completed", slog.String("rqID", rqID))
		}
	}()

	dbPortfolio := dbModel.Portfolio{}
	err = r.txOrDb(ctx).GetContext(ctx, &dbPortfolio, query, portfolioID)
	if err != nil {
		return model.Portfolio{}, mapErr(err)
	}

	return dbConverter.ConvertPortfolio(dbPortfolio), nil
}

func (r *Postgres) GetUserPortfolioIDs(ctx context.Context, userID int64) (portfolioIDs []int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT portfolio_id FROM portfolios WHERE user_id = $1 ORDER BY portfolio_id`

	slog.Debug("GetUserPortfolioIDs start", slog.String("rqID", rqID), slog.Int64("userID", userID))
	defer func() {
		if err != nil {
			slog.Error("GetUserPortfolioIDs failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUserPortfolioIDs completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &portfolioIDs, query, userID)
	return portfolioIDs, err
}

func (r *Postgres) CreateBrokerage(ctx context.Context, name string, userID int64) (brokerageID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO brokerages(name, user_id) VALUES($1, $2) RETURNING brokerage_id`

	slog.Debug("CreateBrokerage start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreateBrokerage failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateBrokerage completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, name, userID).Scan(&brokerageID)
	if err != nil {
		return 0, mapErr(err)
	}

	return brokerageID, nil
}

func (r *Postgres) GetBrokerage(ctx context.Context, brokerageID int64) (brokerage model.Brokerage, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT brokerage_id, user_id, name FROM brokerages WHERE brokerage_id = $1`

	slog.Debug("GetBrokerage start", slog.String("rqID", rqID), slog.Int64("brokerageID", brokerageID))
	defer func() {
		if err != nil {
			slog.Error("GetBrokerage failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetBrokerage completed", slog.String("rqID", rqID))
		}
	}()

	dbBrokerage := dbModel.Brokerage{}
	err = r.txOrDb(ctx).GetContext(ctx, &dbBrokerage, query, brokerageID)
	if err != nil {
		return model.Brokerage{}, mapErr(err)
	}

	return dbConverter.ConvertBrokerage(dbBrokerage), nil
}

func (r *Postgres) CreateAccount(ctx context.Context, name string, brokerageID, userID int64) (accountID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO brokerage_accounts(name, brokerage_id, user_id) VALUES($1, $2, $3) RETURNING account_id`

	slog.Debug("CreateAccount start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreateAccount failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateAccount completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).QueryRowxContext(ctx, query, name, brokerageID, userID).Scan(&accountID)
	if err != nil {
		return 0, mapErr(err)
	}

	return accountID, nil
}

func (r *Postgres) GetAccount(ctx context.Context, accountID int64) (account model.BrokerageAccount, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT account_id, brokerage_id, user_id, name FROM brokerage_accounts WHERE account_id = $1`

	slog.Debug("GetAccount start", slog.String("rqID", rqID), slog.Int64("accountID", accountID))
	defer func() {
		if err != nil {
			slog.Error("GetAccount failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetAccount completed", slog.String("rqID", rqID))
		}
	}()

	dbAccount := dbModel.BrokerageAccount{}
	err = r.txOrDb(ctx).GetContext(ctx, &dbAccount, query, accountID)
	if err != nil {
		return model.BrokerageAccount{}, mapErr(err)
	}

	return dbConverter.ConvertAccount(dbAccount), nil
}

func (r *Postgres) GetUserAccounts(ctx context.Context, userID int64) (accounts []model.BrokerageAccount, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT account_id, brokerage_id, user_id, name
		FROM brokerage_accounts
		WHERE user_id = $1
		ORDER BY brokerage_id, account_id
		`

	slog.Debug("GetUserAccounts start", slog.String("rqID", rqID), slog.Int64("userID", userID))
	defer func() {
		if err != nil {
			slog.Error("GetUserAccounts failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetUserAccounts completed", slog.String("rqID", rqID))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	for rows.Next() {
		var dbAccount dbModel.BrokerageAccount
		err = rows.StructScan(&dbAccount)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, dbConverter.ConvertAccount(dbAccount))
	}

	return accounts, rows.Err()
}

func (r *Postgres) GetBrokerageAccountIDs(ctx context.Context, brokerageID int64) (accountIDs []int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT account_id FROM brokerage_accounts WHERE brokerage_id = $1 ORDER BY account_id`

	slog.Debug("GetBrokerageAccountIDs start", slog.String("rqID", rqID), slog.Int64("brokerageID", brokerageID))
	defer func() {
		if err != nil {
			slog.Error("GetBrokerageAccountIDs failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetBrokerageAccountIDs completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).SelectContext(ctx, &accountIDs, query, brokerageID)
	return accountIDs, err
}
