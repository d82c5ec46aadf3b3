package dbConverter

import (
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/model/dbModel"
	"github.com/KotFed0t/invest_performance/utils"
)

func ConvertTransaction(dbTx dbModel.Transaction) model.Transaction {
	tx := model.Transaction{
		TransactionID: dbTx.TransactionID,
		PortfolioID:   dbTx.PortfolioID,
		Type:          model.TransactionType(dbTx.Type),
		Date:          dbTx.Dt,
		Ticker:        dbTx.Ticker,
		Shares:        dbTx.Shares,
		PricePerShare: dbTx.PricePerShare,
		Fees:          dbTx.Fees,
	}
	if dbTx.AccountID.Valid {
		accountID := dbTx.AccountID.Int64
		tx.AccountID = &accountID
	}
	return tx
}

func ConvertPerformance(dbPerf dbModel.Performance) model.DatedPerformance {
	return model.DatedPerformance{
		Date:         utils.Day(dbPerf.Dt),
		Invested:     dbPerf.Invested,
		Realized:     dbPerf.Realized,
		CurrentValue: dbPerf.CurrentValue,
	}
}

func ConvertPortfolio(dbPortfolio dbModel.Portfolio) model.Portfolio {
	return model.Portfolio{
		PortfolioID: dbPortfolio.PortfolioID,
		UserID:      dbPortfolio.UserID,
		Name:        dbPortfolio.Name,
	}
}

func ConvertBrokerage(dbBrokerage dbModel.Brokerage) model.Brokerage {
	return model.Brokerage{
		BrokerageID: dbBrokerage.BrokerageID,
		UserID:      dbBrokerage.UserID,
		Name:        dbBrokerage.Name,
	}
}

func ConvertAccount(dbAccount dbModel.BrokerageAccount) model.BrokerageAccount {
	return model.BrokerageAccount{
		AccountID:   dbAccount.AccountID,
		BrokerageID: dbAccount.BrokerageID,
		UserID:      dbAccount.UserID,
		Name:        dbAccount.Name,
	}
}
