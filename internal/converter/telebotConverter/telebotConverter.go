package telebotConverter

import (
	"fmt"
	"strings"

	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/shopspring/decimal"
)

const HelpText = `Команды:
/new_portfolio name=<название>
/new_brokerage name=<название>
/new_account brokerage=<id> name=<название>
/buy portfolio=<id> ticker=<тикер> shares=<кол-во> price=<цена> [fees=<комиссия>] [date=ГГГГ-ММ-ДД] [account=<id>]
/sell portfolio=<id> ticker=<тикер> shares=<кол-во> price=<цена> [fees=<комиссия>] [date=ГГГГ-ММ-ДД] [account=<id>]
/delete_tx id=<id сделки>
/performance [kind=portfolio|account|brokerage] id=<id> [from=ГГГГ-ММ-ДД] [to=ГГГГ-ММ-ДД]
/report [kind=portfolio|account|brokerage] id=<id>`

var ownerKindNames = map[model.OwnerKind]string{
	model.OwnerPortfolio: "Портфель",
	model.OwnerAccount:   "Счет",
	model.OwnerBrokerage: "Брокер",
}

var transactionTypeNames = map[model.TransactionType]string{
	model.TransactionBuy:  "Покупка",
	model.TransactionSell: "Продажа",
}

func OwnerCreatedResponse(kind model.OwnerKind, ownerID int64, name string) string {
	return fmt.Sprintf("✅ %s «%s» создан, id: %d", ownerKindNames[kind], name, ownerID)
}

func TransactionCreatedResponse(tx model.Transaction) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("✅ %s %s записана, id: %d\n", transactionTypeNames[tx.Type], tx.Ticker, tx.TransactionID))
	sb.WriteString(fmt.Sprintf("   ▸ Дата: %s\n", tx.Date.Format(utils.DateLayout)))
	sb.WriteString(fmt.Sprintf("   ▸ Кол-во: %s шт.\n", tx.Shares.String()))
	sb.WriteString(fmt.Sprintf("   ▸ Цена: %s ₽\n", tx.PricePerShare.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("   ▸ Сумма: %s ₽\n", tx.Amount().StringFixed(2)))
	if !tx.Fees.IsZero() {
		sb.WriteString(fmt.Sprintf("   ▸ Комиссия: %s ₽\n", tx.Fees.StringFixed(2)))
	}

	return sb.String()
}

// PerformanceResponse shows the last day of the series and the change over the requested range.
func PerformanceResponse(report model.PerformanceReport) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("📊 %s: %s\n", ownerKindNames[report.OwnerKind], report.OwnerName))

	if len(report.Series) == 0 {
		sb.WriteString("Пока нет данных о доходности")
		return sb.String()
	}

	first, last := report.Series[0], report.Series[len(report.Series)-1]

	sb.WriteString(fmt.Sprintf("📅 %s - %s\n\n", first.Date.Format(utils.DateLayout), last.Date.Format(utils.DateLayout)))
	sb.WriteString(fmt.Sprintf("💰 Стоимость: %s ₽\n", last.CurrentValue.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("   ▸ Вложено: %s ₽\n", last.Invested.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("   ▸ Нереализованная прибыль: %s ₽%s\n", signed(last.Unrealized()), percentOf(last.Unrealized(), last.Invested)))
	sb.WriteString(fmt.Sprintf("   ▸ Зафиксированная прибыль: %s ₽\n", signed(last.Realized)))

	if len(report.Series) > 1 {
		change := last.CurrentValue.Sub(first.CurrentValue)
		sb.WriteString(fmt.Sprintf("\n📈 Изменение стоимости за период: %s ₽", signed(change)))
	}

	return sb.String()
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func percentOf(part, whole decimal.Decimal) string {
	if whole.IsZero() {
		return ""
	}
	return fmt.Sprintf(" (%s%%)", signed(part.Div(whole).Mul(decimal.NewFromInt(100))))
}
