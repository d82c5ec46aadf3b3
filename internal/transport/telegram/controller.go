package telegram

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/KotFed0t/invest_performance/internal/converter/telebotConverter"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/service"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/jonboulle/clockwork"
	tele "gopkg.in/telebot.v4"
)

const internalErrMsg = "что-то пошло не так..."

type JournalService interface {
	RegUser(ctx context.Context, chatID int64) error
	CreatePortfolio(ctx context.Context, chatID int64, name string) (portfolioID int64, err error)
	CreateBrokerage(ctx context.Context, chatID int64, name string) (brokerageID int64, err error)
	CreateAccount(ctx context.Context, chatID, brokerageID int64, name string) (accountID int64, err error)
	AddTransaction(ctx context.Context, chatID int64, tx model.Transaction) (model.Transaction, error)
	DeleteTransaction(ctx context.Context, chatID, transactionID int64) error
	GetPerformance(ctx context.Context, chatID int64, kind model.OwnerKind, ownerID int64, from, to *time.Time) (model.PerformanceReport, error)
	ExportReport(ctx context.Context, chatID int64, kind model.OwnerKind, ownerID int64) (model.ReportFile, error)
}

type Controller struct {
	journalService JournalService
	clock          clockwork.Clock
}

func NewController(journalService JournalService, clock clockwork.Clock) *Controller {
	return &Controller{
		journalService: journalService,
		clock:          clock,
	}
}

func (ctrl *Controller) Start(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	if err := ctrl.journalService.RegUser(ctx, c.Chat().ID); err != nil {
		return c.Send(internalErrMsg)
	}
	return c.Send(telebotConverter.HelpText)
}

func (ctrl *Controller) NewPortfolio(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args, err := parseArgs(c.Message().Payload)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}
	name, err := requiredString(args, "name")
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	portfolioID, err := ctrl.journalService.CreatePortfolio(ctx, c.Chat().ID, name)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	return c.Send(telebotConverter.OwnerCreatedResponse(model.OwnerPortfolio, portfolioID, name))
}

func (ctrl *Controller) NewBrokerage(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args, err := parseArgs(c.Message().Payload)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}
	name, err := requiredString(args, "name")
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	brokerageID, err := ctrl.journalService.CreateBrokerage(ctx, c.Chat().ID, name)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	return c.Send(telebotConverter.OwnerCreatedResponse(model.OwnerBrokerage, brokerageID, name))
}

func (ctrl *Controller) NewAccount(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args, err := parseArgs(c.Message().Payload)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}
	brokerageID, err := requiredInt(args, "brokerage")
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}
	name, err := requiredString(args, "name")
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	accountID, err := ctrl.journalService.CreateAccount(ctx, c.Chat().ID, brokerageID, name)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	return c.Send(telebotConverter.OwnerCreatedResponse(model.OwnerAccount, accountID, name))
}

func (ctrl *Controller) Buy(c tele.Context) error {
	return ctrl.addTransaction(c, model.TransactionBuy)
}

func (ctrl *Controller) Sell(c tele.Context) error {
	return ctrl.addTransaction(c, model.TransactionSell)
}

func (ctrl *Controller) addTransaction(c tele.Context, txType model.TransactionType) error {
	ctx := utils.CreateCtxWithRqID(c)

	tx, err := parseTransaction(txType, c.Message().Payload, ctrl.clock.Now())
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	created, err := ctrl.journalService.AddTransaction(ctx, c.Chat().ID, tx)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	return c.Send(telebotConverter.TransactionCreatedResponse(created))
}

func (ctrl *Controller) DeleteTransaction(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args, err := parseArgs(c.Message().Payload)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}
	transactionID, err := requiredInt(args, "id")
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	if err = ctrl.journalService.DeleteTransaction(ctx, c.Chat().ID, transactionID); err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	return c.Send("Сделка удалена, доходность пересчитана")
}

func (ctrl *Controller) Performance(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args, err := parseArgs(c.Message().Payload)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}
	kind, ownerID, err := parseOwner(args)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}
	from, err := optionalDay(args, "from")
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}
	to, err := optionalDay(args, "to")
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	report, err := ctrl.journalService.GetPerformance(ctx, c.Chat().ID, kind, ownerID, from, to)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	return c.Send(telebotConverter.PerformanceResponse(report))
}

func (ctrl *Controller) Report(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args, err := parseArgs(c.Message().Payload)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}
	kind, ownerID, err := parseOwner(args)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	_ = c.Notify(tele.UploadingDocument)

	file, err := ctrl.journalService.ExportReport(ctx, c.Chat().ID, kind, ownerID)
	if err != nil {
		return ctrl.sendErr(ctx, c, err)
	}

	if file.Link != "" {
		return c.Send("Отчет слишком большой для телеграма, скачать можно по ссылке:\n" + file.Link)
	}

	return c.Send(&tele.Document{
		File:     tele.FromReader(bytes.NewReader(file.Bytes)),
		FileName: file.Name,
	})
}

func (ctrl *Controller) sendErr(ctx context.Context, c tele.Context, err error) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	switch {
	case errors.Is(err, errBadArgs):
		return c.Send(err.Error() + "\n\n" + telebotConverter.HelpText)
	case errors.Is(err, service.ErrInvalidTransaction):
		return c.Send("Сделка не прошла проверку: " + err.Error())
	case errors.Is(err, service.ErrNotFound):
		return c.Send("Не найдено. Если вы еще не зарегистрированы, отправьте /start")
	case errors.Is(err, service.ErrForbidden):
		return c.Send("Нет доступа")
	default:
		slog.Error("request failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}
}
