package tgbot

import (
	"log/slog"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/internal/converter/telebotConverter"
	"github.com/KotFed0t/invest_performance/internal/transport/telegram"
	customMW "github.com/KotFed0t/invest_performance/internal/transport/telegram/middleware"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type TGBot struct {
	bot  *tele.Bot
	ctrl *telegram.Controller
}

func New(cfg *config.Config, ctrl *telegram.Controller) *TGBot {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		panic(err)
	}

	return &TGBot{bot: b, ctrl: ctrl}
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	b.bot.Handle("/start", b.ctrl.Start)
	b.bot.Handle("/new_portfolio", b.ctrl.NewPortfolio)
	b.bot.Handle("/new_brokerage", b.ctrl.NewBrokerage)
	b.bot.Handle("/new_account", b.ctrl.NewAccount)
	b.bot.Handle("/buy", b.ctrl.Buy)
	b.bot.Handle("/sell", b.ctrl.Sell)
	b.bot.Handle("/delete_tx", b.ctrl.DeleteTransaction)
	b.bot.Handle("/performance", b.ctrl.Performance)
	b.bot.Handle("/report", b.ctrl.Report)

	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		return c.Send("сначала введите одну из команд\n\n" + telebotConverter.HelpText)
	})
}
