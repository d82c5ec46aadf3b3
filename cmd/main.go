package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/data"
	"github.com/KotFed0t/invest_performance/data/cache"
	"github.com/KotFed0t/invest_performance/data/repository/postgres"
	"github.com/KotFed0t/invest_performance/internal/calculator"
	"github.com/KotFed0t/invest_performance/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/KotFed0t/invest_performance/internal/externalApi/moexApi"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/reportGenerator/xslsxGenerator"
	"github.com/KotFed0t/invest_performance/internal/scheduler"
	"github.com/KotFed0t/invest_performance/internal/service/journalService"
	"github.com/KotFed0t/invest_performance/internal/service/performanceService"
	"github.com/KotFed0t/invest_performance/internal/service/quoteService"
	"github.com/KotFed0t/invest_performance/internal/tgbot"
	"github.com/KotFed0t/invest_performance/internal/transport/telegram"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	pgClient := data.NewPostgresClient(ctx, cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)
	portfolioStore := postgres.NewPortfolioPerformanceStore(pgRepo)
	accountStore := postgres.NewAccountPerformanceStore(pgRepo)
	brokerageStore := postgres.NewBrokeragePerformanceStore(pgRepo)

	redisClient := data.NewRedisClient(ctx, cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)

	moexApiClient := moexApi.New(cfg)
	quoteSrv := quoteService.New(cfg, moexApiClient, redisCache, clock)
	calc := calculator.New(quoteSrv)

	portfolioUpdater := performanceService.NewPortfolioUpdater(pgRepo, portfolioStore, calc, clock)
	accountUpdater := performanceService.NewAccountUpdater(pgRepo, accountStore, calc, clock)
	brokerageUpdater := performanceService.NewBrokerageUpdater(cfg, pgRepo, accountStore, brokerageStore, clock)
	cascade := performanceService.NewCascade(cfg, pgRepo, portfolioUpdater, accountUpdater, brokerageUpdater)
	batch := performanceService.NewBatch(cfg, pgRepo, portfolioUpdater, accountUpdater, brokerageUpdater, clock)

	reportGenerator := xslsxGenerator.New()

	googleCloudStorage := googleDriveApi.New(ctx, cfg, clock)

	journalSrv := journalService.New(
		cfg,
		pgRepo,
		cascade,
		map[model.OwnerKind]journalService.SeriesReader{
			model.OwnerPortfolio: portfolioStore,
			model.OwnerAccount:   accountStore,
			model.OwnerBrokerage: brokerageStore,
		},
		reportGenerator,
		googleCloudStorage,
		clock,
	)

	sched := scheduler.New(clock)
	sched.NewCrontabJob("recalculate performance", batch.Run, cfg.Jobs.RecalculatePerformanceCrontab, false)
	sched.NewIntervalJob("delete old reports", journalSrv.DeleteOldReports, cfg.Jobs.DeleteOldReportsInterval, true)
	sched.Start()
	defer sched.Stop()

	tgController := telegram.NewController(journalSrv, clock)

	tgBot := tgbot.New(cfg, tgController)
	tgBot.Start()
	defer tgBot.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
