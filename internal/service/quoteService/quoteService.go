package quoteService

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/internal/externalApi"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/service"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type MoexApi interface {
	GetHistoricalPrices(ctx context.Context, ticker string) ([]model.DatedQuote, error)
	GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

type Cache interface {
	GetQuoteHistory(ctx context.Context, ticker string) ([]model.DatedQuote, error)
	SetQuoteHistory(ctx context.Context, ticker string, quotes []model.DatedQuote) error
	GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	SetLatestPrice(ctx context.Context, ticker string, price decimal.Decimal) error
}

// QuoteService is the quote source of the calculator: moex history behind a redis cache.
type QuoteService struct {
	moexApi           MoexApi
	cache             Cache
	clock             clockwork.Clock
	appendLatestPrice bool
}

func New(cfg *config.Config, moexApi MoexApi, cache Cache, clock clockwork.Clock) *QuoteService {
	return &QuoteService{
		moexApi:           moexApi,
		cache:             cache,
		clock:             clock,
		appendLatestPrice: cfg.Performance.AppendLatestPrice,
	}
}

// GetHistoricalPrices returns the ticker's close prices ascending by date.
// With appendLatestPrice on, today's spot price is added when the history has no quote for today yet.
func (s *QuoteService) GetHistoricalPrices(ctx context.Context, ticker string) (quotes []model.DatedQuote, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "QuoteService.GetHistoricalPrices"

	slog.Debug("GetHistoricalPrices start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
	defer func() {
		slog.Debug("GetHistoricalPrices finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker), slog.Int("quotes", len(quotes)))
	}()

	quotes, err = s.cache.GetQuoteHistory(ctx, ticker)
	if err != nil {
		slog.Warn("can't get quote history from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

		quotes, err = s.moexApi.GetHistoricalPrices(ctx, ticker)
		if err != nil {
			slog.Error("can't get quote history from moexApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, err
		}

		go s.setQuoteHistory(context.WithoutCancel(ctx), ticker, quotes)
	}

	if !s.appendLatestPrice {
		return quotes, nil
	}

	today := utils.Day(s.clock.Now())
	if len(quotes) > 0 && !quotes[len(quotes)-1].Date.Before(today) {
		return quotes, nil
	}

	price, err := s.GetLatestPrice(ctx, ticker)
	if err != nil {
		// без сегодняшней цены серия просто протянет последнее закрытие
		slog.Warn("can't append latest price", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return quotes, nil
	}

	// Clip: закэшированный слайс не должен меняться
	return append(slices.Clip(quotes), model.DatedQuote{Ticker: ticker, Date: today, Price: price}), nil
}

func (s *QuoteService) GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "QuoteService.GetLatestPrice"

	price, err := s.cache.GetLatestPrice(ctx, ticker)
	if err == nil {
		return price, nil
	}

	slog.Warn("can't get latest price from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

	price, err = s.moexApi.GetLatestPrice(ctx, ticker)
	if err != nil {
		if errors.Is(err, externalApi.ErrNotFound) {
			slog.Warn("latest price not found in moexApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
			return decimal.Decimal{}, service.ErrNotFound
		}
		slog.Error("can't get latest price from moexApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return decimal.Decimal{}, err
	}

	go func() {
		if err := s.cache.SetLatestPrice(context.WithoutCancel(ctx), ticker, price); err != nil {
			slog.Error("can't set latest price to cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	return price, nil
}

func (s *QuoteService) setQuoteHistory(ctx context.Context, ticker string, quotes []model.DatedQuote) {
	err := s.cache.SetQuoteHistory(ctx, ticker, quotes)
	if err != nil {
		slog.Error("can't set quote history to cache", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("op", "QuoteService.setQuoteHistory"), slog.String("err", err.Error()))
	}
}
