package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var ErrCacheMiss = errors.New("cache miss")

const (
	quoteHistoryPrefix = "quotes:history:"
	latestPricePrefix  = "quotes:latest:"
)

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func (r *RedisCache) SetQuoteHistory(ctx context.Context, ticker string, quotes []model.DatedQuote) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisCache.SetQuoteHistory"
	slog.Debug("SetQuoteHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))

	quotesJson, err := json.Marshal(quotes)
	if err != nil {
		slog.Error("can't marshall quotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return errors.New("can't marshall quotes")
	}

	err = r.redis.Set(ctx, quoteHistoryPrefix+ticker, quotesJson, r.cfg.Cache.QuotesExpiration).Err()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetQuoteHistory completed", slog.String("rqID", rqID), slog.String("op", op))

	return nil
}

func (r *RedisCache) GetQuoteHistory(ctx context.Context, ticker string) ([]model.DatedQuote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisCache.GetQuoteHistory"
	slog.Debug("GetQuoteHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))

	res, err := r.redis.Get(ctx, quoteHistoryPrefix+ticker).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()), slog.String("ticker", ticker))
		return nil, err
	}

	var quotes []model.DatedQuote
	err = json.Unmarshal([]byte(res), &quotes)
	if err != nil {
		slog.Error("can't unmarshall quotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, errors.New("can't unmarshall quotes")
	}

	slog.Debug("GetQuoteHistory finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int("quotes", len(quotes)))

	return quotes, nil
}

func (r *RedisCache) SetLatestPrice(ctx context.Context, ticker string, price decimal.Decimal) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisCache.SetLatestPrice"

	err := r.redis.Set(ctx, latestPricePrefix+ticker, price.String(), r.cfg.Cache.LatestPriceExpiration).Err()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func (r *RedisCache) GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisCache.GetLatestPrice"

	res, err := r.redis.Get(ctx, latestPricePrefix+ticker).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Decimal{}, ErrCacheMiss
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return decimal.Decimal{}, err
	}

	return decimal.NewFromString(res)
}
