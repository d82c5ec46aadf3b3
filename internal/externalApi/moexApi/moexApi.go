package moexApi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/internal/externalApi"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/model/moexModel"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// на случай если cursor от ISS перестанет сходиться
const maxHistoryPages = 10000

type MoexApi struct {
	client *resty.Client
	board  string
}

func New(cfg *config.Config) *MoexApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.MoexApi.Url)
	return &MoexApi{client: client, board: cfg.API.MoexApi.Board}
}

// GetHistoricalPrices returns daily close prices of ticker ascending by date.
// Days without a close (no trades) are skipped.
func (a *MoexApi) GetHistoricalPrices(ctx context.Context, ticker string) ([]model.DatedQuote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MoexApi.GetHistoricalPrices"
	url := fmt.Sprintf("/iss/history/engines/stock/markets/shares/boards/%s/securities/%s.json", a.board, ticker)

	slog.Debug("GetHistoricalPrices start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))

	quotes := make([]model.DatedQuote, 0)
	var start int64

	for page := 0; page < maxHistoryPages; page++ {
		resp, err := a.client.R().
			SetContext(ctx).
			SetHeader("Accept", "application/json").
			SetQueryParams(map[string]string{
				"iss.meta":        "off",
				"history.columns": "TRADEDATE,CLOSE",
				"start":           strconv.FormatInt(start, 10),
			}).
			Get(url)
		if err != nil {
			slog.Error("error while dialing MoexApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, err
		}
		if resp.IsError() {
			slog.Error("MoexApi responded with error", slog.String("rqID", rqID), slog.String("op", op), slog.Int("status", resp.StatusCode()))
			return nil, fmt.Errorf("moex history %s: unexpected status %d", ticker, resp.StatusCode())
		}

		raw := moexModel.RawHistory{}
		if err = decode(resp.Body(), &raw); err != nil {
			slog.Error("can't unmarshall response into moexModel.RawHistory", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, err
		}

		pageQuotes, err := parseHistory(ticker, raw.History)
		if err != nil {
			slog.Error("can't parse raw history", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, err
		}
		quotes = append(quotes, pageQuotes...)

		cursor, ok := moexModel.ParseCursor(raw.HistoryCursor)
		if !ok || !cursor.HasNext() || len(raw.History.Data) == 0 {
			break
		}
		start = cursor.Index + cursor.PageSize
	}

	if len(quotes) == 0 {
		slog.Warn("no history for ticker", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
	}

	slog.Debug("GetHistoricalPrices complete", slog.String("rqID", rqID), slog.String("op", op), slog.Int("quotes", len(quotes)))

	return quotes, nil
}

// GetLatestPrice returns the last trade price, falling back to the market price when there were no trades today.
func (a *MoexApi) GetLatestPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MoexApi.GetLatestPrice"
	url := fmt.Sprintf("/iss/engines/stock/markets/shares/boards/%s/securities.json", a.board)

	slog.Debug("GetLatestPrice start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"iss.meta":           "off",
			"iss.only":           "marketdata",
			"marketdata.columns": "SECID,LAST,MARKETPRICE",
			"securities":         ticker,
		}).
		Get(url)
	if err != nil {
		slog.Error("error while dialing MoexApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return decimal.Decimal{}, err
	}
	if resp.IsError() {
		return decimal.Decimal{}, fmt.Errorf("moex marketdata %s: unexpected status %d", ticker, resp.StatusCode())
	}

	raw := moexModel.RawMarketData{}
	if err = decode(resp.Body(), &raw); err != nil {
		slog.Error("can't unmarshall response into moexModel.RawMarketData", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return decimal.Decimal{}, err
	}

	price, err := parseLatestPrice(ticker, raw.Marketdata)
	if err != nil {
		return decimal.Decimal{}, err
	}

	slog.Debug("GetLatestPrice complete", slog.String("rqID", rqID), slog.String("op", op), slog.String("price", price.String()))

	return price, nil
}

func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

func parseHistory(ticker string, table moexModel.Table) ([]model.DatedQuote, error) {
	dateIdx, closeIdx := table.Column("TRADEDATE"), table.Column("CLOSE")
	if len(table.Data) > 0 && (dateIdx < 0 || closeIdx < 0) {
		return nil, fmt.Errorf("history columns %v miss TRADEDATE or CLOSE", table.Columns)
	}

	quotes := make([]model.DatedQuote, 0, len(table.Data))
	for _, row := range table.Data {
		if len(row) != len(table.Columns) {
			return nil, fmt.Errorf("invalid history row %v", row)
		}

		rawDate, ok := row[dateIdx].(string)
		if !ok {
			return nil, fmt.Errorf("invalid type TRADEDATE = %v", row[dateIdx])
		}
		date, err := utils.ParseDay(rawDate)
		if err != nil {
			return nil, fmt.Errorf("parse TRADEDATE %q: %w", rawDate, err)
		}

		price, ok, err := numberAt(row, closeIdx)
		if err != nil {
			return nil, fmt.Errorf("invalid CLOSE on %s: %w", rawDate, err)
		}
		if !ok {
			continue
		}

		quotes = append(quotes, model.DatedQuote{Ticker: ticker, Date: date, Price: price})
	}

	return quotes, nil
}

func parseLatestPrice(ticker string, table moexModel.Table) (decimal.Decimal, error) {
	if len(table.Data) == 0 {
		return decimal.Decimal{}, externalApi.ErrNotFound
	}

	secIdx := table.Column("SECID")
	for _, row := range table.Data {
		if secIdx >= 0 && secIdx < len(row) && row[secIdx] != ticker {
			continue
		}
		for _, column := range []string{"LAST", "MARKETPRICE"} {
			price, ok, err := numberAt(row, table.Column(column))
			if err != nil {
				return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", column, err)
			}
			if ok {
				return price, nil
			}
		}
	}

	return decimal.Decimal{}, externalApi.ErrNotFound
}

// numberAt reads a json.Number cell; ok is false for null or a missing column.
func numberAt(row []any, idx int) (decimal.Decimal, bool, error) {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return decimal.Decimal{}, false, nil
	}
	n, isNumber := row[idx].(json.Number)
	if !isNumber {
		return decimal.Decimal{}, false, fmt.Errorf("not a number: %v", row[idx])
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return d, true, nil
}
