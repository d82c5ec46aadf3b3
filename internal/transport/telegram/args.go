package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/shopspring/decimal"
)

var errBadArgs = errors.New("bad command arguments")

// parseArgs splits "key=value key2=value with spaces" into a map.
// A word without "=" continues the previous value.
func parseArgs(payload string) (map[string]string, error) {
	args := make(map[string]string)
	lastKey := ""

	for _, word := range strings.Fields(payload) {
		key, value, ok := strings.Cut(word, "=")
		if !ok {
			if lastKey == "" {
				return nil, fmt.Errorf("%w: %q is not key=value", errBadArgs, word)
			}
			args[lastKey] += " " + word
			continue
		}

		key = strings.ToLower(key)
		if key == "" {
			return nil, fmt.Errorf("%w: empty key in %q", errBadArgs, word)
		}
		args[key] = value
		lastKey = key
	}

	return args, nil
}

func requiredString(args map[string]string, key string) (string, error) {
	v := strings.TrimSpace(args[key])
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", errBadArgs, key)
	}
	return v, nil
}

func requiredInt(args map[string]string, key string) (int64, error) {
	v, err := requiredString(args, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadArgs, key)
	}
	return n, nil
}

func optionalInt(args map[string]string, key string) (*int64, error) {
	if _, ok := args[key]; !ok {
		return nil, nil
	}
	n, err := requiredInt(args, key)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func decimalArg(args map[string]string, key string, required bool) (decimal.Decimal, error) {
	v, ok := args[key]
	if !ok && !required {
		return decimal.Zero, nil
	}
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is required", errBadArgs, key)
	}
	// пользователи часто пишут десятичную запятую
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v), ",", "."))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s must be a number", errBadArgs, key)
	}
	return d, nil
}

func optionalDay(args map[string]string, key string) (*time.Time, error) {
	v, ok := args[key]
	if !ok {
		return nil, nil
	}
	d, err := utils.ParseDay(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must look like %s", errBadArgs, key, utils.DateLayout)
	}
	return &d, nil
}

// parseTransaction reads /buy and /sell arguments. date defaults to today.
func parseTransaction(txType model.TransactionType, payload string, today time.Time) (model.Transaction, error) {
	args, err := parseArgs(payload)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{Type: txType}

	if tx.PortfolioID, err = requiredInt(args, "portfolio"); err != nil {
		return model.Transaction{}, err
	}
	if tx.AccountID, err = optionalInt(args, "account"); err != nil {
		return model.Transaction{}, err
	}
	if tx.Ticker, err = requiredString(args, "ticker"); err != nil {
		return model.Transaction{}, err
	}
	if tx.Shares, err = decimalArg(args, "shares", true); err != nil {
		return model.Transaction{}, err
	}
	if tx.PricePerShare, err = decimalArg(args, "price", true); err != nil {
		return model.Transaction{}, err
	}
	if tx.Fees, err = decimalArg(args, "fees", false); err != nil {
		return model.Transaction{}, err
	}

	date, err := optionalDay(args, "date")
	if err != nil {
		return model.Transaction{}, err
	}
	tx.Date = utils.Day(today)
	if date != nil {
		tx.Date = *date
	}

	return tx, nil
}

func parseOwner(args map[string]string) (model.OwnerKind, int64, error) {
	kind := model.OwnerKind(strings.ToLower(args["kind"]))
	if kind == "" {
		kind = model.OwnerPortfolio
	}
	if !kind.Valid() {
		return "", 0, fmt.Errorf("%w: kind must be portfolio, account or brokerage", errBadArgs)
	}

	id, err := requiredInt(args, "id")
	if err != nil {
		return "", 0, err
	}

	return kind, id, nil
}
