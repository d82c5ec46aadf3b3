package journalService

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/KotFed0t/invest_performance/config"
	"github.com/KotFed0t/invest_performance/data/repository"
	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/internal/service"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type Repository interface {
	WithinTransaction(ctx context.Context, tFunc func(ctx context.Context) error) error
	RegUser(ctx context.Context, chatID int64) (userID int64, err error)
	GetUserID(ctx context.Context, chatID int64) (userID int64, err error)
	CreatePortfolio(ctx context.Context, name string, userID int64) (portfolioID int64, err error)
	GetPortfolio(ctx context.Context, portfolioID int64) (model.Portfolio, error)
	CreateBrokerage(ctx context.Context, name string, userID int64) (brokerageID int64, err error)
	GetBrokerage(ctx context.Context, brokerageID int64) (model.Brokerage, error)
	CreateAccount(ctx context.Context, name string, brokerageID, userID int64) (accountID int64, err error)
	GetAccount(ctx context.Context, accountID int64) (model.BrokerageAccount, error)
	InsertTransaction(ctx context.Context, tx model.Transaction) (transactionID int64, err error)
	GetTransaction(ctx context.Context, transactionID int64) (model.Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID int64) error
	GetPortfolioTickerTransactions(ctx context.Context, portfolioID int64, ticker string) ([]model.Transaction, error)
	GetAccountTickerTransactions(ctx context.Context, accountID int64, ticker string) ([]model.Transaction, error)
}

type Cascade interface {
	OnTransactionCreated(ctx context.Context, tx model.Transaction) error
	OnTransactionDeleted(ctx context.Context, tx model.Transaction) error
}

type SeriesReader interface {
	GetSeries(ctx context.Context, ownerID int64, from, to *time.Time) ([]model.DatedPerformance, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, reports []model.PerformanceReport) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
	DeleteOldFiles(ctx context.Context) error
}

// JournalService records users' trades and serves their performance series.
// Every trade mutation runs together with its cascade in one database transaction.
type JournalService struct {
	cfg             *config.Config
	repo            Repository
	cascade         Cascade
	series          map[model.OwnerKind]SeriesReader
	reportGenerator ReportGenerator
	cloudStorage    CloudStorage
	clock           clockwork.Clock
}

func New(
	cfg *config.Config,
	repo Repository,
	cascade Cascade,
	series map[model.OwnerKind]SeriesReader,
	reportGenerator ReportGenerator,
	cloudStorage CloudStorage,
	clock clockwork.Clock,
) *JournalService {
	return &JournalService{
		cfg:             cfg,
		repo:            repo,
		cascade:         cascade,
		series:          series,
		reportGenerator: reportGenerator,
		cloudStorage:    cloudStorage,
		clock:           clock,
	}
}

func (s *JournalService) RegUser(ctx context.Context, chatID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "JournalService.RegUser"

	slog.Debug("RegUser start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("RegUser finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	_, err := s.repo.RegUser(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil
		}
		slog.Error("got error from repo.RegUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func (s *JournalService) CreatePortfolio(ctx context.Context, chatID int64, name string) (portfolioID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "JournalService.CreatePortfolio"

	slog.Debug("CreatePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", name), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("CreatePortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	}()

	userID, err := s.getUserID(ctx, chatID)
	if err != nil {
		return 0, err
	}

	portfolioID, err = s.repo.CreatePortfolio(ctx, name, userID)
	if err != nil {
		slog.Error("got error from repo.CreatePortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return portfolioID, nil
}

func (s *JournalService) CreateBrokerage(ctx context.Context, chatID int64, name string) (brokerageID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "JournalService.CreateBrokerage"

	slog.Debug("CreateBrokerage start", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", name), slog.Int64("chatID", chatID))

	userID, err := s.getUserID(ctx, chatID)
	if err != nil {
		return 0, err
	}

	brokerageID, err = s.repo.CreateBrokerage(ctx, name, userID)
	if err != nil {
		slog.Error("got error from repo.CreateBrokerage", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return brokerageID, nil
}

func (s *JournalService) CreateAccount(ctx context.Context, chatID, brokerageID int64, name string) (accountID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "JournalService.CreateAccount"

	slog.Debug("CreateAccount start", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", name), slog.Int64("brokerageID", brokerageID))

	userID, err := s.getUserID(ctx, chatID)
	if err != nil {
		return 0, err
	}

	if _, err = s.ownerName(ctx, userID, model.OwnerBrokerage, brokerageID); err != nil {
		return 0, err
	}

	accountID, err = s.repo.CreateAccount(ctx, name, brokerageID, userID)
	if err != nil {
		slog.Error("got error from repo.CreateAccount", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	return accountID, nil
}

// AddTransaction validates and stores a trade, then brings the affected series up to date.
// If the recalculation fails the trade isn't stored.
func (s *JournalService) AddTransaction(ctx context.Context, chatID int64, tx model.Transaction) (created model.Transaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "JournalService.AddTransaction"

	slog.Debug("AddTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Any("transaction", tx))
	defer func() {
		if err != nil {
			slog.Error("AddTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("AddTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", created.TransactionID))
		}
	}()

	tx.Ticker = strings.ToUpper(strings.TrimSpace(tx.Ticker))
	tx.Date = utils.Day(tx.Date)
	if err = s.validate(tx); err != nil {
		return model.Transaction{}, err
	}

	userID, err := s.getUserID(ctx, chatID)
	if err != nil {
		return model.Transaction{}, err
	}

	if _, err = s.ownerName(ctx, userID, model.OwnerPortfolio, tx.PortfolioID); err != nil {
		return model.Transaction{}, err
	}
	if tx.AccountID != nil {
		if _, err = s.ownerName(ctx, userID, model.OwnerAccount, *tx.AccountID); err != nil {
			return model.Transaction{}, err
		}
	}

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if tx.Type == model.TransactionSell {
			withNew := func(history []model.Transaction) []model.Transaction { return append(history, tx) }
			if err := s.checkOwnerHoldings(ctx, tx, withNew); err != nil {
				return err
			}
		}

		transactionID, err := s.repo.InsertTransaction(ctx, tx)
		if err != nil {
			return err
		}
		tx.TransactionID = transactionID

		return s.cascade.OnTransactionCreated(ctx, tx)
	})
	if err != nil {
		return model.Transaction{}, err
	}

	return tx, nil
}

// DeleteTransaction removes a trade of the user and recalculates the affected series.
func (s *JournalService) DeleteTransaction(ctx context.Context, chatID, transactionID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "JournalService.DeleteTransaction"

	slog.Debug("DeleteTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", transactionID))
	defer func() {
		if err != nil {
			slog.Error("DeleteTransaction failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteTransaction finished", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	userID, err := s.getUserID(ctx, chatID)
	if err != nil {
		return err
	}

	tx, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return mapRepoErr(err)
	}

	if _, err = s.ownerName(ctx, userID, model.OwnerPortfolio, tx.PortfolioID); err != nil {
		return err
	}

	return s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if tx.Type == model.TransactionBuy {
			// удаление покупки не должно оставлять более поздние продажи без бумаг
			withoutDeleted := func(history []model.Transaction) []model.Transaction {
				return withoutTransaction(history, transactionID)
			}
			if err := s.checkOwnerHoldings(ctx, tx, withoutDeleted); err != nil {
				return err
			}
		}

		if err := s.repo.DeleteTransaction(ctx, transactionID); err != nil {
			return mapRepoErr(err)
		}

		return s.cascade.OnTransactionDeleted(ctx, tx)
	})
}

// GetPerformance returns the owner's stored series within the optional bounds.
func (s *JournalService) GetPerformance(ctx context.Context, chatID int64, kind model.OwnerKind, ownerID int64, from, to *time.Time) (report model.PerformanceReport, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "JournalService.GetPerformance"

	slog.Debug("GetPerformance start", slog.String("rqID", rqID), slog.String("op", op), slog.String("kind", string(kind)), slog.Int64("ownerID", ownerID))
	defer func() {
		slog.Debug("GetPerformance finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int("rows", len(report.Series)))
	}()

	store, ok := s.series[kind]
	if !ok {
		return model.PerformanceReport{}, fmt.Errorf("%w: unknown owner kind %q", service.ErrNotFound, kind)
	}

	userID, err := s.getUserID(ctx, chatID)
	if err != nil {
		return model.PerformanceReport{}, err
	}

	name, err := s.ownerName(ctx, userID, kind, ownerID)
	if err != nil {
		return model.PerformanceReport{}, err
	}

	series, err := store.GetSeries(ctx, ownerID, from, to)
	if err != nil {
		slog.Error("got error from store.GetSeries", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PerformanceReport{}, err
	}

	return model.PerformanceReport{OwnerKind: kind, OwnerID: ownerID, OwnerName: name, Series: series}, nil
}

// ExportReport builds an xlsx with the owner's whole series. Files over the telegram limit are uploaded
// to the cloud storage and only the link is returned.
func (s *JournalService) ExportReport(ctx context.Context, chatID int64, kind model.OwnerKind, ownerID int64) (model.ReportFile, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "JournalService.ExportReport"

	report, err := s.GetPerformance(ctx, chatID, kind, ownerID, nil, nil)
	if err != nil {
		return model.ReportFile{}, err
	}

	fileBytes, ext, err := s.reportGenerator.Generate(ctx, []model.PerformanceReport{report})
	if err != nil {
		slog.Error("got error from reportGenerator.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.ReportFile{}, err
	}

	fileName := fmt.Sprintf("%s_%d_%s%s", kind, ownerID, s.clock.Now().Format(utils.DateLayout), ext)

	limit := s.cfg.Telegram.FileLimitInBytes
	if limit <= 0 || len(fileBytes) <= limit {
		return model.ReportFile{Name: fileName, Bytes: fileBytes}, nil
	}

	slog.Info("report exceeds telegram limit, uploading to cloud", slog.String("rqID", rqID), slog.String("op", op), slog.Int("bytes", len(fileBytes)))

	link, err := s.cloudStorage.UploadFile(ctx, bytes.NewReader(fileBytes), fileName)
	if err != nil {
		slog.Error("got error from cloudStorage.UploadFile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.ReportFile{}, err
	}

	return model.ReportFile{Name: fileName, Link: link}, nil
}

func (s *JournalService) DeleteOldReports(ctx context.Context) error {
	return s.cloudStorage.DeleteOldFiles(ctx)
}

func (s *JournalService) validate(tx model.Transaction) error {
	switch {
	case !tx.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", service.ErrInvalidTransaction, tx.Type)
	case tx.Ticker == "":
		return fmt.Errorf("%w: empty ticker", service.ErrInvalidTransaction)
	case tx.Date.IsZero():
		return fmt.Errorf("%w: empty date", service.ErrInvalidTransaction)
	case tx.Date.After(utils.Day(s.clock.Now())):
		return fmt.Errorf("%w: date is in the future", service.ErrInvalidTransaction)
	case !tx.Shares.IsPositive():
		return fmt.Errorf("%w: shares must be positive", service.ErrInvalidTransaction)
	case tx.PricePerShare.IsNegative():
		return fmt.Errorf("%w: price must not be negative", service.ErrInvalidTransaction)
	case tx.Fees.IsNegative():
		return fmt.Errorf("%w: fees must not be negative", service.ErrInvalidTransaction)
	}
	return nil
}

// checkOwnerHoldings validates the ticker's trades of the portfolio and, for a linked trade,
// of its account after change is applied to each history.
func (s *JournalService) checkOwnerHoldings(ctx context.Context, tx model.Transaction, change func([]model.Transaction) []model.Transaction) error {
	history, err := s.repo.GetPortfolioTickerTransactions(ctx, tx.PortfolioID, tx.Ticker)
	if err != nil {
		return err
	}
	if err = checkHoldings(change(history)); err != nil {
		return err
	}

	if tx.AccountID == nil {
		return nil
	}

	history, err = s.repo.GetAccountTickerTransactions(ctx, *tx.AccountID, tx.Ticker)
	if err != nil {
		return err
	}
	if err = checkHoldings(change(history)); err != nil {
		return fmt.Errorf("account %d: %w", *tx.AccountID, err)
	}

	return nil
}

// checkHoldings replays one ticker's trades in date order and fails if a sell exceeds the shares held on its day.
func checkHoldings(txs []model.Transaction) error {
	sorted := make([]model.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utils.Day(sorted[i].Date).Before(utils.Day(sorted[j].Date))
	})

	quantity := decimal.Zero
	for _, tx := range sorted {
		switch tx.Type {
		case model.TransactionBuy:
			quantity = quantity.Add(tx.Shares)
		case model.TransactionSell:
			quantity = quantity.Sub(tx.Shares)
		}
		if quantity.IsNegative() {
			return fmt.Errorf("%w: selling more %s than held on %s", service.ErrInvalidTransaction, tx.Ticker, tx.Date.Format(utils.DateLayout))
		}
	}
	return nil
}

func withoutTransaction(txs []model.Transaction, transactionID int64) []model.Transaction {
	res := make([]model.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.TransactionID != transactionID {
			res = append(res, tx)
		}
	}
	return res
}

func (s *JournalService) getUserID(ctx context.Context, chatID int64) (int64, error) {
	userID, err := s.repo.GetUserID(ctx, chatID)
	if err != nil {
		slog.Error("got error from repo.GetUserID", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("err", err.Error()))
		return 0, mapRepoErr(err)
	}
	return userID, nil
}

// ownerName checks that the owner exists and belongs to userID.
func (s *JournalService) ownerName(ctx context.Context, userID int64, kind model.OwnerKind, ownerID int64) (string, error) {
	var (
		ownerUserID int64
		name        string
	)

	switch kind {
	case model.OwnerPortfolio:
		portfolio, err := s.repo.GetPortfolio(ctx, ownerID)
		if err != nil {
			return "", mapRepoErr(err)
		}
		ownerUserID, name = portfolio.UserID, portfolio.Name
	case model.OwnerAccount:
		account, err := s.repo.GetAccount(ctx, ownerID)
		if err != nil {
			return "", mapRepoErr(err)
		}
		ownerUserID, name = account.UserID, account.Name
	case model.OwnerBrokerage:
		brokerage, err := s.repo.GetBrokerage(ctx, ownerID)
		if err != nil {
			return "", mapRepoErr(err)
		}
		ownerUserID, name = brokerage.UserID, brokerage.Name
	default:
		return "", fmt.Errorf("%w: unknown owner kind %q", service.ErrNotFound, kind)
	}

	if ownerUserID != userID {
		return "", service.ErrForbidden
	}

	return name, nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}
