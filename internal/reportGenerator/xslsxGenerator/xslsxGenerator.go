package xslsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/KotFed0t/invest_performance/internal/model"
	"github.com/KotFed0t/invest_performance/utils"
	"github.com/xuri/excelize/v2"
)

const (
	// лимит excel на длину имени листа
	maxSheetNameLen = 31
	headerRows      = 2
)

var ownerKindTitles = map[model.OwnerKind]string{
	model.OwnerPortfolio: "Портфель",
	model.OwnerAccount:   "Счет",
	model.OwnerBrokerage: "Брокер",
}

var columnTitles = []string{"дата", "вложено", "зафиксировано", "текущая стоимость", "нереализованная прибыль"}

type XSLSXGenerator struct{}

func New() *XSLSXGenerator {
	return &XSLSXGenerator{}
}

// Generate writes one sheet per report with the daily series.
func (g *XSLSXGenerator) Generate(ctx context.Context, reports []model.PerformanceReport) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.Generate"

	if len(reports) == 0 {
		return nil, "", errors.New("empty reports")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("reports", len(reports)))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"#cfe2f3"}, // Светло-голубой цвет
		},
	})
	if err != nil {
		return nil, "", err
	}

	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, "", err
	}

	for i, report := range reports {
		err = g.fillSheet(ctx, f, report, i+1, headerStyle, moneyStyle)
		if err != nil {
			return nil, "", err
		}
	}

	// Удаляем лист по умолчанию "Sheet1"
	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while Saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("bytes", buf.Len()))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XSLSXGenerator) fillSheet(ctx context.Context, f *excelize.File, report model.PerformanceReport, ordinal, headerStyle, moneyStyle int) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.fillSheet"

	sheetName := SheetName(ordinal, report.OwnerName)
	_, err := f.NewSheet(sheetName)
	if err != nil {
		slog.Error("got error while creating NewSheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	lastColumn, err := excelize.ColumnNumberToName(len(columnTitles))
	if err != nil {
		return err
	}

	if err = f.MergeCell(sheetName, "A1", lastColumn+"1"); err != nil {
		return err
	}
	_ = f.SetCellStr(sheetName, "A1", fmt.Sprintf("%s: %s", ownerKindTitles[report.OwnerKind], report.OwnerName))
	if err = f.SetCellStyle(sheetName, "A1", "A1", headerStyle); err != nil {
		return fmt.Errorf("ошибка применения стиля: %w", err)
	}

	if err = f.SetSheetRow(sheetName, "A2", &columnTitles); err != nil {
		return err
	}

	for i, row := range report.Series {
		cell := fmt.Sprintf("A%d", i+headerRows+1)
		values := []any{
			row.Date.Format(utils.DateLayout),
			row.Invested.InexactFloat64(),
			row.Realized.InexactFloat64(),
			row.CurrentValue.InexactFloat64(),
			row.Unrealized().InexactFloat64(),
		}
		if err = f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}

	if len(report.Series) > 0 {
		lastRow := len(report.Series) + headerRows
		if err = f.SetCellStyle(sheetName, "B3", fmt.Sprintf("%s%d", lastColumn, lastRow), moneyStyle); err != nil {
			return fmt.Errorf("ошибка применения стиля: %w", err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", lastColumn, 20)

	return nil
}

// SheetName builds a unique excel-safe sheet name.
func SheetName(ordinal int, ownerName string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, fmt.Sprintf("%d. %s", ordinal, ownerName))

	for utf8.RuneCountInString(name) > maxSheetNameLen {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}

	return name
}
