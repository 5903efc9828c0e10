package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/donahelp/fluxo-sync-go/internal/domain"
	"github.com/donahelp/fluxo-sync-go/internal/service"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var exportHeaders = []string{
	"Data", "Tipo", "Descrição", "Categoria", "Valor Bruto", "Forma Pagamento",
	"Taxa Cartão (R$)", "Simples Nacional (R$)", "Repasse Prestador (R$)", "Valor Líquido",
}

var paymentMethodLabels = map[domain.PaymentMethod]string{
	domain.PaymentPix:    "Pix",
	domain.PaymentMoney:  "Dinheiro",
	domain.PaymentCredit: "Crédito",
	domain.PaymentDebit:  "Débito",
}

// GET /v1/export/excel
// Builds a workbook with one sheet per month (newest first, matching
// the ledger order) and streams it as an attachment.
func exportExcelHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/export/excel")
		defer span.End()

		txs, err := svc.ListTransactions(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		f, err := buildWorkbook(txs)
		if err != nil {
			logger.Error("build export workbook", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to build workbook")
			return
		}
		defer f.Close()

		filename := fmt.Sprintf("fluxo-de-caixa_%s.xlsx", time.Now().Format("2006-01-02"))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", filename))

		if err := f.Write(w); err != nil {
			logger.Error("stream export workbook", zap.Error(err))
		}
	}
}

func buildWorkbook(txs []domain.Transaction) (*excelize.File, error) {
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}
	summaryStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}

	// Transactions arrive newest date first, so months come out newest
	// first as well.
	var months []string
	byMonth := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		month := tx.Date
		if len(month) >= 7 {
			month = month[:7]
		}
		if _, ok := byMonth[month]; !ok {
			months = append(months, month)
		}
		byMonth[month] = append(byMonth[month], tx)
	}
	if len(months) == 0 {
		months = []string{time.Now().Format("2006-01")}
		byMonth[months[0]] = nil
	}

	for i, month := range months {
		sheet := month
		if i == 0 {
			f.SetSheetName("Sheet1", sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, err
			}
		}

		f.SetColWidth(sheet, "A", "A", 12)
		f.SetColWidth(sheet, "B", "B", 10)
		f.SetColWidth(sheet, "C", "C", 32)
		f.SetColWidth(sheet, "D", "F", 16)
		f.SetColWidth(sheet, "G", "J", 18)

		for col, header := range exportHeaders {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			f.SetCellValue(sheet, cell, header)
			f.SetCellStyle(sheet, cell, cell, headerStyle)
		}

		var net float64
		for rowIdx, tx := range byMonth[month] {
			row := rowIdx + 2
			tax, card, payout := tx.Deductions()

			kind := "Despesa"
			lineNet := -tx.Amount
			if tx.IsIncome() {
				kind = "Receita"
				lineNet = tx.Amount - tax - card - payout
			}
			net += lineNet

			values := []any{
				tx.Date, kind, tx.Description, tx.Category, tx.Amount,
				paymentMethodLabels[tx.PaymentMethod], card, tax, payout, lineNet,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				f.SetCellValue(sheet, cell, v)
			}
		}

		summaryRow := len(byMonth[month]) + 2
		first, _ := excelize.CoordinatesToCellName(1, summaryRow)
		last, _ := excelize.CoordinatesToCellName(len(exportHeaders), summaryRow)
		netCell, _ := excelize.CoordinatesToCellName(len(exportHeaders), summaryRow)
		labelEnd, _ := excelize.CoordinatesToCellName(len(exportHeaders)-1, summaryRow)

		f.SetCellValue(sheet, first, "Saldo do mês")
		f.MergeCell(sheet, first, labelEnd)
		f.SetCellValue(sheet, netCell, net)
		f.SetCellStyle(sheet, first, last, summaryStyle)
	}

	return f, nil
}
