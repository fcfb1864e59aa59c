package workbook

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const ExpenseReportTemplate = "expense_report_template.xlsx"

// Expense report layout on the active sheet
const (
	cellERName        = "C2"
	cellERDate        = "F2"
	cellEREmail       = "C3"
	cellERAddress     = "F3"
	cellERSignature   = "A19"
	expenseRowStart   = 6
	erSignatureWidth  = 200
	erSignatureHeight = 60
)

// ExpenseReportFiller writes one summary row per record onto the expense report template
type ExpenseReportFiller struct {
	templateDir string
	signature   SignatureInserter
	now         func() time.Time
	logger      *zap.Logger
}

// NewExpenseReportFiller creates an ExpenseReportFiller reading templates from templateDir
func NewExpenseReportFiller(templateDir string, signature SignatureInserter, logger *zap.Logger) *ExpenseReportFiller {
	return &ExpenseReportFiller{
		templateDir: templateDir,
		signature:   signature,
		now:         time.Now,
		logger:      logger,
	}
}

// ExpenseReportFilename is "{Month}{day}-{year}-ExpenseReport-{PascalName}.xlsx"
func ExpenseReportFilename(userName string, at time.Time) string {
	name := utils.PascalCase(userName)
	if name == "" {
		name = "UnknownUser"
	}
	return fmt.Sprintf("%s%d-%d-ExpenseReport-%s.xlsx", at.Month().String(), at.Day(), at.Year(), name)
}

// Fill generates the expense report in folder
func (f *ExpenseReportFiller) Fill(user models.UserInfo, records []models.PurchaseFormRecord, folder string) (*Result, error) {
	file, err := openTemplate(templatePath(f.templateDir, ExpenseReportTemplate))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	now := f.now()
	filename := ExpenseReportFilename(user.Name, now)
	result := &Result{
		Filename: filename,
		Path:     filepath.Join(folder, filename),
	}

	sheet := file.GetSheetName(file.GetActiveSheetIndex())
	w := &sheetWriter{file: file, sheet: sheet, logger: f.logger}
	today := now.Format(dateLayout)

	w.set(cellERName, user.Name)
	w.set(cellERDate, today)
	w.set(cellEREmail, user.Email)
	w.set(cellERAddress, user.Address)

	for i := range records {
		record := &records[i]
		row := expenseRowStart + i

		w.setRow("B", row, today)
		w.setRow("C", row, record.VendorName)

		if record.IsUSD() {
			w.setRow("D", row, record.USD.USTotal)
			w.setRow("E", row, exchangeRate(record))
			w.setRow("F", row, record.USD.CanadianAmount)
			w.setRow("G", row, record.USD.CanadianAmount)
			w.setRow("H", row, decimal.Zero)
		} else {
			w.setRow("F", row, record.CAD.Subtotal.Sub(record.CAD.Discount))
			w.setRow("G", row, record.CAD.Total)
			w.setRow("H", row, record.CAD.HSTGST)
		}
		result.FormsProcessed++
	}

	if f.signature != nil {
		result.SignatureInserted = f.signature.InsertAtCell(w, folder, cellERSignature, erSignatureWidth, erSignatureHeight)
	}

	if err := file.SaveAs(result.Path); err != nil {
		return nil, fmt.Errorf("failed to save expense report: %w", err)
	}

	f.logger.Info("Expense report generated",
		zap.String("output_path", result.Path),
		zap.Int("rows", result.FormsProcessed))

	return result, nil
}

// exchangeRate is canadian/us_total unrounded, or zero unless both are positive
func exchangeRate(record *models.PurchaseFormRecord) decimal.Decimal {
	if !record.USD.USTotal.IsPositive() || !record.USD.CanadianAmount.IsPositive() {
		return decimal.Zero
	}
	return record.USD.CanadianAmount.Div(record.USD.USTotal)
}
