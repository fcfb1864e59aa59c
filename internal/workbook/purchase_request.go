package workbook

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	PurchaseRequestTemplate = "purchase_request_template.xlsx"
	PurchaseRequestFilename = "purchase_request.xlsx"
)

// Purchase request template layout, one Receipt{n} tab per form
const (
	cellDate          = "B1"
	cellCurrency      = "D1"
	cellName          = "B3"
	cellETransfer     = "D3"
	cellTeam          = "B4"
	cellVendor        = "B7"
	cellRateLabel     = "C7"
	cellRate          = "D7"
	cellAddress       = "B32"
	cellSubtotal      = "F24"
	cellTaxLabel      = "E25"
	cellTax           = "F25"
	cellShipping      = "F26"
	cellTotal         = "F27"
	cellPRSignature   = "B33"
	itemRowStart      = 9
	maxItemRows       = 15
	prSignatureWidth  = 280
	prSignatureHeight = 70
)

// PurchaseRequestFiller writes every record onto its Receipt tab of the
// purchase request template.
type PurchaseRequestFiller struct {
	templateDir string
	signature   SignatureInserter
	now         func() time.Time
	logger      *zap.Logger
}

// NewPurchaseRequestFiller creates a PurchaseRequestFiller reading templates from templateDir
func NewPurchaseRequestFiller(templateDir string, signature SignatureInserter, logger *zap.Logger) *PurchaseRequestFiller {
	return &PurchaseRequestFiller{
		templateDir: templateDir,
		signature:   signature,
		now:         time.Now,
		logger:      logger,
	}
}

// Fill generates purchase_request.xlsx in folder. A missing template is an
// error; a record without a matching tab is skipped with a warning.
func (f *PurchaseRequestFiller) Fill(user models.UserInfo, records []models.PurchaseFormRecord, folder string) (*Result, error) {
	file, err := openTemplate(templatePath(f.templateDir, PurchaseRequestTemplate))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	result := &Result{
		Filename: PurchaseRequestFilename,
		Path:     filepath.Join(folder, PurchaseRequestFilename),
	}
	today := f.now().Format(dateLayout)

	for i := range records {
		record := &records[i]
		tab := fmt.Sprintf("Receipt%d", record.FormNumber)

		if index, err := file.GetSheetIndex(tab); err != nil || index < 0 {
			f.logger.Warn("Tab not found in template, skipping form",
				zap.String("tab", tab),
				zap.Int("form_number", record.FormNumber))
			continue
		}

		w := &sheetWriter{file: file, sheet: tab, logger: f.logger}
		f.fillHeader(w, user, record, today)
		f.fillItems(w, record)
		f.fillTotals(w, record)

		if f.signature != nil && f.signature.InsertAtCell(w, folder, cellPRSignature, prSignatureWidth, prSignatureHeight) {
			result.SignatureInserted = true
		}

		result.TabsUsed = append(result.TabsUsed, tab)
		result.FormsProcessed++
	}

	if err := file.SaveAs(result.Path); err != nil {
		return nil, fmt.Errorf("failed to save purchase request: %w", err)
	}

	f.logger.Info("Purchase request generated",
		zap.String("output_path", result.Path),
		zap.Int("forms_processed", result.FormsProcessed),
		zap.Strings("tabs_used", result.TabsUsed))

	return result, nil
}

func (f *PurchaseRequestFiller) fillHeader(w *sheetWriter, user models.UserInfo, record *models.PurchaseFormRecord, today string) {
	w.set(cellDate, today)
	w.set(cellCurrency, string(record.Currency))
	w.set(cellName, user.Name)
	w.set(cellETransfer, user.ETransferEmail)
	w.set(cellTeam, user.Team)
	w.set(cellVendor, record.VendorName)
	w.set(cellAddress, user.Address)
}

func (f *PurchaseRequestFiller) fillItems(w *sheetWriter, record *models.PurchaseFormRecord) {
	items := record.Items
	if len(items) > maxItemRows {
		f.logger.Warn("Item count exceeds template capacity, truncating",
			zap.Int("form_number", record.FormNumber),
			zap.Int("total_items", len(items)),
			zap.Int("max_items", maxItemRows))
		items = items[:maxItemRows]
	}

	for i, item := range items {
		row := itemRowStart + i
		w.setRow("B", row, item.Name)
		w.setRow("C", row, item.Usage)
		w.setRow("D", row, item.Quantity)
		w.setRow("E", row, item.UnitPrice)
		w.setRow("F", row, item.Total)
	}
}

func (f *PurchaseRequestFiller) fillTotals(w *sheetWriter, record *models.PurchaseFormRecord) {
	if record.IsUSD() {
		w.set(cellTaxLabel, "Taxes")
		w.set(cellSubtotal, record.USD.USTotal)
		w.set(cellTax, record.USD.Taxes)
		w.set(cellShipping, decimal.Zero)
		w.set(cellTotal, record.USD.CanadianAmount)
		w.set(cellRateLabel, "Conversion Rate")
		w.set(cellRate, record.ConversionRate())
		return
	}

	w.set(cellTaxLabel, "HST/GST")
	w.set(cellSubtotal, record.CAD.Subtotal)
	w.set(cellTax, record.CAD.HSTGST)
	w.set(cellShipping, record.CAD.Shipping)
	w.set(cellTotal, record.CAD.Total)
}
