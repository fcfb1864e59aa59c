package submission

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// MaxForms is the number of form slots read from a submission
	MaxForms = 10
	// MaxItemsPerForm bounds the item scan within one form
	MaxItemsPerForm = 50
	// DefaultFileExtension is used for uploads whose name has no extension
	DefaultFileExtension = "pdf"
)

// Result is the parsed submission
type Result struct {
	Records  []models.PurchaseFormRecord
	Outcomes []FormOutcome
}

// Total is the CAD reimbursement across all included records
func (r *Result) Total() decimal.Decimal {
	return models.TotalReimbursement(r.Records)
}

// Assembler rebuilds purchase form records from flat submission fields
type Assembler struct {
	storage storage.FileStorage
	logger  *zap.Logger
}

// NewAssembler creates an Assembler that persists uploads through fileStorage
func NewAssembler(fileStorage storage.FileStorage, logger *zap.Logger) *Assembler {
	return &Assembler{
		storage: fileStorage,
		logger:  logger,
	}
}

// Parse reads form slots 1..MaxForms in order. Incomplete forms and items are
// skipped and reported in Outcomes; the returned error is reserved for
// failures persisting uploads into sessionFolder.
func (a *Assembler) Parse(fields Fields, sessionFolder string) (*Result, error) {
	result := &Result{}

	for n := 1; n <= MaxForms; n++ {
		record, outcome, ok := a.parseForm(fields, n)
		if !ok {
			continue
		}
		if outcome.Outcome != Included {
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		if err := a.persistUploads(fields, n, sessionFolder, record); err != nil {
			return nil, err
		}

		result.Records = append(result.Records, *record)
		result.Outcomes = append(result.Outcomes, outcome)
	}

	a.logger.Info("Parsed submission",
		zap.Int("forms_included", len(result.Records)),
		zap.Int("forms_seen", len(result.Outcomes)),
		zap.String("total_reimbursement", result.Total().StringFixed(2)))

	return result, nil
}

// parseForm builds the record for form n without touching the filesystem.
// ok is false for an untouched slot.
func (a *Assembler) parseForm(fields Fields, n int) (*models.PurchaseFormRecord, FormOutcome, bool) {
	vendor := fields.Value(formKey("vendor_name", n))
	invoice := fields.File(formKey("invoice_file", n))
	proof := fields.File(formKey("proof_of_payment", n))
	currency := models.ParseCurrency(fields.Value(formKey("currency", n)))

	outcome := FormOutcome{FormNumber: n}

	if vendor == "" && invoice == nil {
		a.logger.Debug("Form slot is empty", zap.Int("form_number", n))
		return nil, outcome, false
	}

	if vendor == "" || invoice == nil {
		a.logger.Debug("Skipping form without vendor name or invoice", zap.Int("form_number", n))
		outcome.Outcome = SkippedMissingFields
		outcome.Reason = "vendor name and invoice are required"
		return nil, outcome, true
	}

	if currency == models.CurrencyUSD && proof == nil {
		a.logger.Warn("USD form missing proof of payment, skipping", zap.Int("form_number", n))
		outcome.Outcome = SkippedCurrencyPolicy
		outcome.Reason = "proof of payment is required for USD purchases"
		return nil, outcome, true
	}

	record := &models.PurchaseFormRecord{
		FormNumber: n,
		VendorName: vendor,
		Currency:   currency,
	}

	if err := a.readAmounts(fields, n, record); err != nil {
		a.logger.Warn("Skipping form with malformed amount",
			zap.Int("form_number", n),
			zap.Error(err))
		outcome.Outcome = SkippedMissingFields
		outcome.Reason = err.Error()
		return nil, outcome, true
	}

	record.Items = a.readItems(fields, n)
	if len(record.Items) == 0 {
		a.logger.Debug("Skipping form without items", zap.Int("form_number", n))
		outcome.Outcome = SkippedMissingFields
		outcome.Reason = "at least one complete item is required"
		return nil, outcome, true
	}

	outcome.Outcome = Included
	return record, outcome, true
}

// readAmounts fills the amount set for the record's currency. The other set
// stays zero.
func (a *Assembler) readAmounts(fields Fields, n int, record *models.PurchaseFormRecord) error {
	read := func(name string, dst *decimal.Decimal) error {
		value, err := parseAmount(fields.Value(formKey(name, n)))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = value
		return nil
	}

	type amountField struct {
		name string
		dst  *decimal.Decimal
	}

	amounts := []amountField{
		{"subtotal_amount", &record.CAD.Subtotal},
		{"discount_amount", &record.CAD.Discount},
		{"hst_gst_amount", &record.CAD.HSTGST},
		{"shipping_amount", &record.CAD.Shipping},
		{"total_amount", &record.CAD.Total},
	}
	if record.IsUSD() {
		amounts = []amountField{
			{"us_total", &record.USD.USTotal},
			{"usd_taxes", &record.USD.Taxes},
			{"canadian_amount", &record.USD.CanadianAmount},
		}
	}

	for _, field := range amounts {
		if err := read(field.name, field.dst); err != nil {
			return err
		}
	}
	return nil
}

// readItems collects items 1.. until the first missing name. Items lacking
// usage, quantity or price are dropped individually.
func (a *Assembler) readItems(fields Fields, n int) []models.LineItem {
	var items []models.LineItem

	for m := 1; m <= MaxItemsPerForm; m++ {
		name := fields.Value(itemKey("item_name", n, m))
		if name == "" {
			a.logger.Debug("End of item list", zap.Int("form_number", n), zap.Int("item_number", m))
			break
		}

		item, err := parseItem(fields, n, m, name)
		if err != nil {
			a.logger.Debug("Skipping incomplete item",
				zap.Int("form_number", n),
				zap.Int("item_number", m),
				zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	return items
}

func parseItem(fields Fields, n, m int, name string) (models.LineItem, error) {
	usage := fields.Value(itemKey("item_usage", n, m))
	quantityText := fields.Value(itemKey("item_quantity", n, m))
	priceText := fields.Value(itemKey("item_price", n, m))

	if usage == "" || quantityText == "" || priceText == "" {
		return models.LineItem{}, fmt.Errorf("usage, quantity and price are required")
	}

	quantity, err := strconv.Atoi(quantityText)
	if err != nil || quantity <= 0 {
		return models.LineItem{}, fmt.Errorf("invalid quantity %q", quantityText)
	}

	price, err := parseAmount(priceText)
	if err != nil || price.IsNegative() {
		return models.LineItem{}, fmt.Errorf("invalid price %q", priceText)
	}

	total, err := parseAmount(fields.Value(itemKey("item_total", n, m)))
	if err != nil {
		return models.LineItem{}, fmt.Errorf("invalid total: %w", err)
	}

	return models.LineItem{
		Name:      name,
		Usage:     usage,
		Quantity:  quantity,
		UnitPrice: price,
		Total:     total,
	}, nil
}

// persistUploads writes the invoice, and the proof of payment when present,
// into the session folder and records their locations.
func (a *Assembler) persistUploads(fields Fields, n int, sessionFolder string, record *models.PurchaseFormRecord) error {
	invoice := fields.File(formKey("invoice_file", n))
	name := fmt.Sprintf("%d_%s.%s", n, vendorFileStem(record.VendorName), storage.FileExtension(invoice.Filename(), DefaultFileExtension))
	stored, err := a.persist(invoice, sessionFolder, name)
	if err != nil {
		return fmt.Errorf("failed to save invoice for form %d: %w", n, err)
	}
	record.Invoice = *stored

	proof := fields.File(formKey("proof_of_payment", n))
	if proof == nil {
		return nil
	}

	name = fmt.Sprintf("%d_proof_of_payment.%s", n, storage.FileExtension(proof.Filename(), DefaultFileExtension))
	stored, err = a.persist(proof, sessionFolder, name)
	if err != nil {
		return fmt.Errorf("failed to save proof of payment for form %d: %w", n, err)
	}
	record.ProofOfPayment = stored
	return nil
}

func (a *Assembler) persist(file UploadedFile, sessionFolder, filename string) (*models.StoredFile, error) {
	content, err := file.Read()
	if err != nil {
		return nil, err
	}

	location := filepath.Join(sessionFolder, filename)
	if err := a.storage.SaveFile(location, content); err != nil {
		return nil, err
	}

	a.logger.Debug("Saved upload",
		zap.String("filename", filename),
		zap.String("original_name", file.Filename()))
	return &models.StoredFile{Filename: filename, Location: location}, nil
}

func vendorFileStem(vendor string) string {
	stem := strings.ReplaceAll(storage.SanitizeFileName(vendor), ".", "")
	if stem == "" {
		return "vendor"
	}
	return stem
}

// parseAmount reads a money value; empty means zero.
func parseAmount(value string) (decimal.Decimal, error) {
	value = strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(value), "$"), ",", "")
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

func formKey(field string, n int) string {
	return fmt.Sprintf("%s_%d", field, n)
}

func itemKey(field string, n, m int) string {
	return fmt.Sprintf("%s_%d_%d", field, n, m)
}
