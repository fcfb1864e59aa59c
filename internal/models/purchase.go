package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency of a vendor invoice
type Currency string

const (
	CurrencyCAD Currency = "CAD"
	CurrencyUSD Currency = "USD"
)

// ParseCurrency maps a submitted currency value to a Currency.
// Anything other than USD is treated as CAD, the form default.
func ParseCurrency(value string) Currency {
	if strings.EqualFold(strings.TrimSpace(value), string(CurrencyUSD)) {
		return CurrencyUSD
	}
	return CurrencyCAD
}

// LineItem is one purchased item within a form
type LineItem struct {
	Name      string          `json:"name"`
	Usage     string          `json:"usage"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"` // as submitted, never recomputed
}

// CADAmounts are the financial fields entered for a CAD invoice
type CADAmounts struct {
	Subtotal decimal.Decimal `json:"subtotal_amount"`
	Discount decimal.Decimal `json:"discount_amount"`
	HSTGST   decimal.Decimal `json:"hst_gst_amount"`
	Shipping decimal.Decimal `json:"shipping_amount"`
	Total    decimal.Decimal `json:"total_amount"`
}

// USDAmounts are the financial fields entered for a USD invoice.
// CanadianAmount is the converted reimbursement the submitter is owed.
type USDAmounts struct {
	USTotal        decimal.Decimal `json:"us_total"`
	Taxes          decimal.Decimal `json:"usd_taxes"`
	CanadianAmount decimal.Decimal `json:"canadian_amount"`
}

// StoredFile points at an upload persisted in the session folder
type StoredFile struct {
	Filename string `json:"filename"`
	Location string `json:"location"`
}

// PurchaseFormRecord is one vendor invoice within a submission.
// Only the amount set matching Currency carries values; the other is zero.
type PurchaseFormRecord struct {
	FormNumber     int         `json:"form_number"`
	VendorName     string      `json:"vendor_name"`
	Currency       Currency    `json:"currency"`
	Items          []LineItem  `json:"items"`
	CAD            CADAmounts  `json:"cad"`
	USD            USDAmounts  `json:"usd"`
	Invoice        StoredFile  `json:"invoice"`
	ProofOfPayment *StoredFile `json:"proof_of_payment,omitempty"`
}

// IsUSD reports whether the invoice was paid in US dollars
func (r *PurchaseFormRecord) IsUSD() bool {
	return r.Currency == CurrencyUSD
}

// ReimbursementAmount is the CAD amount owed for this record
func (r *PurchaseFormRecord) ReimbursementAmount() decimal.Decimal {
	if r.IsUSD() {
		return r.USD.CanadianAmount
	}
	return r.CAD.Total
}

// TaxAmount is the tax line for the record's currency
func (r *PurchaseFormRecord) TaxAmount() decimal.Decimal {
	if r.IsUSD() {
		return r.USD.Taxes
	}
	return r.CAD.HSTGST
}

// ConversionRate is CanadianAmount / USTotal rounded to 4 places, or zero
// when either side is not positive or the record is not USD.
func (r *PurchaseFormRecord) ConversionRate() decimal.Decimal {
	if !r.IsUSD() || !r.USD.USTotal.IsPositive() || !r.USD.CanadianAmount.IsPositive() {
		return decimal.Zero
	}
	return r.USD.CanadianAmount.DivRound(r.USD.USTotal, 4)
}

// Valid reports whether the record satisfies the assembled-record invariant.
func (r *PurchaseFormRecord) Valid() bool {
	return r.VendorName != "" &&
		r.Invoice.Location != "" &&
		len(r.Items) > 0 &&
		(!r.IsUSD() || r.ProofOfPayment != nil)
}

// TotalReimbursement sums the CAD reimbursement across records
func TotalReimbursement(records []PurchaseFormRecord) decimal.Decimal {
	total := decimal.Zero
	for i := range records {
		total = total.Add(records[i].ReimbursementAmount())
	}
	return total
}
