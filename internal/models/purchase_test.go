package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTotalReimbursement(t *testing.T) {
	records := []PurchaseFormRecord{
		{FormNumber: 1, Currency: CurrencyCAD, CAD: CADAmounts{Total: decimal.NewFromInt(100)}},
		{
			FormNumber: 2,
			Currency:   CurrencyUSD,
			USD:        USDAmounts{USTotal: decimal.NewFromInt(40), CanadianAmount: decimal.NewFromInt(50)},
		},
	}

	assert.True(t, decimal.NewFromInt(150).Equal(TotalReimbursement(records)))
	assert.True(t, decimal.Zero.Equal(TotalReimbursement(nil)))
}

func TestPurchaseFormRecord_ConversionRate(t *testing.T) {
	tests := []struct {
		name     string
		record   PurchaseFormRecord
		expected string
	}{
		{
			name: "usd rate rounded to four places",
			record: PurchaseFormRecord{Currency: CurrencyUSD, USD: USDAmounts{
				USTotal: decimal.RequireFromString("30"), CanadianAmount: decimal.RequireFromString("41.23"),
			}},
			expected: "1.3743",
		},
		{
			name:     "zero us total",
			record:   PurchaseFormRecord{Currency: CurrencyUSD, USD: USDAmounts{CanadianAmount: decimal.NewFromInt(10)}},
			expected: "0",
		},
		{
			name:     "cad record",
			record:   PurchaseFormRecord{Currency: CurrencyCAD, CAD: CADAmounts{Total: decimal.NewFromInt(10)}},
			expected: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.record.ConversionRate().String())
		})
	}
}

func TestPurchaseFormRecord_Valid(t *testing.T) {
	base := PurchaseFormRecord{
		VendorName: "Digikey",
		Currency:   CurrencyCAD,
		Items:      []LineItem{{Name: "Resistor", Usage: "Board", Quantity: 1}},
		Invoice:    StoredFile{Filename: "1_Digikey.pdf", Location: "/tmp/1_Digikey.pdf"},
	}
	assert.True(t, base.Valid())

	usd := base
	usd.Currency = CurrencyUSD
	assert.False(t, usd.Valid())

	usd.ProofOfPayment = &StoredFile{Filename: "1_proof_of_payment.png", Location: "/tmp/1_proof_of_payment.png"}
	assert.True(t, usd.Valid())

	noItems := base
	noItems.Items = nil
	assert.False(t, noItems.Valid())
}

func TestParseCurrency(t *testing.T) {
	assert.Equal(t, CurrencyUSD, ParseCurrency("USD"))
	assert.Equal(t, CurrencyUSD, ParseCurrency(" usd "))
	assert.Equal(t, CurrencyCAD, ParseCurrency(""))
	assert.Equal(t, CurrencyCAD, ParseCurrency("CAD"))
	assert.Equal(t, CurrencyCAD, ParseCurrency("EUR"))
}

func TestUser_ProfileComplete(t *testing.T) {
	user := &User{
		Name: "Jane Doe", Email: "doej@mcmaster.ca", PersonalEmail: "jane@example.com",
		Address: "1280 Main St W", Team: "Electrical", SignatureData: []byte{0x89, 'P', 'N', 'G'},
	}
	assert.True(t, user.ProfileComplete())

	user.Team = "   "
	assert.False(t, user.ProfileComplete())

	var missing *User
	assert.False(t, missing.ProfileComplete())
}
