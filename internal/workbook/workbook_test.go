package workbook

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/signature"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var testUser = models.UserInfo{
	Name:           "Jane Doe",
	Email:          "doej@mcmaster.ca",
	ETransferEmail: "jane@example.com",
	Address:        "1280 Main St W",
	Team:           "Electrical",
}

var testNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

// writeTemplates creates minimal purchase request and expense report
// templates. The purchase request has tabs Receipt1..Receipt{tabs}.
func writeTemplates(t *testing.T, tabs int) string {
	t.Helper()
	dir := t.TempDir()

	pr := excelize.NewFile()
	require.NoError(t, pr.SetSheetName("Sheet1", "Receipt1"))
	for i := 2; i <= tabs; i++ {
		_, err := pr.NewSheet(fmt.Sprintf("Receipt%d", i))
		require.NoError(t, err)
	}
	require.NoError(t, pr.SaveAs(filepath.Join(dir, PurchaseRequestTemplate)))
	require.NoError(t, pr.Close())

	er := excelize.NewFile()
	require.NoError(t, er.SetCellValue("Sheet1", "A1", "Expense Report"))
	require.NoError(t, er.SaveAs(filepath.Join(dir, ExpenseReportTemplate)))
	require.NoError(t, er.Close())

	return dir
}

func cadRecord(n int, vendor string) models.PurchaseFormRecord {
	return models.PurchaseFormRecord{
		FormNumber: n,
		VendorName: vendor,
		Currency:   models.CurrencyCAD,
		Items: []models.LineItem{{
			Name: "Resistor", Usage: "Power board", Quantity: 2,
			UnitPrice: decimal.RequireFromString("10.5"), Total: decimal.RequireFromString("21"),
		}},
		CAD: models.CADAmounts{
			Subtotal: decimal.NewFromInt(100),
			Discount: decimal.NewFromInt(5),
			HSTGST:   decimal.NewFromInt(13),
			Shipping: decimal.NewFromInt(7),
			Total:    decimal.NewFromInt(115),
		},
		Invoice: models.StoredFile{Filename: fmt.Sprintf("%d_%s.pdf", n, vendor)},
	}
}

func usdRecord(n int, vendor string) models.PurchaseFormRecord {
	return models.PurchaseFormRecord{
		FormNumber: n,
		VendorName: vendor,
		Currency:   models.CurrencyUSD,
		Items: []models.LineItem{{
			Name: "Sensor", Usage: "Telemetry", Quantity: 1,
			UnitPrice: decimal.NewFromInt(30), Total: decimal.NewFromInt(30),
		}},
		USD: models.USDAmounts{
			USTotal:        decimal.NewFromInt(30),
			Taxes:          decimal.RequireFromString("2.5"),
			CanadianAmount: decimal.RequireFromString("41.23"),
		},
		Invoice:        models.StoredFile{Filename: fmt.Sprintf("%d_%s.pdf", n, vendor)},
		ProofOfPayment: &models.StoredFile{Filename: fmt.Sprintf("%d_proof_of_payment.png", n)},
	}
}

type mockInserter struct {
	cells []string
	ok    bool
}

func (m *mockInserter) InsertAtCell(_ signature.ImageEmbedder, _ string, cell string, _, _ int) bool {
	m.cells = append(m.cells, cell)
	return m.ok
}

func cellValue(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, cell)
	require.NoError(t, err)
	return v
}

func TestPurchaseRequestFiller_Fill(t *testing.T) {
	templates := writeTemplates(t, 2)
	folder := t.TempDir()
	inserter := &mockInserter{ok: true}
	filler := NewPurchaseRequestFiller(templates, inserter, zap.NewNop())
	filler.now = func() time.Time { return testNow }

	records := []models.PurchaseFormRecord{cadRecord(1, "Digikey"), usdRecord(2, "Mouser"), cadRecord(5, "NoTab")}

	result, err := filler.Fill(testUser, records, folder)
	require.NoError(t, err)

	assert.Equal(t, PurchaseRequestFilename, result.Filename)
	assert.Equal(t, filepath.Join(folder, PurchaseRequestFilename), result.Path)
	assert.Equal(t, 2, result.FormsProcessed)
	assert.Equal(t, []string{"Receipt1", "Receipt2"}, result.TabsUsed)
	assert.True(t, result.SignatureInserted)
	assert.Equal(t, []string{"B33", "B33"}, inserter.cells)

	f, err := excelize.OpenFile(result.Path)
	require.NoError(t, err)
	defer f.Close()

	t.Run("header cells", func(t *testing.T) {
		assert.Equal(t, "2024-03-09", cellValue(t, f, "Receipt1", "B1"))
		assert.Equal(t, "CAD", cellValue(t, f, "Receipt1", "D1"))
		assert.Equal(t, "Jane Doe", cellValue(t, f, "Receipt1", "B3"))
		assert.Equal(t, "jane@example.com", cellValue(t, f, "Receipt1", "D3"))
		assert.Equal(t, "Electrical", cellValue(t, f, "Receipt1", "B4"))
		assert.Equal(t, "Digikey", cellValue(t, f, "Receipt1", "B7"))
		assert.Equal(t, "1280 Main St W", cellValue(t, f, "Receipt1", "B32"))
	})

	t.Run("item rows", func(t *testing.T) {
		assert.Equal(t, "Resistor", cellValue(t, f, "Receipt1", "B9"))
		assert.Equal(t, "Power board", cellValue(t, f, "Receipt1", "C9"))
		assert.Equal(t, "2", cellValue(t, f, "Receipt1", "D9"))
		assert.Equal(t, "10.5", cellValue(t, f, "Receipt1", "E9"))
		assert.Equal(t, "21", cellValue(t, f, "Receipt1", "F9"))
		assert.Empty(t, cellValue(t, f, "Receipt1", "B10"))
	})

	t.Run("cad totals", func(t *testing.T) {
		assert.Equal(t, "HST/GST", cellValue(t, f, "Receipt1", "E25"))
		assert.Equal(t, "100", cellValue(t, f, "Receipt1", "F24"))
		assert.Equal(t, "13", cellValue(t, f, "Receipt1", "F25"))
		assert.Equal(t, "7", cellValue(t, f, "Receipt1", "F26"))
		assert.Equal(t, "115", cellValue(t, f, "Receipt1", "F27"))
		assert.Empty(t, cellValue(t, f, "Receipt1", "C7"))
		assert.Empty(t, cellValue(t, f, "Receipt1", "D7"))
	})

	t.Run("usd totals", func(t *testing.T) {
		assert.Equal(t, "USD", cellValue(t, f, "Receipt2", "D1"))
		assert.Equal(t, "Taxes", cellValue(t, f, "Receipt2", "E25"))
		assert.Equal(t, "30", cellValue(t, f, "Receipt2", "F24"))
		assert.Equal(t, "2.5", cellValue(t, f, "Receipt2", "F25"))
		assert.Equal(t, "0", cellValue(t, f, "Receipt2", "F26"))
		assert.Equal(t, "41.23", cellValue(t, f, "Receipt2", "F27"))
		assert.Equal(t, "Conversion Rate", cellValue(t, f, "Receipt2", "C7"))
		assert.Equal(t, "1.3743", cellValue(t, f, "Receipt2", "D7"))
	})
}

func TestPurchaseRequestFiller_ItemCap(t *testing.T) {
	templates := writeTemplates(t, 1)
	filler := NewPurchaseRequestFiller(templates, nil, zap.NewNop())

	record := cadRecord(1, "Bulk")
	record.Items = nil
	for i := 1; i <= 16; i++ {
		record.Items = append(record.Items, models.LineItem{
			Name: fmt.Sprintf("Item %d", i), Usage: "Stock", Quantity: 1,
			UnitPrice: decimal.NewFromInt(1), Total: decimal.NewFromInt(1),
		})
	}

	result, err := filler.Fill(testUser, []models.PurchaseFormRecord{record}, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.SignatureInserted)

	f, err := excelize.OpenFile(result.Path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "Item 15", cellValue(t, f, "Receipt1", "B23"))
	assert.Empty(t, cellValue(t, f, "Receipt1", "B24"))
	assert.Equal(t, "100", cellValue(t, f, "Receipt1", "F24"))
}

func TestPurchaseRequestFiller_MissingTemplate(t *testing.T) {
	filler := NewPurchaseRequestFiller(t.TempDir(), nil, zap.NewNop())

	_, err := filler.Fill(testUser, []models.PurchaseFormRecord{cadRecord(1, "Digikey")}, t.TempDir())

	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestPurchaseRequestFiller_EmbedsSignature(t *testing.T) {
	templates := writeTemplates(t, 1)
	folder := t.TempDir()

	img := image.NewNRGBA(image.Rect(0, 0, 140, 35))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.Set(10, 10, color.Black)
	sig, err := os.Create(filepath.Join(folder, signature.ProcessedName))
	require.NoError(t, err)
	require.NoError(t, png.Encode(sig, img))
	require.NoError(t, sig.Close())

	normalizer := signature.NewNormalizer(signature.Config{}, zap.NewNop())
	filler := NewPurchaseRequestFiller(templates, normalizer, zap.NewNop())

	result, err := filler.Fill(testUser, []models.PurchaseFormRecord{cadRecord(1, "Digikey")}, folder)
	require.NoError(t, err)
	assert.True(t, result.SignatureInserted)

	f, err := excelize.OpenFile(result.Path)
	require.NoError(t, err)
	defer f.Close()

	pictures, err := f.GetPictures("Receipt1", "B33")
	require.NoError(t, err)
	assert.Len(t, pictures, 1)
}

func TestExpenseReportFiller_Fill(t *testing.T) {
	templates := writeTemplates(t, 1)
	folder := t.TempDir()
	inserter := &mockInserter{ok: true}
	filler := NewExpenseReportFiller(templates, inserter, zap.NewNop())
	filler.now = func() time.Time { return testNow }

	records := []models.PurchaseFormRecord{cadRecord(1, "Digikey"), usdRecord(3, "Mouser")}

	result, err := filler.Fill(testUser, records, folder)
	require.NoError(t, err)

	assert.Equal(t, "March9-2024-ExpenseReport-JaneDoe.xlsx", result.Filename)
	assert.Equal(t, 2, result.FormsProcessed)
	assert.True(t, result.SignatureInserted)
	assert.Equal(t, []string{"A19"}, inserter.cells)

	f, err := excelize.OpenFile(result.Path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "Jane Doe", cellValue(t, f, "Sheet1", "C2"))
	assert.Equal(t, "2024-03-09", cellValue(t, f, "Sheet1", "F2"))
	assert.Equal(t, "doej@mcmaster.ca", cellValue(t, f, "Sheet1", "C3"))
	assert.Equal(t, "1280 Main St W", cellValue(t, f, "Sheet1", "F3"))

	assert.Equal(t, "2024-03-09", cellValue(t, f, "Sheet1", "B6"))
	assert.Equal(t, "Digikey", cellValue(t, f, "Sheet1", "C6"))
	assert.Empty(t, cellValue(t, f, "Sheet1", "D6"))
	assert.Equal(t, "95", cellValue(t, f, "Sheet1", "F6"))
	assert.Equal(t, "115", cellValue(t, f, "Sheet1", "G6"))
	assert.Equal(t, "13", cellValue(t, f, "Sheet1", "H6"))

	assert.Equal(t, "Mouser", cellValue(t, f, "Sheet1", "C7"))
	assert.Equal(t, "30", cellValue(t, f, "Sheet1", "D7"))
	assert.NotEmpty(t, cellValue(t, f, "Sheet1", "E7"))
	assert.Equal(t, "41.23", cellValue(t, f, "Sheet1", "F7"))
	assert.Equal(t, "41.23", cellValue(t, f, "Sheet1", "G7"))
	assert.Equal(t, "0", cellValue(t, f, "Sheet1", "H7"))
}

func TestExpenseReportFiller_MissingTemplate(t *testing.T) {
	filler := NewExpenseReportFiller(t.TempDir(), nil, zap.NewNop())

	_, err := filler.Fill(testUser, nil, t.TempDir())

	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestExpenseReportFilename(t *testing.T) {
	assert.Equal(t, "March9-2024-ExpenseReport-JaneDoe.xlsx", ExpenseReportFilename("jane doe", testNow))
	assert.Equal(t, "December25-2023-ExpenseReport-UnknownUser.xlsx",
		ExpenseReportFilename("  ", time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)))
}

func TestExchangeRate(t *testing.T) {
	record := usdRecord(1, "Mouser")
	assert.True(t, record.USD.CanadianAmount.Div(record.USD.USTotal).Equal(exchangeRate(&record)))

	record.USD.USTotal = decimal.Zero
	assert.True(t, exchangeRate(&record).IsZero())
}
