package gsheets

import (
	"context"
	"testing"
	"time"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

type appendCall struct {
	spreadsheetID, rangeName string
	row                      []interface{}
}

type mockAppender struct {
	calls    []appendCall
	failures []error
}

func (m *mockAppender) AppendRow(ctx context.Context, spreadsheetID, rangeName string, row []interface{}) (int64, error) {
	m.calls = append(m.calls, appendCall{spreadsheetID, rangeName, row})
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return 0, err
	}
	return 1, nil
}

func fastRetry() *retry.Strategy {
	s := retry.NewStrategy(zap.NewNop())
	s.BaseBackoff = time.Millisecond
	s.MaxJitter = 0
	return s
}

func sampleRecords() []models.PurchaseFormRecord {
	return []models.PurchaseFormRecord{
		{
			FormNumber: 1,
			Currency:   models.CurrencyCAD,
			CAD:        models.CADAmounts{Total: decimal.RequireFromString("100.50")},
		},
		{
			FormNumber: 2,
			Currency:   models.CurrencyUSD,
			USD:        models.USDAmounts{USTotal: decimal.NewFromInt(30), CanadianAmount: decimal.RequireFromString("41.23")},
		},
	}
}

var sampleUser = models.UserInfo{
	Name:           "Jane Doe",
	Email:          "jane@mcmaster.ca",
	ETransferEmail: "jane@gmail.com",
	Address:        "1280 Main St W",
	Team:           "Rocketry",
}

func TestRow(t *testing.T) {
	at := time.Date(2025, 7, 14, 9, 3, 5, 0, time.UTC)

	row := Row(at, sampleUser, sampleRecords(), "https://drive.google.com/drive/folders/abc")

	assert.Equal(t, []interface{}{
		"2025-07-14 09:03:05",
		"Jane Doe",
		"jane@mcmaster.ca",
		"1280 Main St W",
		"jane@gmail.com",
		"Rocketry",
		"$141.73",
		"https://drive.google.com/drive/folders/abc",
	}, row)

	assert.Equal(t, "$0.00", Row(at, sampleUser, nil, "")[6])
}

func TestRequestLogger_LogPurchaseRequest(t *testing.T) {
	t.Run("appends to the tab range", func(t *testing.T) {
		appender := &mockAppender{}
		l := NewRequestLogger(appender, Config{SpreadsheetID: "sheet-1"}, fastRetry(), zap.NewNop())

		require.NoError(t, l.LogPurchaseRequest(context.Background(), sampleUser, sampleRecords(), "url"))

		require.Len(t, appender.calls, 1)
		assert.Equal(t, "sheet-1", appender.calls[0].spreadsheetID)
		assert.Equal(t, "Website Responses!A:H", appender.calls[0].rangeName)
		assert.Len(t, appender.calls[0].row, 8)
	})

	t.Run("retries server errors and ssl eof", func(t *testing.T) {
		appender := &mockAppender{failures: []error{
			&googleapi.Error{Code: 500},
			errorString("EOF occurred in violation of protocol"),
		}}
		l := NewRequestLogger(appender, Config{SpreadsheetID: "s", TabName: "Log"}, fastRetry(), zap.NewNop())

		require.NoError(t, l.LogPurchaseRequest(context.Background(), sampleUser, nil, ""))
		assert.Len(t, appender.calls, 3)
		assert.Equal(t, "Log!A:H", appender.calls[2].rangeName)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		appender := &mockAppender{failures: []error{&googleapi.Error{Code: 403}}}
		l := NewRequestLogger(appender, Config{SpreadsheetID: "s"}, fastRetry(), zap.NewNop())

		assert.Error(t, l.LogPurchaseRequest(context.Background(), sampleUser, nil, ""))
		assert.Len(t, appender.calls, 1)
	})

	t.Run("gives up after five attempts", func(t *testing.T) {
		fail := &googleapi.Error{Code: 503}
		appender := &mockAppender{failures: []error{fail, fail, fail, fail, fail, fail}}
		l := NewRequestLogger(appender, Config{SpreadsheetID: "s"}, fastRetry(), zap.NewNop())

		assert.Error(t, l.LogPurchaseRequest(context.Background(), sampleUser, nil, ""))
		assert.Len(t, appender.calls, 5)
	})

	t.Run("missing sheet id", func(t *testing.T) {
		appender := &mockAppender{}
		l := NewRequestLogger(appender, Config{}, fastRetry(), zap.NewNop())

		assert.ErrorIs(t, l.LogPurchaseRequest(context.Background(), sampleUser, nil, ""), ErrNoSheetID)
		assert.Empty(t, appender.calls)
	})
}

func TestCleanTabName(t *testing.T) {
	assert.Equal(t, "Website Responses", cleanTabName(""))
	assert.Equal(t, "Responses", cleanTabName("Responses  # tab used by the site"))
	assert.Equal(t, "Website Responses", cleanTabName("# only a comment"))
}

type errorString string

func (e errorString) Error() string { return string(e) }
