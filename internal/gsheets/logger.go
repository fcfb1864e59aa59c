package gsheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/retry"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	DefaultTabName  = "Website Responses"
	timestampLayout = "2006-01-02 15:04:05"
)

var ErrNoSheetID = errors.New("spreadsheet id is not configured")

// ValueAppender appends rows to a spreadsheet range
type ValueAppender interface {
	AppendRow(ctx context.Context, spreadsheetID, rangeName string, row []interface{}) (int64, error)
}

// ServiceAppender implements ValueAppender on a Sheets v4 service
type ServiceAppender struct {
	service *sheets.Service
}

// NewServiceAppender authenticates with service account credentials
func NewServiceAppender(ctx context.Context, credentialsJSON []byte) (*ServiceAppender, error) {
	service, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &ServiceAppender{service: service}, nil
}

// AppendRow appends one RAW row and returns the number of updated rows
func (a *ServiceAppender) AppendRow(ctx context.Context, spreadsheetID, rangeName string, row []interface{}) (int64, error) {
	resp, err := a.service.Spreadsheets.Values.Append(spreadsheetID, rangeName, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return 0, err
	}
	if resp.Updates == nil {
		return 0, nil
	}
	return resp.Updates.UpdatedRows, nil
}

// Config holds the target spreadsheet
type Config struct {
	SpreadsheetID string
	TabName       string
}

// RequestLogger writes one summary row per submission
type RequestLogger struct {
	appender ValueAppender
	config   Config
	retry    *retry.Strategy
	now      func() time.Time
	logger   *zap.Logger
}

// NewRequestLogger creates a RequestLogger. A nil strategy uses retry defaults.
func NewRequestLogger(appender ValueAppender, config Config, strategy *retry.Strategy, logger *zap.Logger) *RequestLogger {
	config.TabName = cleanTabName(config.TabName)
	if strategy == nil {
		strategy = retry.NewStrategy(logger)
	}
	return &RequestLogger{
		appender: appender,
		config:   config,
		retry:    strategy,
		now:      time.Now,
		logger:   logger,
	}
}

// Row builds the A:H values for one submission
func Row(at time.Time, user models.UserInfo, records []models.PurchaseFormRecord, driveURL string) []interface{} {
	total := models.TotalReimbursement(records)
	return []interface{}{
		at.Format(timestampLayout),
		user.Name,
		user.Email,
		user.Address,
		user.ETransferEmail,
		user.Team,
		"$" + total.StringFixed(2),
		driveURL,
	}
}

// LogPurchaseRequest appends the submission summary row
func (l *RequestLogger) LogPurchaseRequest(ctx context.Context, user models.UserInfo, records []models.PurchaseFormRecord, driveURL string) error {
	if l.config.SpreadsheetID == "" {
		return ErrNoSheetID
	}

	row := Row(l.now(), user, records, driveURL)
	rangeName := l.config.TabName + "!A:H"

	var updated int64
	err := l.retry.Do(ctx, "append sheet row", func(ctx context.Context) error {
		n, err := l.appender.AppendRow(ctx, l.config.SpreadsheetID, rangeName, row)
		updated = n
		return err
	})
	if err != nil {
		l.logger.Error("Failed to log purchase request to sheet",
			zap.String("range", rangeName),
			zap.Error(err))
		return fmt.Errorf("failed to append sheet row: %w", err)
	}

	l.logger.Info("Purchase request logged to sheet",
		zap.String("range", rangeName),
		zap.Int64("updated_rows", updated),
		zap.String("total", row[6].(string)))
	return nil
}

// cleanTabName drops a trailing "# comment" copied from env files
func cleanTabName(name string) string {
	if i := strings.Index(name, "#"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultTabName
	}
	return name
}
