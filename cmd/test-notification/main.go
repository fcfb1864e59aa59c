// Command test-notification posts a sample purchase request summary to the
// configured Lark chat so the bot credentials and chat id can be checked
// without submitting real forms.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/purchase-request/internal/config"
	"github.com/garyjia/purchase-request/internal/lark"
	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/notification"
	"github.com/garyjia/purchase-request/pkg/utils"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to the configuration file")
		chatID     = flag.String("chat", "", "override the configured chat id")
		dryRun     = flag.Bool("dry-run", false, "print the message without sending it")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *chatID != "" {
		cfg.Lark.ChatID = *chatID
	}

	logger, err := utils.NewDevelopmentLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sample := sampleSubmission()
	fmt.Println("=== Lark Submission Notice ===")
	fmt.Println(notification.FormatMessage(sample))
	fmt.Println()

	if *dryRun {
		return
	}
	if !cfg.Lark.Enabled() {
		logger.Fatal("Lark is not configured: set LARK_APP_ID, LARK_APP_SECRET and LARK_CHAT_ID")
	}

	client := lark.NewClient(lark.Config{
		AppID:     cfg.Lark.AppID,
		AppSecret: cfg.Lark.AppSecret,
	}, logger)
	notifier := notification.NewSubmissionNotifier(
		lark.NewMessageAPI(client, logger),
		lark.ReceiveIDChat,
		cfg.Lark.ChatID,
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := notifier.NotifySubmission(ctx, sample); err != nil {
		logger.Fatal("Notification failed", zap.Error(err))
	}
	fmt.Println("✓ Message delivered")
}

func sampleSubmission() notification.Submission {
	return notification.Submission{
		User: models.UserInfo{
			Name:  "Test User",
			Email: "test.user@mcmaster.ca",
			Team:  "Test Team",
		},
		Records: []models.PurchaseFormRecord{
			{
				FormNumber: 1,
				VendorName: "DigiKey",
				Currency:   models.CurrencyCAD,
				Items: []models.LineItem{
					{Name: "Resistor kit", Usage: "Prototype", Quantity: 1, UnitPrice: decimal.RequireFromString("25.00"), Total: decimal.RequireFromString("25.00")},
				},
				CAD: models.CADAmounts{
					Subtotal: decimal.RequireFromString("25.00"),
					HSTGST:   decimal.RequireFromString("3.25"),
					Total:    decimal.RequireFromString("28.25"),
				},
			},
			{
				FormNumber: 2,
				VendorName: "McMaster-Carr",
				Currency:   models.CurrencyUSD,
				USD: models.USDAmounts{
					USTotal:        decimal.RequireFromString("40.00"),
					CanadianAmount: decimal.RequireFromString("55.12"),
				},
			},
		},
	}
}
