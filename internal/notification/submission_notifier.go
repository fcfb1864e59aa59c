package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/purchase-request/internal/models"
	"go.uber.org/zap"
)

// TextSender delivers a plain text chat message
type TextSender interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error)
}

// Submission summarises one accepted purchase request
type Submission struct {
	User     models.UserInfo
	Records  []models.PurchaseFormRecord
	DriveURL string
}

// SubmissionNotifier posts a summary of each submission to a Lark chat
type SubmissionNotifier struct {
	sender        TextSender
	receiveIDType string
	receiveID     string
	logger        *zap.Logger
}

// NewSubmissionNotifier creates a notifier that posts to receiveID
func NewSubmissionNotifier(sender TextSender, receiveIDType, receiveID string, logger *zap.Logger) *SubmissionNotifier {
	return &SubmissionNotifier{
		sender:        sender,
		receiveIDType: receiveIDType,
		receiveID:     receiveID,
		logger:        logger,
	}
}

// NotifySubmission sends the summary message
func (n *SubmissionNotifier) NotifySubmission(ctx context.Context, s Submission) error {
	messageID, err := n.sender.SendText(ctx, n.receiveIDType, n.receiveID, FormatMessage(s))
	if err != nil {
		n.logger.Error("Failed to send submission notification",
			zap.String("submitter", s.User.Name),
			zap.Error(err))
		return fmt.Errorf("failed to send notification: %w", err)
	}

	n.logger.Info("Submission notification sent",
		zap.String("message_id", messageID),
		zap.String("submitter", s.User.Name),
		zap.Int("forms", len(s.Records)))
	return nil
}

// FormatMessage renders the chat text for a submission
func FormatMessage(s Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New purchase request from %s", s.User.Name)
	if s.User.Team != "" {
		fmt.Fprintf(&b, " (%s)", s.User.Team)
	}
	b.WriteString("\n")

	for i := range s.Records {
		r := &s.Records[i]
		fmt.Fprintf(&b, "Form %d: %s, %s $%s", r.FormNumber, r.VendorName, r.Currency, r.ReimbursementAmount().StringFixed(2))
		if r.IsUSD() {
			fmt.Fprintf(&b, " CAD (US $%s)", r.USD.USTotal.StringFixed(2))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Total reimbursement: $%s", models.TotalReimbursement(s.Records).StringFixed(2))
	if s.DriveURL != "" {
		fmt.Fprintf(&b, "\nFiles: %s", s.DriveURL)
	}
	return b.String()
}
