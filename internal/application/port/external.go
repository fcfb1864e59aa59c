package port

import (
	"context"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/notification"
)

// DriveClient mirrors session folders to Google Drive
type DriveClient interface {
	CreateSessionFolderStructure(ctx context.Context, sessionPath, userName string) (string, string, error)
	UploadSessionFolder(ctx context.Context, sessionPath, folderID string) error
	Download(ctx context.Context, folderID, filename string) ([]byte, error)
}

// SheetLogger records one row per submission
type SheetLogger interface {
	LogPurchaseRequest(ctx context.Context, user models.UserInfo, records []models.PurchaseFormRecord, driveURL string) error
}

// SessionArchiver copies session folders to object storage
type SessionArchiver interface {
	UploadSessionFolder(ctx context.Context, sessionPath string) (int, error)
}

// SubmissionNotifier announces accepted submissions
type SubmissionNotifier interface {
	NotifySubmission(ctx context.Context, s notification.Submission) error
}
