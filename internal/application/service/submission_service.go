package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/garyjia/purchase-request/internal/application/port"
	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/notification"
	"github.com/garyjia/purchase-request/internal/submission"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SubmissionResult describes one processed submission
type SubmissionResult struct {
	SessionFolder  string
	DriveFolderID  string
	DriveFolderURL string
	Records        []models.PurchaseFormRecord
	Outcomes       []submission.FormOutcome
	Total          decimal.Decimal
	WorkbookFile   string
	ExpenseReport  string
	DriveUploaded  bool
	Archived       bool
	FolderDeleted  bool
}

// SubmissionService turns a posted purchase request into documents and uploads
type SubmissionService interface {
	Submit(ctx context.Context, user *models.User, fields submission.Fields) (*SubmissionResult, error)
	DownloadWorkbook(ctx context.Context, driveFolderID, filename string) ([]byte, error)
}

// SubmissionDeps are the collaborators of SubmissionService. Drive, Sheets,
// Archive, Notifier and ExpenseReport are optional and may be nil.
type SubmissionDeps struct {
	Folders         port.FolderManager
	Signatures      port.SignatureNormalizer
	Parser          port.SubmissionParser
	PurchaseRequest port.DocumentFiller
	ExpenseReport   port.DocumentFiller
	Drive           port.DriveClient
	Sheets          port.SheetLogger
	Archive         port.SessionArchiver
	Notifier        port.SubmissionNotifier
}

type submissionServiceImpl struct {
	deps   SubmissionDeps
	logger *zap.Logger
}

// NewSubmissionService creates a new SubmissionService
func NewSubmissionService(deps SubmissionDeps, logger *zap.Logger) SubmissionService {
	return &submissionServiceImpl{
		deps:   deps,
		logger: logger,
	}
}

// Identity returns the user info printed on documents. Non-empty identity
// fields posted with the submission take precedence over the stored profile.
func Identity(user *models.User, fields submission.Fields) models.UserInfo {
	info := user.Info()
	override := func(dst *string, key string) {
		if v := fields.Value(key); v != "" {
			*dst = v
		}
	}
	override(&info.Name, "name")
	override(&info.ETransferEmail, "e_transfer_email")
	override(&info.Address, "address")
	override(&info.Team, "team")
	return info
}

// Submit processes one submission. Only session folder creation, upload
// persistence and the purchase request workbook can fail the call; every
// external step after that is best effort.
func (s *submissionServiceImpl) Submit(ctx context.Context, user *models.User, fields submission.Fields) (*SubmissionResult, error) {
	info := Identity(user, fields)

	folder, err := s.deps.Folders.CreateSessionFolder(info.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create session folder: %w", err)
	}
	result := &SubmissionResult{SessionFolder: folder}

	s.prepareSignature(user, folder)

	parsed, err := s.deps.Parser.Parse(fields, folder)
	if err != nil {
		s.discard(folder)
		return nil, fmt.Errorf("failed to parse submission: %w", err)
	}
	result.Records = parsed.Records
	result.Outcomes = parsed.Outcomes
	result.Total = parsed.Total()

	if len(parsed.Records) == 0 {
		s.logger.Warn("No forms were submitted",
			zap.String("email", info.Email),
			zap.Int("forms_seen", len(parsed.Outcomes)))
		s.discard(folder)
		return result, ErrNoForms
	}

	workbook, err := s.deps.PurchaseRequest.Fill(info, parsed.Records, folder)
	if err != nil {
		s.logger.Error("Failed to create purchase request", zap.String("folder", folder), zap.Error(err))
		return result, fmt.Errorf("failed to create purchase request: %w", err)
	}
	result.WorkbookFile = workbook.Filename

	if s.deps.ExpenseReport != nil {
		report, err := s.deps.ExpenseReport.Fill(info, parsed.Records, folder)
		if err != nil {
			s.logger.Error("Failed to create expense report (continuing anyway)", zap.Error(err))
		} else {
			result.ExpenseReport = report.Filename
		}
	}

	if s.deps.Drive != nil {
		url, id, err := s.deps.Drive.CreateSessionFolderStructure(ctx, folder, info.Name)
		if err != nil {
			s.logger.Error("Failed to create Google Drive folder (continuing anyway)", zap.Error(err))
		} else {
			result.DriveFolderURL, result.DriveFolderID = url, id
		}
	}

	if s.deps.Sheets != nil {
		if err := s.deps.Sheets.LogPurchaseRequest(ctx, info, parsed.Records, result.DriveFolderURL); err != nil {
			s.logger.Error("Failed to log to Google Sheets (continuing anyway)", zap.Error(err))
		}
	}

	result.DriveUploaded, result.Archived = s.upload(ctx, folder, result.DriveFolderID)

	if result.DriveUploaded || result.Archived {
		if err := s.deps.Folders.DeleteSessionFolder(folder); err != nil {
			s.logger.Error("Failed to delete session folder", zap.String("folder", folder), zap.Error(err))
		} else {
			result.FolderDeleted = true
		}
	}

	if s.deps.Notifier != nil {
		err := s.deps.Notifier.NotifySubmission(ctx, notification.Submission{
			User:     info,
			Records:  parsed.Records,
			DriveURL: result.DriveFolderURL,
		})
		if err != nil {
			s.logger.Warn("Submission notification failed", zap.Error(err))
		}
	}

	s.logger.Info("Submission completed",
		zap.String("email", info.Email),
		zap.Int("forms", len(result.Records)),
		zap.String("total", result.Total.StringFixed(2)),
		zap.Bool("drive_uploaded", result.DriveUploaded),
		zap.Bool("archived", result.Archived))

	return result, nil
}

// prepareSignature writes the stored signature into folder and derives its variants
func (s *submissionServiceImpl) prepareSignature(user *models.User, folder string) {
	if len(user.SignatureData) == 0 {
		s.logger.Warn("User has no stored signature", zap.String("email", user.Email))
		return
	}
	if _, err := s.deps.Signatures.Normalize(folder, user.SignatureData, user.SignatureContentType); err != nil {
		s.logger.Warn("Could not save signature for user",
			zap.String("email", user.Email),
			zap.Error(err))
	}
}

// upload runs the drive upload and the bucket archive concurrently
func (s *submissionServiceImpl) upload(ctx context.Context, folder, driveFolderID string) (bool, bool) {
	var driveOK, archiveOK atomic.Bool
	var g errgroup.Group

	if s.deps.Drive != nil && driveFolderID != "" {
		g.Go(func() error {
			if err := s.deps.Drive.UploadSessionFolder(ctx, folder, driveFolderID); err != nil {
				s.logger.Error("Google Drive upload failed", zap.Error(err))
				return nil
			}
			driveOK.Store(true)
			return nil
		})
	}

	if s.deps.Archive != nil {
		g.Go(func() error {
			if _, err := s.deps.Archive.UploadSessionFolder(ctx, folder); err != nil {
				s.logger.Error("Session archive failed", zap.Error(err))
				return nil
			}
			archiveOK.Store(true)
			return nil
		})
	}

	_ = g.Wait()
	return driveOK.Load(), archiveOK.Load()
}

func (s *submissionServiceImpl) discard(folder string) {
	if err := s.deps.Folders.DeleteSessionFolder(folder); err != nil {
		s.logger.Warn("Failed to remove unused session folder", zap.String("folder", folder), zap.Error(err))
	}
}

// DownloadWorkbook fetches a generated workbook back from the session's Drive folder
func (s *submissionServiceImpl) DownloadWorkbook(ctx context.Context, driveFolderID, filename string) ([]byte, error) {
	if s.deps.Drive == nil {
		return nil, ErrDriveDisabled
	}
	return s.deps.Drive.Download(ctx, driveFolderID, filename)
}
