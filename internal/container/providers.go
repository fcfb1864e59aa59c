// Package container wires the purchase request site together and owns the
// lifecycle of its long-lived resources.
package container

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-request/internal/alert"
	"github.com/garyjia/purchase-request/internal/application/port"
	"github.com/garyjia/purchase-request/internal/application/service"
	"github.com/garyjia/purchase-request/internal/archive"
	"github.com/garyjia/purchase-request/internal/config"
	"github.com/garyjia/purchase-request/internal/gdrive"
	"github.com/garyjia/purchase-request/internal/gsheets"
	"github.com/garyjia/purchase-request/internal/lark"
	"github.com/garyjia/purchase-request/internal/notification"
	"github.com/garyjia/purchase-request/internal/repository"
	"github.com/garyjia/purchase-request/internal/retry"
	"github.com/garyjia/purchase-request/internal/signature"
	"github.com/garyjia/purchase-request/internal/storage"
	"github.com/garyjia/purchase-request/internal/submission"
	"github.com/garyjia/purchase-request/internal/workbook"
	"github.com/garyjia/purchase-request/pkg/database"
)

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Users    *repository.UserRepository
	Sessions *repository.SessionRepository
}

// StorageBundle holds local session folder components.
type StorageBundle struct {
	FolderManager *storage.FolderManager
	FileStorage   *storage.LocalFileStorage
	Normalizer    *signature.Normalizer
}

// ExternalBundle holds the optional external collaborators. A nil field
// means the integration is disabled.
type ExternalBundle struct {
	Drive    port.DriveClient
	Sheets   port.SheetLogger
	Archive  port.SessionArchiver
	Notifier port.SubmissionNotifier

	closers []io.Closer
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Users       service.UserService
	Submissions service.SubmissionService
}

// ProvideDatabase opens the database and runs pending migrations.
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// ProvideRepositories creates all repositories.
func ProvideRepositories(db *database.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Users:    repository.NewUserRepository(db.DB, logger),
		Sessions: repository.NewSessionRepository(db.DB, logger),
	}
}

// ProvideStorage creates the session folder manager, upload storage and
// signature normalizer.
func ProvideStorage(cfg *config.Config, logger *zap.Logger) *StorageBundle {
	return &StorageBundle{
		FolderManager: storage.NewFolderManager(cfg.Session.BaseDir, logger),
		FileStorage:   storage.NewLocalFileStorage(cfg.Session.BaseDir, logger),
		Normalizer: signature.NewNormalizer(signature.Config{
			ConversionMaxWidth: cfg.Signature.ConversionMaxWidth,
			ThumbnailMaxWidth:  cfg.Signature.ThumbnailMaxWidth,
		}, logger),
	}
}

// ProvideRetryStrategy creates the retry policy shared by Google API calls.
func ProvideRetryStrategy(cfg *config.UploadConfig, logger *zap.Logger) *retry.Strategy {
	strategy := retry.NewStrategy(logger)
	strategy.MaxAttempts = cfg.MaxAttempts
	strategy.BaseBackoff = cfg.BaseBackoff
	return strategy
}

// ProvideExternalClients builds the Drive, Sheets, archive and Lark clients
// that are configured. A client that fails to start is logged and left out.
func ProvideExternalClients(ctx context.Context, cfg *config.Config, logger *zap.Logger) *ExternalBundle {
	bundle := &ExternalBundle{}
	provideGoogle(ctx, cfg, bundle, logger)

	if cfg.Lark.Enabled() && cfg.Lark.ChatID != "" {
		client := provideLarkClient(&cfg.Lark, logger)
		bundle.Notifier = notification.NewSubmissionNotifier(
			lark.NewMessageAPI(client, logger),
			lark.ReceiveIDChat,
			cfg.Lark.ChatID,
			logger,
		)
	}

	return bundle
}

// ProvideAlerts builds the error alert notifier, or nil when alerts are not
// configured. Its Lark client logs under alert.LoggerName so failed sends
// are never forwarded back to the chat.
func ProvideAlerts(larkCfg *config.LarkConfig, cfg *config.AlertsConfig, logger *zap.Logger) *alert.Notifier {
	if !cfg.Enabled(*larkCfg) {
		return nil
	}

	alertLogger := logger.Named(alert.LoggerName)
	client := provideLarkClient(larkCfg, alertLogger)
	return alert.NewNotifier(lark.NewMessageAPI(client, alertLogger), alert.Config{
		ReceiveIDType: lark.ReceiveIDChat,
		ReceiveID:     cfg.ChatID,
		Level:         cfg.MinLevel(),
		QueueSize:     cfg.QueueSize,
		SendTimeout:   cfg.SendTimeout,
	}, logger)
}

func provideLarkClient(cfg *config.LarkConfig, logger *zap.Logger) *lark.Client {
	return lark.NewClient(lark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
	}, logger)
}

func provideGoogle(ctx context.Context, cfg *config.Config, bundle *ExternalBundle, logger *zap.Logger) {
	if !cfg.Google.HasCredentials() {
		logger.Warn("Google service account not configured, Drive, Sheets and archive are disabled")
		return
	}

	creds, err := cfg.Google.CredentialsJSON()
	if err != nil {
		logger.Error("Invalid Google credentials", zap.Error(err))
		return
	}
	strategy := ProvideRetryStrategy(&cfg.Upload, logger)

	if cfg.Google.DriveFolderID != "" {
		api, err := gdrive.NewServiceAPI(ctx, creds)
		if err != nil {
			logger.Error("Failed to initialize Google Drive", zap.Error(err))
		} else {
			bundle.Drive = gdrive.NewClient(api, gdrive.Config{
				ParentFolderID:  cfg.Google.DriveFolderID,
				MaxWorkers:      cfg.Upload.MaxWorkers,
				SequentialPause: cfg.Upload.SequentialPause,
			}, strategy, logger)
		}
	}

	if cfg.Google.SheetID != "" {
		appender, err := gsheets.NewServiceAppender(ctx, creds)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets", zap.Error(err))
		} else {
			bundle.Sheets = gsheets.NewRequestLogger(appender, gsheets.Config{
				SpreadsheetID: cfg.Google.SheetID,
				TabName:       cfg.Google.SheetTabName,
			}, strategy, logger)
		}
	}

	if cfg.Archive.Bucket != "" {
		store, err := archive.NewBucketStore(ctx, cfg.Archive.Bucket, creds)
		if err != nil {
			logger.Error("Failed to initialize archive bucket", zap.Error(err))
		} else {
			bundle.Archive = archive.NewArchiver(store, strategy, logger)
			bundle.closers = append(bundle.closers, store)
		}
	}
}

// ProvideServices creates the application services.
func ProvideServices(cfg *config.Config, repos *RepositoryBundle, store *StorageBundle, external *ExternalBundle, logger *zap.Logger) *ServiceBundle {
	deps := service.SubmissionDeps{
		Folders:         store.FolderManager,
		Signatures:      store.Normalizer,
		Parser:          submission.NewAssembler(store.FileStorage, logger),
		PurchaseRequest: workbook.NewPurchaseRequestFiller(cfg.Workbook.TemplateDir, store.Normalizer, logger),
		ExpenseReport:   workbook.NewExpenseReportFiller(cfg.Workbook.TemplateDir, store.Normalizer, logger),
		Drive:           external.Drive,
		Sheets:          external.Sheets,
		Archive:         external.Archive,
		Notifier:        external.Notifier,
	}

	return &ServiceBundle{
		Users:       service.NewUserService(repos.Users, repos.Sessions, store.Normalizer, cfg.Session.TTL, logger),
		Submissions: service.NewSubmissionService(deps, logger),
	}
}
