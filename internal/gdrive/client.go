package gdrive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/purchase-request/internal/retry"
	"github.com/garyjia/purchase-request/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	FolderURLPrefix        = "https://drive.google.com/drive/folders/"
	DefaultMaxWorkers      = 3
	DefaultSequentialPause = 500 * time.Millisecond
	monthFolderLayout      = "January 2006"
)

// Config holds Drive upload settings
type Config struct {
	ParentFolderID  string
	MaxWorkers      int
	SequentialPause time.Duration
}

// Client mirrors local session folders into the configured Drive parent
type Client struct {
	api    FileAPI
	config Config
	retry  *retry.Strategy
	now    func() time.Time
	logger *zap.Logger
}

// NewClient creates a Drive client. A nil strategy uses retry defaults.
func NewClient(api FileAPI, config Config, strategy *retry.Strategy, logger *zap.Logger) *Client {
	if config.MaxWorkers <= 0 || config.MaxWorkers > DefaultMaxWorkers {
		config.MaxWorkers = DefaultMaxWorkers
	}
	if config.SequentialPause <= 0 {
		config.SequentialPause = DefaultSequentialPause
	}
	if strategy == nil {
		strategy = retry.NewStrategy(logger)
	}
	return &Client{
		api:    api,
		config: config,
		retry:  strategy,
		now:    time.Now,
		logger: logger,
	}
}

// FolderURL returns the browser link for a Drive folder
func FolderURL(folderID string) string {
	return FolderURLPrefix + folderID
}

// DriveFolderName is "{session}_{User_Name}"
func DriveFolderName(sessionPath, userName string) string {
	name := strings.ReplaceAll(strings.TrimSpace(userName), " ", "_")
	if name == "" {
		name = "Unknown"
	}
	return filepath.Base(sessionPath) + "_" + name
}

// CreateSessionFolderStructure verifies the parent folder, finds or creates the
// month folder and creates the session folder inside it.
func (c *Client) CreateSessionFolderStructure(ctx context.Context, sessionPath, userName string) (string, string, error) {
	if c.config.ParentFolderID == "" {
		return "", "", ErrNoParentFolder
	}

	err := c.retry.Do(ctx, "verify parent folder", func(ctx context.Context) error {
		_, err := c.api.GetFolder(ctx, c.config.ParentFolderID)
		return err
	})
	if err != nil {
		c.logger.Error("Failed to access drive parent folder",
			zap.String("folder_id", c.config.ParentFolderID),
			zap.Error(err))
		return "", "", fmt.Errorf("failed to access parent folder: %w", err)
	}

	monthFolderID, err := c.ensureMonthFolder(ctx)
	if err != nil {
		return "", "", err
	}

	name := DriveFolderName(sessionPath, userName)
	var folderID string
	err = c.retry.Do(ctx, "create session folder", func(ctx context.Context) error {
		id, err := c.api.CreateFolder(ctx, name, monthFolderID)
		folderID = id
		return err
	})
	if err != nil {
		c.logger.Error("Failed to create drive session folder",
			zap.String("name", name),
			zap.Error(err))
		return "", "", fmt.Errorf("failed to create session folder: %w", err)
	}

	url := FolderURL(folderID)
	c.logger.Info("Drive session folder created",
		zap.String("name", name),
		zap.String("folder_id", folderID),
		zap.String("url", url))

	return url, folderID, nil
}

func (c *Client) ensureMonthFolder(ctx context.Context) (string, error) {
	name := c.now().Format(monthFolderLayout)
	parentID := c.config.ParentFolderID

	var folderID string
	err := c.retry.Do(ctx, "find month folder", func(ctx context.Context) error {
		id, err := c.api.FindFolder(ctx, name, parentID)
		folderID = id
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to search month folder: %w", err)
	}
	if folderID != "" {
		c.logger.Debug("Found month folder", zap.String("name", name), zap.String("folder_id", folderID))
		return folderID, nil
	}

	err = c.retry.Do(ctx, "create month folder", func(ctx context.Context) error {
		id, err := c.api.CreateFolder(ctx, name, parentID)
		folderID = id
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create month folder: %w", err)
	}

	c.logger.Info("Created month folder", zap.String("name", name), zap.String("folder_id", folderID))
	return folderID, nil
}

// UploadSessionFolder uploads every regular file of sessionPath into folderID.
// Files failing the parallel pass are retried once more, one at a time.
func (c *Client) UploadSessionFolder(ctx context.Context, sessionPath, folderID string) error {
	files, err := storage.ListFiles(sessionPath)
	if err != nil {
		c.logger.Error("Session folder not readable", zap.String("path", sessionPath), zap.Error(err))
		return fmt.Errorf("failed to list session folder: %w", err)
	}
	if len(files) == 0 {
		c.logger.Warn("No files found in session folder", zap.String("path", sessionPath))
		return nil
	}

	var (
		mu     sync.Mutex
		failed []string
	)

	var g errgroup.Group
	g.SetLimit(c.config.MaxWorkers)
	for _, path := range files {
		g.Go(func() error {
			if err := c.uploadWithRetry(ctx, path, folderID); err != nil {
				c.logger.Warn("Upload failed, queued for sequential retry",
					zap.String("file", filepath.Base(path)),
					zap.Error(err))
				mu.Lock()
				failed = append(failed, path)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		c.logger.Info("Retrying failed files sequentially", zap.Int("count", len(failed)))
		failed = c.retrySequentially(ctx, failed, folderID)
	}

	if len(failed) > 0 {
		c.logger.Error("Drive upload incomplete",
			zap.String("folder_id", folderID),
			zap.Int("uploaded", len(files)-len(failed)),
			zap.Int("failed", len(failed)))
		return fmt.Errorf("%w: %d of %d files", ErrIncompleteUpload, len(failed), len(files))
	}

	c.logger.Info("Session folder uploaded to drive",
		zap.String("folder_id", folderID),
		zap.Int("files", len(files)))
	return nil
}

func (c *Client) retrySequentially(ctx context.Context, paths []string, folderID string) []string {
	var stillFailed []string
	for _, path := range paths {
		select {
		case <-ctx.Done():
			stillFailed = append(stillFailed, path)
			continue
		case <-time.After(c.config.SequentialPause):
		}

		if err := c.upload(ctx, path, folderID); err != nil {
			c.logger.Warn("Sequential retry also failed",
				zap.String("file", filepath.Base(path)),
				zap.Error(err))
			stillFailed = append(stillFailed, path)
			continue
		}
		c.logger.Info("Sequential retry succeeded", zap.String("file", filepath.Base(path)))
	}
	return stillFailed
}

func (c *Client) uploadWithRetry(ctx context.Context, path, folderID string) error {
	return c.retry.Do(ctx, "upload "+filepath.Base(path), func(ctx context.Context) error {
		return c.upload(ctx, path, folderID)
	})
}

func (c *Client) upload(ctx context.Context, path, folderID string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	name := filepath.Base(path)
	if _, err := c.api.UploadFile(ctx, name, folderID, storage.ContentType(name), file); err != nil {
		return err
	}
	return nil
}

// Download returns the content of the file named filename inside folderID
func (c *Client) Download(ctx context.Context, folderID, filename string) ([]byte, error) {
	var fileID string
	err := c.retry.Do(ctx, "find "+filename, func(ctx context.Context) error {
		id, err := c.api.FindFile(ctx, filename, folderID)
		fileID = id
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search drive folder: %w", err)
	}
	if fileID == "" {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
	}

	body, err := c.api.Download(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", filename, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return data, nil
}
