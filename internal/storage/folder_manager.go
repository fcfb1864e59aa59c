package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const sessionTimestampLayout = "2006-01-02_15-04-05"

var unsafeFolderChars = regexp.MustCompile(`[^a-z0-9\-_]`)

// FolderManager manages per-submission session folders
type FolderManager struct {
	baseDir string
	now     func() time.Time
	logger  *zap.Logger
}

// NewFolderManager creates a new FolderManager rooted at baseDir
func NewFolderManager(baseDir string, logger *zap.Logger) *FolderManager {
	return &FolderManager{
		baseDir: baseDir,
		now:     time.Now,
		logger:  logger,
	}
}

// BaseDir returns the directory session folders are created in
func (m *FolderManager) BaseDir() string {
	return m.baseDir
}

// SessionFolderName builds "{user_name}_{YYYY-MM-DD_HH-MM-SS}" from a display name
func (m *FolderManager) SessionFolderName(userName string, at time.Time) string {
	safeName := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(userName), " ", "_"))
	safeName = m.SanitizeFolderName(safeName)
	if safeName == "" {
		safeName = "session"
	}
	return safeName + "_" + at.Format(sessionTimestampLayout)
}

// CreateSessionFolder creates a new, uniquely named folder for one submission.
// A numeric suffix is appended when another submission got the same second.
func (m *FolderManager) CreateSessionFolder(userName string) (string, error) {
	if err := os.MkdirAll(m.baseDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create sessions directory: %w", err)
	}

	name := m.SessionFolderName(userName, m.now())
	folderPath := filepath.Join(m.baseDir, name)

	for attempt := 2; ; attempt++ {
		err := os.Mkdir(folderPath, 0755)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) || attempt > 100 {
			m.logger.Error("Failed to create session folder",
				zap.String("folder_path", folderPath),
				zap.Error(err))
			return "", fmt.Errorf("failed to create folder: %w", err)
		}
		folderPath = filepath.Join(m.baseDir, fmt.Sprintf("%s_%d", name, attempt))
	}

	m.logger.Info("Created session folder", zap.String("folder_path", folderPath))
	return folderPath, nil
}

// FolderExists checks if a session folder exists
func (m *FolderManager) FolderExists(folderPath string) bool {
	info, err := os.Stat(folderPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// DeleteSessionFolder removes a session folder and all contents.
// Deleting a folder that no longer exists succeeds.
func (m *FolderManager) DeleteSessionFolder(folderPath string) error {
	if err := m.withinBase(folderPath); err != nil {
		return err
	}

	if _, err := os.Stat(folderPath); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(folderPath); err != nil {
		m.logger.Error("Failed to delete session folder",
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete folder: %w", err)
	}

	m.logger.Info("Cleaned up session folder", zap.String("folder_path", folderPath))
	return nil
}

// ListFiles returns the regular files directly inside folderPath, sorted by name
func (m *FolderManager) ListFiles(folderPath string) ([]string, error) {
	return ListFiles(folderPath)
}

// ListFiles returns the regular files directly inside folderPath, sorted by name
func ListFiles(folderPath string) ([]string, error) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(folderPath, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// CleanupOlderThan deletes session folders last modified more than maxAge ago
// and returns how many were removed. Failures on single folders are logged.
func (m *FolderManager) CleanupOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	cutoff := m.now().Add(-maxAge)
	deleted := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		folderPath := filepath.Join(m.baseDir, entry.Name())
		if err := os.RemoveAll(folderPath); err != nil {
			m.logger.Error("Failed to delete old session folder",
				zap.String("folder_path", folderPath),
				zap.Error(err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		m.logger.Info("Deleted old session folders",
			zap.Int("count", deleted),
			zap.Duration("max_age", maxAge))
	}
	return deleted, nil
}

// RunCleanup calls CleanupOlderThan every interval until ctx is done
func (m *FolderManager) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.CleanupOlderThan(maxAge); err != nil {
			m.logger.Error("Session cleanup failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SanitizeFolderName returns a filesystem-safe version of the name
func (m *FolderManager) SanitizeFolderName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	return unsafeFolderChars.ReplaceAllString(name, "")
}

func (m *FolderManager) withinBase(folderPath string) error {
	absPath, err := filepath.Abs(folderPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(m.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrPathEscapesBase, folderPath)
	}
	return nil
}
