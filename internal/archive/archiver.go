package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/purchase-request/internal/retry"
	"github.com/garyjia/purchase-request/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxWorkers = 3

var (
	ErrObjectNotFound = errors.New("archive object not found")
	ErrIncomplete     = errors.New("some files could not be archived")
)

// Archiver copies session folders into a bucket under {yyyy}/{mm}/{dd}/{session}/
type Archiver struct {
	store      ObjectStore
	retry      *retry.Strategy
	maxWorkers int
	now        func() time.Time
	logger     *zap.Logger
}

// NewArchiver creates an Archiver. A nil strategy uses retry defaults.
func NewArchiver(store ObjectStore, strategy *retry.Strategy, logger *zap.Logger) *Archiver {
	if strategy == nil {
		strategy = retry.NewStrategy(logger)
	}
	return &Archiver{
		store:      store,
		retry:      strategy,
		maxWorkers: DefaultMaxWorkers,
		now:        time.Now,
		logger:     logger,
	}
}

// SessionPrefix is "{yyyy}/{mm}/{dd}/{session}/"
func SessionPrefix(year, month, day int, session string) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s/", year, month, day, session)
}

// ObjectPath is the bucket object name of one session file
func ObjectPath(at time.Time, session, filename string) string {
	return SessionPrefix(at.Year(), int(at.Month()), at.Day(), session) + filename
}

// UploadSessionFolder archives every regular file of sessionPath and returns
// the number of objects written. Objects that already exist are skipped.
func (a *Archiver) UploadSessionFolder(ctx context.Context, sessionPath string) (int, error) {
	files, err := storage.ListFiles(sessionPath)
	if err != nil {
		return 0, fmt.Errorf("failed to list session folder: %w", err)
	}

	session := filepath.Base(sessionPath)
	at := a.now()

	var (
		mu      sync.Mutex
		written int
		failed  int
	)

	var g errgroup.Group
	g.SetLimit(a.maxWorkers)
	for _, path := range files {
		g.Go(func() error {
			objectName := ObjectPath(at, session, filepath.Base(path))
			created, err := a.put(ctx, path, objectName)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn("Failed to archive file",
					zap.String("object", objectName),
					zap.Error(err))
				failed++
				return nil
			}
			if created {
				written++
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		a.logger.Error("Session archive incomplete",
			zap.String("session", session),
			zap.Int("written", written),
			zap.Int("failed", failed))
		return written, fmt.Errorf("%w: %d of %d files", ErrIncomplete, failed, len(files))
	}

	a.logger.Info("Session folder archived",
		zap.String("prefix", SessionPrefix(at.Year(), int(at.Month()), at.Day(), session)),
		zap.Int("written", written),
		zap.Int("files", len(files)))
	return written, nil
}

func (a *Archiver) put(ctx context.Context, path, objectName string) (bool, error) {
	var created bool
	err := a.retry.Do(ctx, "archive "+objectName, func(ctx context.Context) error {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		created, err = a.store.Put(ctx, objectName, storage.ContentType(path), file)
		return err
	})
	return created, err
}

// Download copies objectPath into localPath
func (a *Archiver) Download(ctx context.Context, objectPath, localPath string) error {
	reader, err := a.store.Get(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", objectPath, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return fmt.Errorf("failed to download %s: %w", objectPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", localPath, err)
	}

	a.logger.Info("Archived file downloaded",
		zap.String("object", objectPath),
		zap.String("local_path", localPath))
	return nil
}

// ListSessionFiles returns the file names archived for one session, sorted
func (a *Archiver) ListSessionFiles(ctx context.Context, year, month, day int, session string) ([]string, error) {
	prefix := SessionPrefix(year, month, day, session)
	names, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(names))
	for _, name := range names {
		rel := strings.TrimPrefix(name, prefix)
		if rel == "" || strings.Contains(rel, "/") {
			continue
		}
		files = append(files, rel)
	}
	sort.Strings(files)
	return files, nil
}
