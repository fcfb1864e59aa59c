package container

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/purchase-request/internal/alert"
	"github.com/garyjia/purchase-request/internal/application/port"
	"github.com/garyjia/purchase-request/internal/config"
	"github.com/garyjia/purchase-request/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	alerts       *alert.Notifier
	db           *database.DB
	repositories *RepositoryBundle
	storage      *StorageBundle
	external     *ExternalBundle
	services     *ServiceBundle

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	ready   atomic.Bool
	closed  atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins background work:
// 0. Error alerts, so later failures reach the alert chat
// 1. Database and repositories
// 2. Session storage and signature normalizer
// 3. External clients (Drive, Sheets, archive bucket, Lark)
// 4. Application services
// 5. Cleanup workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if c.alerts = ProvideAlerts(&c.config.Lark, &c.config.Alerts, c.logger); c.alerts != nil {
		c.logger = c.alerts.Wrap(c.logger)
		c.logger.Info("Error alerts enabled",
			zap.String("chat_id", c.config.Alerts.ChatID),
			zap.Stringer("level", c.config.Alerts.MinLevel()))
	}

	db, err := ProvideDatabase(c.ctx, &c.config.Database, c.logger)
	if err != nil {
		c.cancel()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db
	c.repositories = ProvideRepositories(db, c.logger)
	c.logger.Info("Database initialized")

	if err := os.MkdirAll(c.config.Session.BaseDir, 0755); err != nil {
		c.cancel()
		c.db.Close()
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}
	c.storage = ProvideStorage(c.config, c.logger)
	c.logger.Info("Storage initialized", zap.String("sessions_dir", c.config.Session.BaseDir))

	c.external = ProvideExternalClients(c.ctx, c.config, c.logger)
	c.logger.Info("External clients initialized",
		zap.Bool("drive", c.external.Drive != nil),
		zap.Bool("sheets", c.external.Sheets != nil),
		zap.Bool("archive", c.external.Archive != nil),
		zap.Bool("lark", c.external.Notifier != nil))

	c.services = ProvideServices(c.config, c.repositories, c.storage, c.external, c.logger)
	c.logger.Info("Application services initialized")

	c.startWorkers()

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// startWorkers runs the session folder and login session cleanup loops
func (c *Container) startWorkers() {
	interval := c.config.Session.CleanupInterval
	if interval <= 0 {
		c.logger.Info("Session cleanup disabled")
		return
	}

	c.workers.Add(2)
	go func() {
		defer c.workers.Done()
		c.storage.FolderManager.RunCleanup(c.ctx, interval, c.config.Session.MaxAge)
	}()
	go func() {
		defer c.workers.Done()
		c.expireSessions(interval)
	}()
}

func (c *Container) expireSessions(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.repositories.Sessions.DeleteExpired(); err != nil {
				c.logger.Warn("Failed to delete expired sessions", zap.Error(err))
			}
		}
	}
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}
	c.workers.Wait()
	c.logger.Info("Workers stopped")

	if c.external != nil {
		for _, closer := range c.external.closers {
			if err := closer.Close(); err != nil {
				c.logger.Error("Failed to close external client", zap.Error(err))
				errs = append(errs, fmt.Errorf("close external client: %w", err))
			}
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
	}
	if c.alerts != nil {
		c.alerts.Close()
		c.logger.Info("Error alerts stopped",
			zap.Int64("sent", c.alerts.Sent()),
			zap.Int64("dropped", c.alerts.Dropped()))
	}
	if len(errs) > 0 {
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components. Only the database and
// the sessions directory affect the overall status; external integrations
// are reported as enabled or disabled.
func (c *Container) Health() *port.HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &port.HealthStatus{
		Overall:    true,
		Components: make(map[string]port.ComponentHealth),
	}

	if c.db != nil && c.ready.Load() {
		if err := c.db.Ping(); err != nil {
			status.Components["database"] = port.ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = port.ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = port.ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if info, err := os.Stat(c.config.Session.BaseDir); err != nil || !info.IsDir() {
		status.Components["sessions_dir"] = port.ComponentHealth{Healthy: false, Message: "missing"}
		status.Overall = false
	} else {
		status.Components["sessions_dir"] = port.ComponentHealth{Healthy: true}
	}

	if c.external != nil {
		status.Components["google_drive"] = integration(c.external.Drive != nil)
		status.Components["google_sheets"] = integration(c.external.Sheets != nil)
		status.Components["archive"] = integration(c.external.Archive != nil)
		status.Components["lark"] = integration(c.external.Notifier != nil)
	}
	status.Components["alerts"] = integration(c.alerts != nil)

	return status
}

func integration(enabled bool) port.ComponentHealth {
	if enabled {
		return port.ComponentHealth{Healthy: true, Message: "enabled"}
	}
	return port.ComponentHealth{Healthy: true, Message: "disabled"}
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Logger returns the container's logger, which forwards errors to the alert
// chat once Start has enabled alerts.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
