package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap/zapcore"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Session   SessionConfig   `mapstructure:"session"`
	Workbook  WorkbookConfig  `mapstructure:"workbook"`
	Signature SignatureConfig `mapstructure:"signature"`
	Google    GoogleConfig    `mapstructure:"google"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Lark      LarkConfig      `mapstructure:"lark"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// SessionConfig covers login sessions and local session folders
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	BaseDir         string        `mapstructure:"base_dir"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

// WorkbookConfig locates the Excel templates
type WorkbookConfig struct {
	TemplateDir string `mapstructure:"template_dir"`
}

// SignatureConfig caps the width of converted and embedded signatures
type SignatureConfig struct {
	ConversionMaxWidth int `mapstructure:"conversion_max_width"`
	ThumbnailMaxWidth  int `mapstructure:"thumbnail_max_width"`
}

// GoogleConfig holds the service account and the Drive and Sheets targets.
// Drive and Sheets are disabled when the service account is incomplete.
type GoogleConfig struct {
	ProjectID         string `mapstructure:"project_id"`
	PrivateKeyID      string `mapstructure:"private_key_id"`
	PrivateKey        string `mapstructure:"private_key"`
	ClientEmail       string `mapstructure:"client_email"`
	ClientID          string `mapstructure:"client_id"`
	ClientX509CertURL string `mapstructure:"client_x509_cert_url"`
	DriveFolderID     string `mapstructure:"drive_folder_id"`
	SheetID           string `mapstructure:"sheet_id"`
	SheetTabName      string `mapstructure:"sheet_tab_name"`
}

// ArchiveConfig enables the Cloud Storage copy of every session folder
type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// LarkConfig holds Lark bot credentials for submission notices
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	ChatID    string `mapstructure:"chat_id"`
}

// AlertsConfig routes error-level log entries to a Lark chat through the
// bot configured under lark
type AlertsConfig struct {
	ChatID      string        `mapstructure:"chat_id"`
	Level       string        `mapstructure:"level"`
	QueueSize   int           `mapstructure:"queue_size"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// UploadConfig tunes the Drive and archive upload workers
type UploadConfig struct {
	MaxWorkers      int           `mapstructure:"max_workers"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff"`
	SequentialPause time.Duration `mapstructure:"sequential_pause"`
}

// Load reads configPath, then .env and ../.env, then the environment.
// Later sources win; a .env value never replaces one already exported.
func Load(configPath string) (*Config, error) {
	for _, path := range []string{".env", filepath.Join("..", ".env")} {
		if err := loadDotEnv(path); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports variables from path without overriding the environment.
// A missing file is not an error.
func loadDotEnv(path string) error {
	err := gotenv.Load(path)
	if err == nil || os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_mb", 100)
	v.SetDefault("server.secure_cookies", false)

	// Database defaults
	v.SetDefault("database.path", "data/purchase_request.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Session defaults
	v.SetDefault("session.ttl", 7*24*time.Hour)
	v.SetDefault("session.base_dir", "sessions")
	v.SetDefault("session.cleanup_interval", time.Hour)
	v.SetDefault("session.max_age", 60*24*time.Hour)

	v.SetDefault("workbook.template_dir", "templates")

	v.SetDefault("signature.conversion_max_width", 400)
	v.SetDefault("signature.thumbnail_max_width", 200)

	v.SetDefault("google.sheet_tab_name", "Website Responses")

	// Upload defaults
	v.SetDefault("alerts.level", "error")
	v.SetDefault("alerts.queue_size", 100)
	v.SetDefault("alerts.send_timeout", 10*time.Second)

	v.SetDefault("upload.max_workers", 3)
	v.SetDefault("upload.max_attempts", 5)
	v.SetDefault("upload.base_backoff", time.Second)
	v.SetDefault("upload.sequential_pause", 500*time.Millisecond)
}

// bindEnvVars binds the deployment environment variable names
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.host", "HOST")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("google.project_id", "GOOGLE_SETTINGS__PROJECT_ID")
	_ = v.BindEnv("google.private_key_id", "GOOGLE_SETTINGS__PRIVATE_KEY_ID")
	_ = v.BindEnv("google.private_key", "GOOGLE_SETTINGS__PRIVATE_KEY")
	_ = v.BindEnv("google.client_email", "GOOGLE_SETTINGS__CLIENT_EMAIL")
	_ = v.BindEnv("google.client_id", "GOOGLE_SETTINGS__CLIENT_ID")
	_ = v.BindEnv("google.client_x509_cert_url", "GOOGLE_SETTINGS__CLIENT_X509_CERT_URL")
	_ = v.BindEnv("google.drive_folder_id", "GOOGLE_DRIVE_FOLDER_ID")
	_ = v.BindEnv("google.sheet_id", "GOOGLE_SHEET_ID")
	_ = v.BindEnv("google.sheet_tab_name", "GOOGLE_SHEET_TAB_NAME")
	_ = v.BindEnv("archive.bucket", "ARCHIVE_BUCKET")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.chat_id", "LARK_CHAT_ID")
	_ = v.BindEnv("alerts.chat_id", "ERROR_ALERT_CHAT_ID")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Session.BaseDir == "" {
		return fmt.Errorf("session.base_dir is required")
	}
	if c.Workbook.TemplateDir == "" {
		return fmt.Errorf("workbook.template_dir is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Upload.MaxWorkers <= 0 {
		return fmt.Errorf("upload.max_workers must be positive")
	}
	if c.Upload.MaxAttempts <= 0 {
		return fmt.Errorf("upload.max_attempts must be positive")
	}

	// Partial credentials are a deployment mistake; none at all disables Google
	if c.Google.HasAnyCredentials() && !c.Google.HasCredentials() {
		return fmt.Errorf("google.project_id, google.private_key and google.client_email are all required")
	}
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}
	if c.Lark.Enabled() && c.Lark.ChatID == "" && c.Alerts.ChatID == "" {
		return fmt.Errorf("lark.chat_id or alerts.chat_id is required when lark is configured")
	}
	if c.Alerts.ChatID != "" && !c.Lark.Enabled() {
		return fmt.Errorf("alerts.chat_id requires lark.app_id and lark.app_secret")
	}
	if c.Alerts.ChatID != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(c.Alerts.Level)); err != nil || level < zapcore.WarnLevel {
			return fmt.Errorf("alerts.level must be warn, error, dpanic, panic or fatal, got %q", c.Alerts.Level)
		}
	}

	return nil
}

// HasCredentials reports whether the required service account fields are set
func (g GoogleConfig) HasCredentials() bool {
	return g.ProjectID != "" && g.PrivateKey != "" && g.ClientEmail != ""
}

// HasAnyCredentials reports whether any required service account field is set
func (g GoogleConfig) HasAnyCredentials() bool {
	return g.ProjectID != "" || g.PrivateKey != "" || g.ClientEmail != ""
}

// CredentialsJSON builds the service account key file content. Escaped
// newlines in the private key are restored.
func (g GoogleConfig) CredentialsJSON() ([]byte, error) {
	if !g.HasCredentials() {
		return nil, fmt.Errorf("google service account is not configured")
	}

	info := map[string]string{
		"type":                        "service_account",
		"project_id":                  g.ProjectID,
		"private_key_id":              g.PrivateKeyID,
		"private_key":                 strings.ReplaceAll(g.PrivateKey, `\n`, "\n"),
		"client_email":                g.ClientEmail,
		"client_id":                   g.ClientID,
		"auth_uri":                    "https://accounts.google.com/o/oauth2/auth",
		"token_uri":                   "https://oauth2.googleapis.com/token",
		"auth_provider_x509_cert_url": "https://www.googleapis.com/oauth2/v1/certs",
		"client_x509_cert_url":        g.ClientX509CertURL,
	}

	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode service account: %w", err)
	}
	return data, nil
}

// Enabled reports whether Lark notifications are configured
func (l LarkConfig) Enabled() bool {
	return l.AppID != "" && l.AppSecret != ""
}

// Enabled reports whether error alerts are configured
func (a AlertsConfig) Enabled(lark LarkConfig) bool {
	return a.ChatID != "" && lark.Enabled()
}

// MinLevel is the lowest level forwarded, error when unset or invalid
func (a AlertsConfig) MinLevel() zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(a.Level)); err != nil {
		return zapcore.ErrorLevel
	}
	return level
}

// Address returns the listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
