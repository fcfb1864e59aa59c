package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address())
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 60*24*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, time.Hour, cfg.Session.CleanupInterval)
	assert.Equal(t, "Website Responses", cfg.Google.SheetTabName)
	assert.Equal(t, 3, cfg.Upload.MaxWorkers)
	assert.Equal(t, 5, cfg.Upload.MaxAttempts)
	assert.Equal(t, 200, cfg.Signature.ThumbnailMaxWidth)
	assert.False(t, cfg.Google.HasCredentials())
	assert.False(t, cfg.Lark.Enabled())
	assert.False(t, cfg.Alerts.Enabled(cfg.Lark))
	assert.Equal(t, zapcore.ErrorLevel, cfg.Alerts.MinLevel())
	assert.Equal(t, 100, cfg.Alerts.QueueSize)
	assert.Equal(t, 10*time.Second, cfg.Alerts.SendTimeout)
}

func TestLoad_AlertChat(t *testing.T) {
	t.Setenv("LARK_APP_ID", "cli_x")
	t.Setenv("LARK_APP_SECRET", "secret")
	t.Setenv("ERROR_ALERT_CHAT_ID", "oc_ops")

	cfg, err := Load(writeConfig(t, "alerts:\n  level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, "oc_ops", cfg.Alerts.ChatID)
	assert.True(t, cfg.Alerts.Enabled(cfg.Lark))
	assert.Equal(t, zapcore.WarnLevel, cfg.Alerts.MinLevel())
	// alert chat alone is enough, submission notices stay off
	assert.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.Lark.ChatID)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8123")
	t.Setenv("GOOGLE_SETTINGS__PROJECT_ID", "proj")
	t.Setenv("GOOGLE_SETTINGS__PRIVATE_KEY", `-----BEGIN-----\nabc\n-----END-----`)
	t.Setenv("GOOGLE_SETTINGS__CLIENT_EMAIL", "bot@proj.iam.gserviceaccount.com")
	t.Setenv("GOOGLE_SHEET_ID", "sheet-1")

	cfg, err := Load(writeConfig(t, "google:\n  sheet_id: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "sheet-1", cfg.Google.SheetID)
	assert.True(t, cfg.Google.HasCredentials())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, ""))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no database", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"no templates", func(c *Config) { c.Workbook.TemplateDir = "" }, "workbook.template_dir"},
		{"partial google", func(c *Config) { c.Google.ProjectID = "proj" }, "google.project_id"},
		{"lark without secret", func(c *Config) { c.Lark.AppID = "cli_x" }, "lark.app_id"},
		{"lark without chat", func(c *Config) { c.Lark.AppID, c.Lark.AppSecret = "cli_x", "s" }, "lark.chat_id"},
		{"no workers", func(c *Config) { c.Upload.MaxWorkers = 0 }, "upload.max_workers"},
		{"alerts without lark", func(c *Config) { c.Alerts.ChatID = "oc_ops" }, "alerts.chat_id"},
		{"alerts below warn", func(c *Config) {
			c.Lark.AppID, c.Lark.AppSecret, c.Alerts.ChatID, c.Alerts.Level = "cli_x", "s", "oc_ops", "info"
		}, "alerts.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, valid().Validate())
}

func TestGoogleConfig_CredentialsJSON(t *testing.T) {
	_, err := GoogleConfig{}.CredentialsJSON()
	assert.Error(t, err)

	g := GoogleConfig{
		ProjectID:   "proj",
		PrivateKey:  `line1\nline2`,
		ClientEmail: "bot@proj.iam.gserviceaccount.com",
	}
	data, err := g.CredentialsJSON()
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "service_account", decoded["type"])
	assert.Equal(t, "line1\nline2", decoded["private_key"])
	assert.Equal(t, "bot@proj.iam.gserviceaccount.com", decoded["client_email"])
}
