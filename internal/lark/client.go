package lark

import (
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// Receive id types accepted by the im/v1 message API
const (
	ReceiveIDChat  = "chat_id"
	ReceiveIDOpen  = "open_id"
	ReceiveIDEmail = "email"
)

// Client wraps the Lark SDK client
type Client struct {
	client *lark.Client
	logger *zap.Logger
}

// Config holds Lark app credentials
type Config struct {
	AppID     string
	AppSecret string
}

// NewClient creates a new Lark client with tenant token caching
func NewClient(cfg Config, logger *zap.Logger) *Client {
	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelWarn),
		lark.WithEnableTokenCache(true),
	)

	return &Client{
		client: client,
		logger: logger,
	}
}
