// Package alert forwards error-level log entries to an operator chat.
package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerName is the name of the notifier's own logger. Entries from it and
// its children are never forwarded, so a failing send cannot alert itself.
const LoggerName = "alert"

const (
	defaultQueueSize   = 100
	defaultSendTimeout = 10 * time.Second
	maxAlertLength     = 4000
	alertTimeLayout    = "2006-01-02 15:04:05"
)

// TextSender delivers a plain text chat message
type TextSender interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error)
}

// Config configures the alert Notifier
type Config struct {
	ReceiveIDType string
	ReceiveID     string
	Level         zapcore.Level
	QueueSize     int
	SendTimeout   time.Duration
}

// Notifier queues alert messages and sends them from a single worker.
// Logging never blocks on the chat API: when the queue is full the alert
// is counted as dropped.
type Notifier struct {
	sender  TextSender
	config  Config
	queue   chan string
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	sent    atomic.Int64
	dropped atomic.Int64
	logger  *zap.Logger
}

// NewNotifier starts the send worker. logger should be the plain
// application logger; it is renamed to LoggerName.
func NewNotifier(sender TextSender, config Config, logger *zap.Logger) *Notifier {
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaultSendTimeout
	}

	n := &Notifier{
		sender: sender,
		config: config,
		queue:  make(chan string, config.QueueSize),
		done:   make(chan struct{}),
		logger: logger.Named(LoggerName),
	}
	go n.run()
	return n
}

// Core returns a zapcore.Core that forwards entries at or above the
// configured level. Tee it with the application's core.
func (n *Notifier) Core() zapcore.Core {
	return &alertCore{LevelEnabler: n.config.Level, notifier: n}
}

// Wrap returns logger with the alert core teed onto it
func (n *Notifier) Wrap(logger *zap.Logger) *zap.Logger {
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, n.Core())
	}))
}

// Sent is the number of alerts delivered
func (n *Notifier) Sent() int64 { return n.sent.Load() }

// Dropped is the number of alerts discarded because the queue was full or
// the notifier was closed
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

// Close stops accepting alerts and waits for queued ones to be sent
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	<-n.done
	return nil
}

func (n *Notifier) enqueue(text string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.dropped.Add(1)
		return
	}
	select {
	case n.queue <- text:
	default:
		n.dropped.Add(1)
	}
}

func (n *Notifier) run() {
	defer close(n.done)

	for text := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.config.SendTimeout)
		_, err := n.sender.SendText(ctx, n.config.ReceiveIDType, n.config.ReceiveID, text)
		cancel()

		if err != nil {
			n.logger.Warn("Failed to send error alert", zap.Error(err))
			continue
		}
		n.sent.Add(1)
	}
}

// FormatAlert renders one log entry as the alert message body
func FormatAlert(entry zapcore.Entry, fields []zapcore.Field) string {
	var b strings.Builder
	b.WriteString("Application Error Alert\n\n")
	fmt.Fprintf(&b, "Time: %s\n", entry.Time.Format(alertTimeLayout))
	fmt.Fprintf(&b, "Level: %s\n", entry.Level.CapitalString())
	if entry.LoggerName != "" {
		fmt.Fprintf(&b, "Logger: %s\n", entry.LoggerName)
	}
	if entry.Caller.Defined {
		fmt.Fprintf(&b, "File: %s\n", entry.Caller.TrimmedPath())
		if entry.Caller.Function != "" {
			fmt.Fprintf(&b, "Function: %s\n", entry.Caller.Function)
		}
	}

	b.WriteString("\nError Message:\n")
	b.WriteString(entry.Message)
	b.WriteString("\n")

	if len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, field := range fields {
			field.AddTo(enc)
		}
		keys := make([]string, 0, len(enc.Fields))
		for key := range enc.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "%s: %v\n", key, enc.Fields[key])
		}
	}

	b.WriteString("\n---\nPurchase Request Site Error Notification System")

	text := b.String()
	if len(text) > maxAlertLength {
		text = text[:maxAlertLength] + "\n[truncated]"
	}
	return text
}

type alertCore struct {
	zapcore.LevelEnabler
	notifier *Notifier
	fields   []zapcore.Field
}

func (c *alertCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &alertCore{LevelEnabler: c.LevelEnabler, notifier: c.notifier, fields: merged}
}

func (c *alertCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) || fromAlertLogger(entry.LoggerName) {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *alertCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)
	c.notifier.enqueue(FormatAlert(entry, all))
	return nil
}

func (c *alertCore) Sync() error { return nil }

func fromAlertLogger(name string) bool {
	return name == LoggerName || strings.HasPrefix(name, LoggerName+".")
}
