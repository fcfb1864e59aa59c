package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// Strategy retries transient failures with exponential backoff
type Strategy struct {
	MaxAttempts int           // Default: 5
	BaseBackoff time.Duration // Default: 1 second
	MaxBackoff  time.Duration // zero means uncapped
	MaxJitter   time.Duration // random extra delay in [0, MaxJitter)

	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

// NewStrategy creates a Strategy with the defaults used for Google API calls
func NewStrategy(logger *zap.Logger) *Strategy {
	return &Strategy{
		MaxAttempts: 5,
		BaseBackoff: 1 * time.Second,
		MaxJitter:   1 * time.Second,
		sleep:       sleepContext,
		logger:      logger,
	}
}

// CalculateBackoff returns the delay after failed attempt n:
// BaseBackoff * 2^(n-1) plus jitter.
func (s *Strategy) CalculateBackoff(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		attemptNumber = 1
	}

	multiplier := math.Pow(2, float64(attemptNumber-1))
	backoff := time.Duration(multiplier) * s.BaseBackoff

	if s.MaxBackoff > 0 && backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}

	if s.MaxJitter > 0 {
		backoff += time.Duration(rand.Int63n(int64(s.MaxJitter)))
	}

	return backoff
}

// Do runs fn until it succeeds, returns a non-retryable error, or MaxAttempts
// is reached. Waiting between attempts stops early when ctx is done.
func (s *Strategy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := s.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if !IsRetryable(err) || attempt == attempts {
			break
		}

		backoff := s.CalculateBackoff(attempt)
		if s.logger != nil {
			s.logger.Warn("Transient error, retrying",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("backoff", backoff),
				zap.Error(err))
		}

		if waitErr := sleep(ctx, backoff); waitErr != nil {
			return fmt.Errorf("%s cancelled after %d attempts: %w", operation, attempt, waitErr)
		}
	}

	return fmt.Errorf("%s failed: %w", operation, err)
}

// IsRetryable reports whether err is a transient API or network failure
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return IsRetryableStatusCode(apiErr.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "reset by peer") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout")
}

// IsRetryableStatusCode determines if HTTP status warrants retry
func IsRetryableStatusCode(statusCode int) bool {
	if statusCode >= 400 && statusCode < 500 {
		return statusCode == 429
	}
	return statusCode >= 500 && statusCode < 600
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
