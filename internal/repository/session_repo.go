package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionRepository stores login sessions keyed by an opaque token
type SessionRepository struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		now:    time.Now,
		logger: logger,
	}
}

// Create starts a session for userID lasting ttl
func (r *SessionRepository) Create(userID int64, ttl time.Duration) (*models.Session, error) {
	now := r.now().UTC()
	session := &models.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := r.db.Exec(`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		session.Token, session.UserID, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create session", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Get returns an unexpired session; expired sessions are removed and reported as ErrNotFound
func (r *SessionRepository) Get(token string) (*models.Session, error) {
	var session models.Session
	err := r.db.QueryRow(`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`, token).
		Scan(&session.Token, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get session", zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.Expired(r.now()) {
		if err := r.Delete(token); err != nil {
			r.logger.Warn("Failed to delete expired session", zap.Error(err))
		}
		return nil, ErrNotFound
	}
	return &session, nil
}

// Delete removes a session. Deleting an unknown token succeeds.
func (r *SessionRepository) Delete(token string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes every session past its expiry and returns the count
func (r *SessionRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
