package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/purchase-request/internal/models"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const userColumns = `id, name, email, personal_email, address, team, password_hash,
	signature_data, signature_content_type, created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// NormalizeEmail lowercases and trims an email used as a login id
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user and sets its ID
func (r *UserRepository) Create(tx *sql.Tx, user *models.User) error {
	query := `
		INSERT INTO users (
			name, email, personal_email, address, team, password_hash,
			signature_data, signature_content_type, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	user.Email = NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := execer(r.db, tx).Exec(query,
		user.Name,
		user.Email,
		user.PersonalEmail,
		user.Address,
		user.Team,
		user.PasswordHash,
		user.SignatureData,
		user.SignatureContentType,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, user.Email)
		}
		r.logger.Error("Failed to create user", zap.String("email", user.Email), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	user.ID = id
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(id int64) (*models.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Error("Failed to get user by ID", zap.Int64("id", id), zap.Error(err))
		}
		return nil, err
	}
	return user, nil
}

// GetByEmail retrieves a user by login email, case-insensitively
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(email))
	user, err := scanUser(row)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Error("Failed to get user by email", zap.String("email", email), zap.Error(err))
		}
		return nil, err
	}
	return user, nil
}

// Update saves every mutable field of user
func (r *UserRepository) Update(tx *sql.Tx, user *models.User) error {
	query := `
		UPDATE users SET
			name = ?, email = ?, personal_email = ?, address = ?, team = ?, password_hash = ?,
			signature_data = ?, signature_content_type = ?, updated_at = ?
		WHERE id = ?
	`

	user.Email = NormalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()
	result, err := execer(r.db, tx).Exec(query,
		user.Name,
		user.Email,
		user.PersonalEmail,
		user.Address,
		user.Team,
		user.PasswordHash,
		user.SignatureData,
		user.SignatureContentType,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, user.Email)
		}
		r.logger.Error("Failed to update user", zap.Int64("id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireAffected(result, "user", user.ID)
}

// List returns every user ordered by name
func (r *UserRepository) List() ([]*models.User, error) {
	rows, err := r.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PersonalEmail,
		&user.Address,
		&user.Team,
		&user.PasswordHash,
		&user.SignatureData,
		&user.SignatureContentType,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

type sqlExecer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// execer runs on tx when one is given, otherwise directly on db
func execer(db *sql.DB, tx *sql.Tx) sqlExecer {
	if tx != nil {
		return tx
	}
	return db
}

func requireAffected(result sql.Result, entity string, id interface{}) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %v", ErrNotFound, entity, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
