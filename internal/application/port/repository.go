package port

import (
	"database/sql"
	"time"

	"github.com/garyjia/purchase-request/internal/models"
)

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(tx *sql.Tx, user *models.User) error
	GetByID(id int64) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(tx *sql.Tx, user *models.User) error
}

// SessionRepository defines persistence operations for login sessions
type SessionRepository interface {
	Create(userID int64, ttl time.Duration) (*models.Session, error)
	Get(token string) (*models.Session, error)
	Delete(token string) error
}
