package service

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/garyjia/purchase-request/internal/application/port"
	"github.com/garyjia/purchase-request/internal/models"
	"github.com/garyjia/purchase-request/internal/repository"
	"github.com/garyjia/purchase-request/internal/signature"
	"github.com/garyjia/purchase-request/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const DefaultSessionTTL = 7 * 24 * time.Hour

// SignatureUpload is a signature file submitted on the profile page or CLI
type SignatureUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProfileUpdate carries the editable profile fields. Empty password fields
// leave the password unchanged.
type ProfileUpdate struct {
	Name            string
	Email           string
	PersonalEmail   string
	Address         string
	Team            string
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
	Signature       *SignatureUpload
}

// ProfileResult reports what UpdateProfile changed
type ProfileResult struct {
	User             *models.User
	PasswordChanged  bool
	PasswordError    error
	SignatureUpdated bool
}

// UserInput creates or replaces a user from the command line
type UserInput struct {
	Name          string
	Email         string
	PersonalEmail string
	Address       string
	Team          string
	Password      string
	Signature     *SignatureUpload
}

// UserService manages accounts, logins and profiles
type UserService interface {
	Login(email, password string) (*models.User, *models.Session, error)
	Logout(token string) error
	Authenticate(token string) (*models.User, error)
	UpdateProfile(userID int64, update ProfileUpdate) (*ProfileResult, error)
	CreateOrUpdateUser(input UserInput) (*models.User, bool, error)
	IsProfileComplete(user *models.User) bool
}

type userServiceImpl struct {
	users      port.UserRepository
	sessions   port.SessionRepository
	signatures port.SignatureNormalizer
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(
	users port.UserRepository,
	sessions port.SessionRepository,
	signatures port.SignatureNormalizer,
	sessionTTL time.Duration,
	logger *zap.Logger,
) UserService {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &userServiceImpl{
		users:      users,
		sessions:   sessions,
		signatures: signatures,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// HashPassword returns the bcrypt hash stored for a password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Login verifies credentials and starts a session
func (s *userServiceImpl) Login(email, password string) (*models.User, *models.Session, error) {
	user, err := s.users.GetByEmail(email)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Failed login attempt", zap.String("email", email))
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !checkPassword(user.PasswordHash, password) {
		s.logger.Warn("Failed login attempt", zap.String("email", email))
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.sessions.Create(user.ID, s.sessionTTL)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("User login", zap.String("name", user.Name), zap.String("email", user.Email))
	return user, session, nil
}

// Logout ends a session
func (s *userServiceImpl) Logout(token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Delete(token)
}

// Authenticate resolves a session token to its user
func (s *userServiceImpl) Authenticate(token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	session, err := s.sessions.Get(token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(session.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile saves the profile fields. A rejected password change is
// reported in the result and does not block the other fields.
func (s *userServiceImpl) UpdateProfile(userID int64, update ProfileUpdate) (*ProfileResult, error) {
	user, err := s.users.GetByID(userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	email := utils.SanitizeString(update.Email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	user.Name = utils.SanitizeString(update.Name)
	user.Email = email
	user.PersonalEmail = utils.SanitizeString(update.PersonalEmail)
	user.Address = utils.SanitizeString(update.Address)
	user.Team = utils.SanitizeString(update.Team)

	result := &ProfileResult{User: user}

	current := strings.TrimSpace(update.CurrentPassword)
	next := strings.TrimSpace(update.NewPassword)
	confirm := strings.TrimSpace(update.ConfirmPassword)
	if current != "" || next != "" {
		result.PasswordError = utils.ValidatePasswordChange(current, next, confirm)
		if result.PasswordError == nil && !checkPassword(user.PasswordHash, current) {
			result.PasswordError = errors.New("current password is incorrect")
		}
		if result.PasswordError == nil {
			hash, err := HashPassword(next)
			if err != nil {
				return nil, err
			}
			user.PasswordHash = hash
			result.PasswordChanged = true
		} else {
			s.logger.Warn("Password change rejected",
				zap.String("email", user.Email),
				zap.Error(result.PasswordError))
		}
	}

	if update.Signature != nil && len(update.Signature.Data) > 0 {
		s.applySignature(user, update.Signature)
		result.SignatureUpdated = true
	}

	if err := s.users.Update(nil, user); err != nil {
		return nil, err
	}

	s.logger.Info("Profile updated",
		zap.Int64("user_id", user.ID),
		zap.Bool("password_changed", result.PasswordChanged),
		zap.Bool("signature_updated", result.SignatureUpdated))
	return result, nil
}

// CreateOrUpdateUser creates the user or replaces every field of an existing
// one with the same email. It reports whether a new user was created.
func (s *userServiceImpl) CreateOrUpdateUser(input UserInput) (*models.User, bool, error) {
	if err := utils.ValidateEmail(strings.TrimSpace(input.Email)); err != nil {
		return nil, false, err
	}
	if input.Password == "" {
		return nil, false, errors.New("password is required")
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.users.GetByEmail(input.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	user := existing
	created := user == nil
	if created {
		user = &models.User{Email: input.Email}
	}
	user.Name = utils.SanitizeString(input.Name)
	user.PersonalEmail = utils.SanitizeString(input.PersonalEmail)
	user.Address = utils.SanitizeString(input.Address)
	user.Team = utils.SanitizeString(input.Team)
	user.PasswordHash = hash
	if input.Signature != nil && len(input.Signature.Data) > 0 {
		s.applySignature(user, input.Signature)
	}

	if created {
		err = s.users.Create(nil, user)
	} else {
		err = s.users.Update(nil, user)
	}
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("User saved",
		zap.String("email", user.Email),
		zap.Bool("created", created))
	return user, created, nil
}

// IsProfileComplete reports whether the user can submit purchase requests
func (s *userServiceImpl) IsProfileComplete(user *models.User) bool {
	return user.ProfileComplete()
}

// applySignature stores the signature as PNG, or the raw upload when it cannot be converted
func (s *userServiceImpl) applySignature(user *models.User, upload *SignatureUpload) {
	ext := filepath.Ext(upload.Filename)
	if ext == "" {
		ext = "." + signature.Extension(upload.ContentType, upload.Data)
	}

	png, err := s.signatures.ConvertBytes(upload.Data, ext)
	if err != nil {
		s.logger.Warn("Failed to convert signature to PNG, storing original",
			zap.String("email", user.Email),
			zap.String("filename", upload.Filename),
			zap.Error(err))
		user.SignatureData = upload.Data
		user.SignatureContentType = upload.ContentType
		return
	}

	user.SignatureData = png
	user.SignatureContentType = "image/png"
}
