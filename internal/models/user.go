package models

import (
	"strings"
	"time"
)

// User is a registered submitter
type User struct {
	ID                   int64     `json:"id"`
	Name                 string    `json:"name"`
	Email                string    `json:"email"`          // institutional email, login id
	PersonalEmail        string    `json:"personal_email"` // e-transfer destination
	Address              string    `json:"address"`
	Team                 string    `json:"team"`
	PasswordHash         string    `json:"-"`
	SignatureData        []byte    `json:"-"`
	SignatureContentType string    `json:"signature_content_type,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ProfileComplete reports whether every field needed to submit is filled in.
func (u *User) ProfileComplete() bool {
	if u == nil || len(u.SignatureData) == 0 {
		return false
	}
	for _, field := range []string{u.Name, u.Email, u.PersonalEmail, u.Address, u.Team} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// UserInfo is the submitter identity printed on generated documents and the log row.
type UserInfo struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	ETransferEmail string `json:"e_transfer_email"`
	Address        string `json:"address"`
	Team           string `json:"team"`
}

// Info returns the identity printed on the user's documents
func (u *User) Info() UserInfo {
	return UserInfo{
		Name:           u.Name,
		Email:          u.Email,
		ETransferEmail: u.PersonalEmail,
		Address:        u.Address,
		Team:           u.Team,
	}
}

// Session is a logged-in browser session
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
