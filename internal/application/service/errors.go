package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnauthenticated    = errors.New("session is missing or expired")
	ErrNoForms            = errors.New("no valid forms submitted")
	ErrInvalidProfile     = errors.New("invalid profile")
	ErrDriveDisabled      = errors.New("google drive is not configured")
)
