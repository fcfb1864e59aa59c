package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// MinPasswordLength is the shortest password accepted on a profile update.
const MinPasswordLength = 5

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidatePasswordChange applies the profile page rules for a password change.
// It returns nil when both current and new are empty (no change requested).
func ValidatePasswordChange(current, next, confirm string) error {
	if current == "" && next == "" {
		return nil
	}
	switch {
	case current == "":
		return fmt.Errorf("current password is required to change password")
	case next == "":
		return fmt.Errorf("new password cannot be empty")
	case len(next) < MinPasswordLength:
		return fmt.Errorf("new password must be at least %d characters", MinPasswordLength)
	case next != confirm:
		return fmt.Errorf("new password and confirmation do not match")
	}
	return nil
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// PascalCase joins whitespace separated words with each word capitalised,
// "jane q doe" -> "JaneQDoe".
func PascalCase(s string) string {
	var b strings.Builder
	for _, word := range strings.Fields(s) {
		runes := []rune(strings.ToLower(word))
		b.WriteString(strings.ToUpper(string(runes[0])))
		b.WriteString(string(runes[1:]))
	}
	return b.String()
}
