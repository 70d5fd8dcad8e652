// Package models - member.go defines the Member model for CredVault accounts with email,
// display name, and an optional bcrypt password hash for password login.
package models

import (
	"strings"
	"time"
)

// Member represents a person (or service identity owner) in the system
type Member struct {
	ID           string
	Email        string
	Name         string
	PasswordHash *string // Nullable: members created via Google login have no local password
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time // Soft delete
}

// EmailLocalPart returns the portion of the member's email before the '@'.
// Used to derive external database usernames.
func (m *Member) EmailLocalPart() string {
	if idx := strings.Index(m.Email, "@"); idx >= 0 {
		return m.Email[:idx]
	}
	return m.Email
}
