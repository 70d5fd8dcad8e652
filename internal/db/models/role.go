// Package models - role.go defines the Role model. Role IDs are stable strings;
// ADMIN and TL are the two privileged ones, anything else is an ordinary member role.
package models

import "time"

// Role represents a role that can be granted on a team
type Role struct {
	ID        string // Stable string id, e.g. "ADMIN", "TL", "MEMBER"
	Name      string // Human-readable name
	CreatedAt time.Time
	UpdatedAt time.Time
}
