// Package models - team.go defines the Team model, the grouping unit that role
// grants and credential visibility are scoped to.
package models

import "time"

// Team represents a team that owns role grants and database access
type Team struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time // Soft delete
}

// TeamWithMemberCount is the dashboard projection of a team
type TeamWithMemberCount struct {
	Team
	MemberCount int
}
