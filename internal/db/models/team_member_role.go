// Package models - team_member_role.go defines the TeamMemberRole grant, the unit the
// policy engine authorizes against and the actor reference audit entries point at.
package models

import "time"

// TeamMemberRole is a (member, team, role) grant. A member may hold one grant
// per team; the pair (member_id, team_id) is unique.
type TeamMemberRole struct {
	ID        string
	MemberID  string
	TeamID    string
	RoleID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamMemberRoleDetail is a grant joined with its member, team, and role rows.
// Used by the audit recorder and credential listings, which need the full
// acting identity rather than bare foreign keys.
type TeamMemberRoleDetail struct {
	TeamMemberRole
	MemberEmail string
	MemberName  string
	TeamName    string
	RoleName    string
}
