// Package auth defines the authenticated principal model and the JWT session
// tokens that carry it. An Actor is built fresh per request from the validated
// token and never persisted; the permission set it carries is the sole input
// the policy engine authorizes against.
package auth

// Role ids are stable strings stored in the roles table. Only these two are
// privileged; any other id is treated as an ordinary member role.
const (
	RoleAdmin    = "ADMIN"
	RoleTeamLead = "TL"
)

// Permission is one (team, role) grant held by an actor. It mirrors a
// team_member_roles row but carries no database identity.
type Permission struct {
	TeamID string `json:"teamId"`
	RoleID string `json:"roleId"`
}

// Actor is the authenticated identity making a request. Permissions may be
// empty (the actor has no access anywhere) but is never nil.
type Actor struct {
	Email       string
	MemberID    string
	Permissions []Permission
}

// HasRole reports whether the actor holds roleID on any team.
func (a *Actor) HasRole(roleID string) bool {
	for _, p := range a.Permissions {
		if p.RoleID == roleID {
			return true
		}
	}
	return false
}

// HasRoleOnTeam reports whether the actor holds roleID on the given team.
func (a *Actor) HasRoleOnTeam(roleID, teamID string) bool {
	for _, p := range a.Permissions {
		if p.RoleID == roleID && p.TeamID == teamID {
			return true
		}
	}
	return false
}

// TeamsWithRole returns the ids of every team on which the actor holds roleID.
func (a *Actor) TeamsWithRole(roleID string) []string {
	var teams []string
	for _, p := range a.Permissions {
		if p.RoleID == roleID {
			teams = append(teams, p.TeamID)
		}
	}
	return teams
}

// Teams returns the ids of every team the actor belongs to, regardless of role.
func (a *Actor) Teams() []string {
	var teams []string
	for _, p := range a.Permissions {
		teams = append(teams, p.TeamID)
	}
	return teams
}

// IsAdmin reports whether the actor holds the admin role anywhere. Admins act
// across all teams.
func (a *Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}
