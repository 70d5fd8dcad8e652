// Package policy implements the authorization engine for credential
// operations. It decides, per request, whether an actor may mint or rotate a
// credential for a requested (team, member, role) triple, and which visibility
// filter applies to listings.
package policy

import (
	"context"

	"github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/db/models"
)

// Outcome is the result class of an authorization check
type Outcome int

const (
	// Deny refuses the operation outright
	Deny Outcome = iota
	// GrantFull allows the operation exactly as requested
	GrantFull
	// ReuseOnly allows the operation only by reusing the actor's prior
	// credential on the same (team, member, role, cluster) tuple
	ReuseOnly
)

// DenyReasonNoPrior is returned when a plain member has no credential to reuse
const DenyReasonNoPrior = "no prior credential to reuse - escalate to team lead or admin"

// Decision is the full result of an authorization check. Prior is set only
// for ReuseOnly outcomes.
type Decision struct {
	Outcome Outcome
	Reason  string
	Prior   *models.CredentialDetail
}

// PriorCredentialFinder locates the most recent credential created by an
// exact (team, member, role, cluster) tuple.
type PriorCredentialFinder interface {
	FindPriorByTuple(ctx context.Context, teamID, memberID, roleID, clusterID string) (*models.CredentialDetail, error)
}

// Engine evaluates authorization decisions against the actor's grants and,
// for the reuse fallback, prior credential history.
type Engine struct {
	prior PriorCredentialFinder
}

// NewEngine creates a policy engine
func NewEngine(prior PriorCredentialFinder) *Engine {
	return &Engine{prior: prior}
}

// Authorize decides whether actor may create a credential for the requested
// (team, member, role) triple on the given cluster.
//
// An ADMIN grant on any team yields GrantFull for the exact caller-supplied
// triple. This trusts the requested identity and is a deliberate on-behalf-of
// capability, not a missing check.
func (e *Engine) Authorize(ctx context.Context, actor *auth.Actor, teamID, memberID, roleID, clusterID string) (Decision, error) {
	if actor == nil || len(actor.Permissions) == 0 {
		return Decision{Outcome: Deny, Reason: "actor holds no grants"}, nil
	}

	if actor.IsAdmin() {
		return Decision{Outcome: GrantFull}, nil
	}

	if actor.HasRoleOnTeam(auth.RoleTeamLead, teamID) {
		return Decision{Outcome: GrantFull}, nil
	}

	prior, err := e.prior.FindPriorByTuple(ctx, teamID, memberID, roleID, clusterID)
	if err != nil {
		return Decision{}, err
	}
	if prior == nil {
		return Decision{Outcome: Deny, Reason: DenyReasonNoPrior}, nil
	}
	return Decision{Outcome: ReuseOnly, Prior: prior}, nil
}

// Scope is the listing visibility class for an actor
type Scope int

const (
	// ScopeNone sees nothing (actor holds no grants)
	ScopeNone Scope = iota
	// ScopeAll sees every credential (admin)
	ScopeAll
	// ScopeTeams sees credentials belonging to the listed teams (team lead)
	ScopeTeams
	// ScopeOwn sees only credentials the actor personally created
	ScopeOwn
)

// Filter is the visibility predicate applied to credential listings
type Filter struct {
	Scope   Scope
	TeamIDs []string // Populated for ScopeTeams
	Email   string   // Populated for ScopeOwn
}

// Visibility returns the listing filter for an actor: admin sees all, team
// leads see their led teams, plain members see only what they created.
func Visibility(actor *auth.Actor) Filter {
	if actor == nil || len(actor.Permissions) == 0 {
		return Filter{Scope: ScopeNone}
	}
	if actor.IsAdmin() {
		return Filter{Scope: ScopeAll}
	}
	if teams := actor.TeamsWithRole(auth.RoleTeamLead); len(teams) > 0 {
		return Filter{Scope: ScopeTeams, TeamIDs: teams}
	}
	return Filter{Scope: ScopeOwn, Email: actor.Email}
}

// CanTouch reports whether the actor may recreate or delete an existing
// credential: admins may touch anything, everyone else only what they created.
func CanTouch(actor *auth.Actor, cred *models.CredentialDetail) bool {
	if actor == nil || cred == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return cred.CreatorEmail == actor.Email
}
