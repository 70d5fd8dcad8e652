package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/db/models"
)

type stubPriorFinder struct {
	prior *models.CredentialDetail
	err   error

	gotTeam, gotMember, gotRole, gotCluster string
}

func (s *stubPriorFinder) FindPriorByTuple(_ context.Context, teamID, memberID, roleID, clusterID string) (*models.CredentialDetail, error) {
	s.gotTeam, s.gotMember, s.gotRole, s.gotCluster = teamID, memberID, roleID, clusterID
	return s.prior, s.err
}

func actorWith(perms ...auth.Permission) *auth.Actor {
	return &auth.Actor{Email: "actor@example.com", MemberID: "actor-1", Permissions: perms}
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()

	t.Run("admin on any team gets full grant for any requested triple", func(t *testing.T) {
		// The admin path trusts the caller-supplied member/team/role:
		// this is the on-behalf-of capability and must hold even for
		// teams the admin has no grant on.
		engine := NewEngine(&stubPriorFinder{})
		admin := actorWith(auth.Permission{TeamID: "team-x", RoleID: auth.RoleAdmin})

		d, err := engine.Authorize(ctx, admin, "team-other", "someone-else", "MEMBER", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Outcome != GrantFull {
			t.Errorf("outcome = %v, want GrantFull", d.Outcome)
		}
	})

	t.Run("team lead gets full grant on own team only", func(t *testing.T) {
		finder := &stubPriorFinder{}
		engine := NewEngine(finder)
		lead := actorWith(auth.Permission{TeamID: "team-1", RoleID: auth.RoleTeamLead})

		d, err := engine.Authorize(ctx, lead, "team-1", "member-2", "MEMBER", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Outcome != GrantFull {
			t.Errorf("own team outcome = %v, want GrantFull", d.Outcome)
		}

		// On a foreign team the lead falls through to the reuse path.
		d, err = engine.Authorize(ctx, lead, "team-2", "member-2", "MEMBER", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Outcome != Deny {
			t.Errorf("foreign team outcome = %v, want Deny", d.Outcome)
		}
	})

	t.Run("member with prior credential gets reuse only", func(t *testing.T) {
		prior := &models.CredentialDetail{
			Credential: models.Credential{ID: "cred-1", ConnectionString: "pg-prod-1.internal/analytics", DatabaseID: "db-1"},
		}
		finder := &stubPriorFinder{prior: prior}
		engine := NewEngine(finder)
		member := actorWith(auth.Permission{TeamID: "team-1", RoleID: "MEMBER"})

		d, err := engine.Authorize(ctx, member, "team-1", "actor-1", "MEMBER", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Outcome != ReuseOnly {
			t.Fatalf("outcome = %v, want ReuseOnly", d.Outcome)
		}
		if d.Prior != prior {
			t.Error("decision does not carry the prior credential")
		}
		if finder.gotTeam != "team-1" || finder.gotMember != "actor-1" || finder.gotRole != "MEMBER" || finder.gotCluster != "cluster-1" {
			t.Errorf("reuse lookup used wrong tuple: %s/%s/%s/%s",
				finder.gotTeam, finder.gotMember, finder.gotRole, finder.gotCluster)
		}
	})

	t.Run("member without prior credential is denied", func(t *testing.T) {
		engine := NewEngine(&stubPriorFinder{})
		member := actorWith(auth.Permission{TeamID: "team-1", RoleID: "MEMBER"})

		d, err := engine.Authorize(ctx, member, "team-1", "actor-1", "MEMBER", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Outcome != Deny {
			t.Errorf("outcome = %v, want Deny", d.Outcome)
		}
		if d.Reason != DenyReasonNoPrior {
			t.Errorf("reason = %q", d.Reason)
		}
	})

	t.Run("empty permission set is deny, never an error", func(t *testing.T) {
		engine := NewEngine(&stubPriorFinder{err: errors.New("should not be called")})

		d, err := engine.Authorize(ctx, actorWith(), "team-1", "actor-1", "MEMBER", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Outcome != Deny {
			t.Errorf("outcome = %v, want Deny", d.Outcome)
		}
	})

	t.Run("reuse lookup failure propagates", func(t *testing.T) {
		engine := NewEngine(&stubPriorFinder{err: errors.New("db down")})
		member := actorWith(auth.Permission{TeamID: "team-1", RoleID: "MEMBER"})

		_, err := engine.Authorize(ctx, member, "team-1", "actor-1", "MEMBER", "cluster-1")
		if err == nil {
			t.Error("expected error from failed lookup")
		}
	})
}

func TestVisibility(t *testing.T) {
	t.Run("admin sees all", func(t *testing.T) {
		f := Visibility(actorWith(auth.Permission{TeamID: "team-1", RoleID: auth.RoleAdmin}))
		if f.Scope != ScopeAll {
			t.Errorf("scope = %v, want ScopeAll", f.Scope)
		}
	})

	t.Run("team lead sees led teams", func(t *testing.T) {
		f := Visibility(actorWith(
			auth.Permission{TeamID: "team-1", RoleID: auth.RoleTeamLead},
			auth.Permission{TeamID: "team-2", RoleID: "MEMBER"},
		))
		if f.Scope != ScopeTeams {
			t.Fatalf("scope = %v, want ScopeTeams", f.Scope)
		}
		if len(f.TeamIDs) != 1 || f.TeamIDs[0] != "team-1" {
			t.Errorf("teams = %v, want [team-1]", f.TeamIDs)
		}
	})

	t.Run("plain member sees own", func(t *testing.T) {
		f := Visibility(actorWith(auth.Permission{TeamID: "team-1", RoleID: "MEMBER"}))
		if f.Scope != ScopeOwn {
			t.Fatalf("scope = %v, want ScopeOwn", f.Scope)
		}
		if f.Email != "actor@example.com" {
			t.Errorf("email = %q", f.Email)
		}
	})

	t.Run("no grants sees nothing", func(t *testing.T) {
		if f := Visibility(actorWith()); f.Scope != ScopeNone {
			t.Errorf("scope = %v, want ScopeNone", f.Scope)
		}
	})
}

func TestCanTouch(t *testing.T) {
	cred := &models.CredentialDetail{CreatorEmail: "owner@example.com"}

	admin := actorWith(auth.Permission{TeamID: "t", RoleID: auth.RoleAdmin})
	if !CanTouch(admin, cred) {
		t.Error("admin should touch any credential")
	}

	owner := &auth.Actor{Email: "owner@example.com", Permissions: []auth.Permission{{TeamID: "t", RoleID: "MEMBER"}}}
	if !CanTouch(owner, cred) {
		t.Error("creator should touch own credential")
	}

	stranger := actorWith(auth.Permission{TeamID: "t", RoleID: auth.RoleTeamLead})
	if CanTouch(stranger, cred) {
		t.Error("non-creator non-admin should not touch")
	}
}
