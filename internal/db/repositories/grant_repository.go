// grant_repository.go implements GrantRepository over team_member_roles, the
// (member, team, role) grants the policy engine authorizes against and the
// audit recorder resolves acting identities to.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/db/models"
)

// GrantRepository handles team_member_roles database operations
type GrantRepository struct {
	db *sqlx.DB
}

// NewGrantRepository creates a new GrantRepository
func NewGrantRepository(db *sqlx.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// Create inserts a new grant. The (member_id, team_id) pair is unique; a
// duplicate insert fails with a constraint violation.
func (r *GrantRepository) Create(ctx context.Context, grant *models.TeamMemberRole) error {
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	grant.CreatedAt = time.Now()
	grant.UpdatedAt = time.Now()

	query := `
		INSERT INTO team_member_roles (id, member_id, team_id, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		grant.ID, grant.MemberID, grant.TeamID, grant.RoleID,
		grant.CreatedAt, grant.UpdatedAt)
	return err
}

// GetByID retrieves a grant by ID
func (r *GrantRepository) GetByID(ctx context.Context, id string) (*models.TeamMemberRole, error) {
	query := `
		SELECT id, member_id, team_id, role_id, created_at, updated_at
		FROM team_member_roles
		WHERE id = $1
	`

	grant := &models.TeamMemberRole{}
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&grant.ID, &grant.MemberID, &grant.TeamID, &grant.RoleID,
		&grant.CreatedAt, &grant.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// GetByTriple retrieves the grant matching an exact (member, team, role)
// triple, or nil when the triple does not exist as a grant.
func (r *GrantRepository) GetByTriple(ctx context.Context, memberID, teamID, roleID string) (*models.TeamMemberRole, error) {
	query := `
		SELECT id, member_id, team_id, role_id, created_at, updated_at
		FROM team_member_roles
		WHERE member_id = $1 AND team_id = $2 AND role_id = $3
	`

	grant := &models.TeamMemberRole{}
	err := r.db.QueryRowxContext(ctx, query, memberID, teamID, roleID).Scan(
		&grant.ID, &grant.MemberID, &grant.TeamID, &grant.RoleID,
		&grant.CreatedAt, &grant.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// ListByMember returns all grants a member holds, one per team.
// This is the permission set embedded in the session token at login.
func (r *GrantRepository) ListByMember(ctx context.Context, memberID string) ([]*models.TeamMemberRole, error) {
	query := `
		SELECT id, member_id, team_id, role_id, created_at, updated_at
		FROM team_member_roles
		WHERE member_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryxContext(ctx, query, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := make([]*models.TeamMemberRole, 0)
	for rows.Next() {
		grant := &models.TeamMemberRole{}
		if err := rows.Scan(
			&grant.ID, &grant.MemberID, &grant.TeamID, &grant.RoleID,
			&grant.CreatedAt, &grant.UpdatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

// FindByEmail resolves a member email to the first grant on any of that
// member's teams. Used by the audit recorder for team-scoped events.
func (r *GrantRepository) FindByEmail(ctx context.Context, email string) (*models.TeamMemberRoleDetail, error) {
	query := `
		SELECT tmr.id, tmr.member_id, tmr.team_id, tmr.role_id, tmr.created_at, tmr.updated_at,
		       m.email, m.name, t.name, ro.name
		FROM team_member_roles tmr
		JOIN members m ON tmr.member_id = m.id
		JOIN teams t ON tmr.team_id = t.id
		JOIN roles ro ON tmr.role_id = ro.id
		WHERE m.email = $1
		ORDER BY tmr.created_at
		LIMIT 1
	`
	return r.scanDetail(r.db.QueryRowxContext(ctx, query, email))
}

// FindByEmailAndRole resolves a member email to a grant carrying the given
// role. Used by the audit recorder for admin-scoped (database/cluster) events.
func (r *GrantRepository) FindByEmailAndRole(ctx context.Context, email, roleID string) (*models.TeamMemberRoleDetail, error) {
	query := `
		SELECT tmr.id, tmr.member_id, tmr.team_id, tmr.role_id, tmr.created_at, tmr.updated_at,
		       m.email, m.name, t.name, ro.name
		FROM team_member_roles tmr
		JOIN members m ON tmr.member_id = m.id
		JOIN teams t ON tmr.team_id = t.id
		JOIN roles ro ON tmr.role_id = ro.id
		WHERE m.email = $1 AND tmr.role_id = $2
		ORDER BY tmr.created_at
		LIMIT 1
	`
	return r.scanDetail(r.db.QueryRowxContext(ctx, query, email, roleID))
}

// Delete removes a grant. Fails with a constraint violation if audit history
// or credentials still reference it.
func (r *GrantRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM team_member_roles WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *GrantRepository) scanDetail(row *sqlx.Row) (*models.TeamMemberRoleDetail, error) {
	d := &models.TeamMemberRoleDetail{}
	err := row.Scan(
		&d.ID, &d.MemberID, &d.TeamID, &d.RoleID, &d.CreatedAt, &d.UpdatedAt,
		&d.MemberEmail, &d.MemberName, &d.TeamName, &d.RoleName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
