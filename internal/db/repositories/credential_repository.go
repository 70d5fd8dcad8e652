// credential_repository.go implements CredentialRepository for the credential
// lifecycle rows. Status transitions, the reuse lookup, and the role-scoped
// visibility queries all live here as parameterized SQL.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/db/models"
)

// CredentialRepository handles credential database operations
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialDetailSelect = `
	SELECT c.id, c.name, c.purpose, c.expiration, c.access_level, c.status,
	       c.connection_string, c.username, c.creator_id, c.database_id,
	       c.created_at, c.updated_at, c.deleted_at,
	       tmr.member_id, m.email, m.name, tmr.team_id, t.name, tmr.role_id,
	       d.name, d.cluster_id, cl.connection_string
	FROM credentials c
	JOIN team_member_roles tmr ON c.creator_id = tmr.id
	JOIN members m ON tmr.member_id = m.id
	JOIN teams t ON tmr.team_id = t.id
	JOIN databases d ON c.database_id = d.id
	JOIN clusters cl ON d.cluster_id = cl.id`

// Create inserts a new credential row in its initial status
func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.Status == "" {
		cred.Status = models.CredentialStatusPending
	}
	cred.CreatedAt = time.Now()
	cred.UpdatedAt = time.Now()

	query := `
		INSERT INTO credentials (id, name, purpose, expiration, access_level, status,
		                         connection_string, username, creator_id, database_id,
		                         created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		cred.ID, cred.Name, cred.Purpose, cred.Expiration, cred.AccessLevel, cred.Status,
		cred.ConnectionString, cred.Username, cred.CreatorID, cred.DatabaseID,
		cred.CreatedAt, cred.UpdatedAt)
	return err
}

// GetByID retrieves a credential by ID. Soft-deleted rows are still returned:
// deletion hides credentials from listings, not from direct lookup.
func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.CredentialDetail, error) {
	query := credentialDetailSelect + ` WHERE c.id = $1`
	return r.scanDetail(r.db.QueryRowxContext(ctx, query, id))
}

// MarkProvisioned transitions a credential to provisioned and persists its
// final username. The username is written once; recreate never changes it.
func (r *CredentialRepository) MarkProvisioned(ctx context.Context, id, username string) error {
	query := `
		UPDATE credentials
		SET status = $2, username = $3, updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.CredentialStatusProvisioned, username, time.Now())
	return err
}

// SoftDelete marks a credential as deleted. The row is retained and the
// external role is not revoked.
func (r *CredentialRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE credentials SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}

// FindPriorByTuple locates the most recent live credential created by the
// exact (team, member, role) grant on the given cluster. This is the policy
// engine's reuse lookup for actors without a privileged role.
func (r *CredentialRepository) FindPriorByTuple(ctx context.Context, teamID, memberID, roleID, clusterID string) (*models.CredentialDetail, error) {
	query := credentialDetailSelect + `
	WHERE tmr.team_id = $1 AND tmr.member_id = $2 AND tmr.role_id = $3
	  AND d.cluster_id = $4 AND c.deleted_at IS NULL
	ORDER BY c.created_at DESC
	LIMIT 1`
	return r.scanDetail(r.db.QueryRowxContext(ctx, query, teamID, memberID, roleID, clusterID))
}

// ListAll returns every live credential with its full joined view. Admin only.
func (r *CredentialRepository) ListAll(ctx context.Context) ([]*models.CredentialDetail, error) {
	query := credentialDetailSelect + `
	WHERE c.deleted_at IS NULL
	ORDER BY c.created_at DESC`
	return r.queryDetails(ctx, query)
}

// ListByTeams returns live credentials scoped to the given teams. Team-lead
// visibility.
func (r *CredentialRepository) ListByTeams(ctx context.Context, teamIDs []string) ([]*models.CredentialDetail, error) {
	if len(teamIDs) == 0 {
		return []*models.CredentialDetail{}, nil
	}

	query, args, err := sqlx.In(credentialDetailSelect+`
	WHERE tmr.team_id IN (?) AND c.deleted_at IS NULL
	ORDER BY c.created_at DESC`, teamIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)
	return r.queryDetails(ctx, query, args...)
}

// ListByCreatorEmail returns live credentials personally created by the given
// member. Ordinary-member visibility.
func (r *CredentialRepository) ListByCreatorEmail(ctx context.Context, email string) ([]*models.CredentialDetail, error) {
	query := credentialDetailSelect + `
	WHERE m.email = $1 AND c.deleted_at IS NULL
	ORDER BY c.created_at DESC`
	return r.queryDetails(ctx, query, email)
}

func (r *CredentialRepository) queryDetails(ctx context.Context, query string, args ...interface{}) ([]*models.CredentialDetail, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creds := make([]*models.CredentialDetail, 0)
	for rows.Next() {
		c := &models.CredentialDetail{}
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Purpose, &c.Expiration, &c.AccessLevel, &c.Status,
			&c.ConnectionString, &c.Username, &c.CreatorID, &c.DatabaseID,
			&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
			&c.CreatorMemberID, &c.CreatorEmail, &c.CreatorName, &c.TeamID, &c.TeamName, &c.RoleID,
			&c.DatabaseName, &c.ClusterID, &c.ClusterEndpoint); err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (r *CredentialRepository) scanDetail(row *sqlx.Row) (*models.CredentialDetail, error) {
	c := &models.CredentialDetail{}
	err := row.Scan(
		&c.ID, &c.Name, &c.Purpose, &c.Expiration, &c.AccessLevel, &c.Status,
		&c.ConnectionString, &c.Username, &c.CreatorID, &c.DatabaseID,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
		&c.CreatorMemberID, &c.CreatorEmail, &c.CreatorName, &c.TeamID, &c.TeamName, &c.RoleID,
		&c.DatabaseName, &c.ClusterID, &c.ClusterEndpoint)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
