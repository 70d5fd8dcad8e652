// team_repository.go implements TeamRepository, covering team CRUD and the
// member-count projection used by the dashboard.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/db/models"
)

// TeamRepository handles team database operations
type TeamRepository struct {
	db *sqlx.DB
}

// NewTeamRepository creates a new TeamRepository
func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create inserts a new team
func (r *TeamRepository) Create(ctx context.Context, team *models.Team) error {
	if team.ID == "" {
		team.ID = uuid.New().String()
	}
	team.CreatedAt = time.Now()
	team.UpdatedAt = time.Now()

	query := `INSERT INTO teams (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, team.ID, team.Name, team.CreatedAt, team.UpdatedAt)
	return err
}

// GetByID retrieves a team by ID. Soft-deleted teams are excluded.
func (r *TeamRepository) GetByID(ctx context.Context, id string) (*models.Team, error) {
	query := `
		SELECT id, name, created_at, updated_at, deleted_at
		FROM teams
		WHERE id = $1 AND deleted_at IS NULL
	`

	team := &models.Team{}
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&team.ID, &team.Name, &team.CreatedAt, &team.UpdatedAt, &team.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return team, nil
}

// List retrieves all teams, newest first
func (r *TeamRepository) List(ctx context.Context) ([]*models.Team, error) {
	query := `
		SELECT id, name, created_at, updated_at, deleted_at
		FROM teams
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		team := &models.Team{}
		if err := rows.Scan(&team.ID, &team.Name, &team.CreatedAt, &team.UpdatedAt, &team.DeletedAt); err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// Update updates a team's name
func (r *TeamRepository) Update(ctx context.Context, team *models.Team) error {
	team.UpdatedAt = time.Now()

	query := `UPDATE teams SET name = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, team.ID, team.Name, team.UpdatedAt)
	return err
}

// SoftDelete marks a team as deleted. The row is retained.
func (r *TeamRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE teams SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}

// ListWithMemberCounts returns all teams with their member counts
func (r *TeamRepository) ListWithMemberCounts(ctx context.Context) ([]*models.TeamWithMemberCount, error) {
	query := `
		SELECT t.id, t.name, t.created_at, t.updated_at, t.deleted_at,
		       COUNT(tmr.id) AS member_count
		FROM teams t
		LEFT JOIN team_member_roles tmr ON tmr.team_id = t.id
		WHERE t.deleted_at IS NULL
		GROUP BY t.id, t.name, t.created_at, t.updated_at, t.deleted_at
		ORDER BY t.name
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]*models.TeamWithMemberCount, 0)
	for rows.Next() {
		t := &models.TeamWithMemberCount{}
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt, &t.MemberCount); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}
