// audit_repository.go implements AuditRepository, the append-only store for
// audit entries. Entries are written once and never updated.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/db/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends a new audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt

	query := `
		INSERT INTO audit_logs (id, actor_id, action, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.ActorID, entry.Action, entry.CreatedAt, entry.UpdatedAt)
	return err
}

// List retrieves audit entries joined with their acting grants, newest first
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*models.AuditLogDetail, error) {
	query := `
		SELECT a.id, a.actor_id, a.action, a.created_at, a.updated_at, a.deleted_at,
		       m.email, m.name, tmr.team_id, t.name, tmr.role_id
		FROM audit_logs a
		JOIN team_member_roles tmr ON a.actor_id = tmr.id
		JOIN members m ON tmr.member_id = m.id
		JOIN teams t ON tmr.team_id = t.id
		WHERE a.deleted_at IS NULL
		ORDER BY a.created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryxContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*models.AuditLogDetail, 0)
	for rows.Next() {
		e := &models.AuditLogDetail{}
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
			&e.ActorEmail, &e.ActorName, &e.ActorTeamID, &e.ActorTeamName, &e.ActorRoleID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the total number of live audit entries
func (r *AuditRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM audit_logs WHERE deleted_at IS NULL`).Scan(&total)
	return total, err
}

// GetByID retrieves a single audit entry
func (r *AuditRepository) GetByID(ctx context.Context, id string) (*models.AuditLog, error) {
	query := `
		SELECT id, actor_id, action, created_at, updated_at, deleted_at
		FROM audit_logs
		WHERE id = $1
	`

	entry := &models.AuditLog{}
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&entry.ID, &entry.ActorID, &entry.Action,
		&entry.CreatedAt, &entry.UpdatedAt, &entry.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}
