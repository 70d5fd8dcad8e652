// Package repositories implements the data access layer (repository pattern) for CredVault.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers and the lifecycle manager never issue SQL directly; all database access goes
// through this layer, which keeps authorization predicates unit-testable independent of storage.
package repositories

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/db/models"
)

// MemberRepository handles member database operations
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository creates a new MemberRepository
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Create inserts a new member
func (r *MemberRepository) Create(ctx context.Context, member *models.Member) error {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	member.CreatedAt = time.Now()
	member.UpdatedAt = time.Now()

	query := `
		INSERT INTO members (id, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		member.ID, member.Email, member.Name, member.PasswordHash,
		member.CreatedAt, member.UpdatedAt)
	return err
}

// GetByID retrieves a member by ID. Soft-deleted members are excluded.
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*models.Member, error) {
	query := `
		SELECT id, email, name, password_hash, created_at, updated_at, deleted_at
		FROM members
		WHERE id = $1 AND deleted_at IS NULL
	`

	member := &models.Member{}
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&member.ID, &member.Email, &member.Name, &member.PasswordHash,
		&member.CreatedAt, &member.UpdatedAt, &member.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

// GetByEmail retrieves a member by email. Soft-deleted members are excluded.
func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	query := `
		SELECT id, email, name, password_hash, created_at, updated_at, deleted_at
		FROM members
		WHERE email = $1 AND deleted_at IS NULL
	`

	member := &models.Member{}
	err := r.db.QueryRowxContext(ctx, query, email).Scan(
		&member.ID, &member.Email, &member.Name, &member.PasswordHash,
		&member.CreatedAt, &member.UpdatedAt, &member.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

// likeEscaper neutralizes LIKE metacharacters so a fragment matches literally.
// Underscore is a legal username character and must not act as a wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EmailFragmentExists reports whether any member's email contains the given
// fragment. Used to block service-account usernames that collide with a human
// member's email-derived account.
func (r *MemberRepository) EmailFragmentExists(ctx context.Context, fragment string) (bool, error) {
	query := `SELECT COUNT(*) FROM members WHERE email LIKE '%' || $1 || '%' ESCAPE '\' AND deleted_at IS NULL`

	var count int
	if err := r.db.QueryRowxContext(ctx, query, likeEscaper.Replace(fragment)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// List retrieves all members, newest first
func (r *MemberRepository) List(ctx context.Context) ([]*models.Member, error) {
	query := `
		SELECT id, email, name, password_hash, created_at, updated_at, deleted_at
		FROM members
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]*models.Member, 0)
	for rows.Next() {
		member := &models.Member{}
		if err := rows.Scan(
			&member.ID, &member.Email, &member.Name, &member.PasswordHash,
			&member.CreatedAt, &member.UpdatedAt, &member.DeletedAt); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// Update updates a member's mutable fields
func (r *MemberRepository) Update(ctx context.Context, member *models.Member) error {
	member.UpdatedAt = time.Now()

	query := `
		UPDATE members
		SET email = $2, name = $3, password_hash = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL
	`

	_, err := r.db.ExecContext(ctx, query,
		member.ID, member.Email, member.Name, member.PasswordHash, member.UpdatedAt)
	return err
}

// SoftDelete marks a member as deleted. The row is retained.
func (r *MemberRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE members SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}

// OnboardingCount is one month's worth of member signups
type OnboardingCount struct {
	Month time.Time
	Count int
}

// OnboardingByMonth returns member signup counts per calendar month, oldest first
func (r *MemberRepository) OnboardingByMonth(ctx context.Context) ([]OnboardingCount, error) {
	query := `
		SELECT date_trunc('month', created_at) AS month, COUNT(*) AS count
		FROM members
		WHERE deleted_at IS NULL
		GROUP BY month
		ORDER BY month
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]OnboardingCount, 0)
	for rows.Next() {
		var c OnboardingCount
		if err := rows.Scan(&c.Month, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
