// database_repository.go implements DatabaseRepository, covering cluster and
// logical-database metadata. These rows describe provisioning targets; the
// provisioner itself never touches this store.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/db/models"
)

// DatabaseRepository handles cluster and database metadata operations
type DatabaseRepository struct {
	db *sqlx.DB
}

// NewDatabaseRepository creates a new DatabaseRepository
func NewDatabaseRepository(db *sqlx.DB) *DatabaseRepository {
	return &DatabaseRepository{db: db}
}

// CreateCluster inserts a new cluster
func (r *DatabaseRepository) CreateCluster(ctx context.Context, cluster *models.Cluster) error {
	if cluster.ID == "" {
		cluster.ID = uuid.New().String()
	}
	cluster.CreatedAt = time.Now()
	cluster.UpdatedAt = time.Now()

	query := `
		INSERT INTO clusters (id, name, connection_string, platform, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		cluster.ID, cluster.Name, cluster.ConnectionString, cluster.Platform,
		cluster.Status, cluster.CreatedAt, cluster.UpdatedAt)
	return err
}

// GetClusterByID retrieves a cluster by ID
func (r *DatabaseRepository) GetClusterByID(ctx context.Context, id string) (*models.Cluster, error) {
	query := `
		SELECT id, name, connection_string, platform, status, created_at, updated_at
		FROM clusters
		WHERE id = $1
	`

	cluster := &models.Cluster{}
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&cluster.ID, &cluster.Name, &cluster.ConnectionString, &cluster.Platform,
		&cluster.Status, &cluster.CreatedAt, &cluster.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cluster, nil
}

// ListClusters retrieves all clusters
func (r *DatabaseRepository) ListClusters(ctx context.Context) ([]*models.Cluster, error) {
	query := `
		SELECT id, name, connection_string, platform, status, created_at, updated_at
		FROM clusters
		ORDER BY name
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clusters := make([]*models.Cluster, 0)
	for rows.Next() {
		cluster := &models.Cluster{}
		if err := rows.Scan(
			&cluster.ID, &cluster.Name, &cluster.ConnectionString, &cluster.Platform,
			&cluster.Status, &cluster.CreatedAt, &cluster.UpdatedAt); err != nil {
			return nil, err
		}
		clusters = append(clusters, cluster)
	}
	return clusters, rows.Err()
}

// CreateDatabase inserts a new logical database
func (r *DatabaseRepository) CreateDatabase(ctx context.Context, database *models.Database) error {
	if database.ID == "" {
		database.ID = uuid.New().String()
	}
	database.CreatedAt = time.Now()
	database.UpdatedAt = time.Now()

	query := `
		INSERT INTO databases (id, name, connection_string, platform, environment, mode, status, cluster_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		database.ID, database.Name, database.ConnectionString, database.Platform,
		database.Environment, database.Mode, database.Status, database.ClusterID,
		database.CreatedAt, database.UpdatedAt)
	return err
}

// GetDatabaseByID retrieves a database joined with its cluster
func (r *DatabaseRepository) GetDatabaseByID(ctx context.Context, id string) (*models.DatabaseWithCluster, error) {
	query := `
		SELECT d.id, d.name, d.connection_string, d.platform, d.environment, d.mode, d.status,
		       d.cluster_id, d.created_at, d.updated_at, d.deleted_at,
		       c.name, c.connection_string, c.platform
		FROM databases d
		JOIN clusters c ON d.cluster_id = c.id
		WHERE d.id = $1 AND d.deleted_at IS NULL
	`
	return r.scanWithCluster(r.db.QueryRowxContext(ctx, query, id))
}

// GetDatabaseByNameAndCluster resolves a (db_name, cluster_id) pair from a
// credential create request to a concrete database row.
func (r *DatabaseRepository) GetDatabaseByNameAndCluster(ctx context.Context, name, clusterID string) (*models.DatabaseWithCluster, error) {
	query := `
		SELECT d.id, d.name, d.connection_string, d.platform, d.environment, d.mode, d.status,
		       d.cluster_id, d.created_at, d.updated_at, d.deleted_at,
		       c.name, c.connection_string, c.platform
		FROM databases d
		JOIN clusters c ON d.cluster_id = c.id
		WHERE d.name = $1 AND d.cluster_id = $2 AND d.deleted_at IS NULL
	`
	return r.scanWithCluster(r.db.QueryRowxContext(ctx, query, name, clusterID))
}

// ListDatabases retrieves all databases joined with their clusters
func (r *DatabaseRepository) ListDatabases(ctx context.Context) ([]*models.DatabaseWithCluster, error) {
	query := `
		SELECT d.id, d.name, d.connection_string, d.platform, d.environment, d.mode, d.status,
		       d.cluster_id, d.created_at, d.updated_at, d.deleted_at,
		       c.name, c.connection_string, c.platform
		FROM databases d
		JOIN clusters c ON d.cluster_id = c.id
		WHERE d.deleted_at IS NULL
		ORDER BY d.name
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	databases := make([]*models.DatabaseWithCluster, 0)
	for rows.Next() {
		d := &models.DatabaseWithCluster{}
		if err := rows.Scan(
			&d.ID, &d.Name, &d.ConnectionString, &d.Platform, &d.Environment, &d.Mode, &d.Status,
			&d.ClusterID, &d.CreatedAt, &d.UpdatedAt, &d.DeletedAt,
			&d.ClusterName, &d.ClusterConnectionString, &d.ClusterPlatform); err != nil {
			return nil, err
		}
		databases = append(databases, d)
	}
	return databases, rows.Err()
}

// UpdateDatabase updates a database's mutable fields
func (r *DatabaseRepository) UpdateDatabase(ctx context.Context, database *models.Database) error {
	database.UpdatedAt = time.Now()

	query := `
		UPDATE databases
		SET name = $2, connection_string = $3, environment = $4, mode = $5, status = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`

	_, err := r.db.ExecContext(ctx, query,
		database.ID, database.Name, database.ConnectionString,
		database.Environment, database.Mode, database.Status, database.UpdatedAt)
	return err
}

// SoftDeleteDatabase marks a database as deleted. The row is retained.
func (r *DatabaseRepository) SoftDeleteDatabase(ctx context.Context, id string) error {
	query := `UPDATE databases SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}

// CountDatabasesByEnvironment returns database counts grouped by environment
func (r *DatabaseRepository) CountDatabasesByEnvironment(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT environment, COUNT(*)
		FROM databases
		WHERE deleted_at IS NULL
		GROUP BY environment
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var env string
		var count int
		if err := rows.Scan(&env, &count); err != nil {
			return nil, err
		}
		counts[env] = count
	}
	return counts, rows.Err()
}

func (r *DatabaseRepository) scanWithCluster(row *sqlx.Row) (*models.DatabaseWithCluster, error) {
	d := &models.DatabaseWithCluster{}
	err := row.Scan(
		&d.ID, &d.Name, &d.ConnectionString, &d.Platform, &d.Environment, &d.Mode, &d.Status,
		&d.ClusterID, &d.CreatedAt, &d.UpdatedAt, &d.DeletedAt,
		&d.ClusterName, &d.ClusterConnectionString, &d.ClusterPlatform)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
