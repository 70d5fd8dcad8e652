package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/db/models"
)

var clusterCols = []string{
	"id", "name", "connection_string", "platform", "status", "created_at", "updated_at",
}

var databaseWithClusterCols = []string{
	"id", "name", "connection_string", "platform", "environment", "mode", "status",
	"cluster_id", "created_at", "updated_at", "deleted_at",
	"cluster_name", "cluster_connection_string", "cluster_platform",
}

func newDatabaseRepo(t *testing.T) (*DatabaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDatabaseRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleDatabaseWithClusterRow() *sqlmock.Rows {
	return sqlmock.NewRows(databaseWithClusterCols).
		AddRow("db-1", "analytics", "pg-prod-1.internal/analytics", "postgres",
			"production", "primary", "active",
			"cluster-1", time.Now(), time.Now(), nil,
			"prod-1", "pg-prod-1.internal:5432", "postgres")
}

func TestCreateCluster(t *testing.T) {
	repo, mock := newDatabaseRepo(t)
	mock.ExpectExec("INSERT INTO clusters").
		WillReturnResult(sqlmock.NewResult(1, 1))

	cluster := &models.Cluster{Name: "prod-1", ConnectionString: "pg-prod-1.internal:5432", Platform: "postgres", Status: "active"}
	if err := repo.CreateCluster(context.Background(), cluster); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cluster.ID == "" {
		t.Error("CreateCluster did not assign an id")
	}
}

func TestGetClusterByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newDatabaseRepo(t)
		mock.ExpectQuery("SELECT id.*FROM clusters").
			WithArgs("cluster-1").
			WillReturnRows(sqlmock.NewRows(clusterCols).
				AddRow("cluster-1", "prod-1", "pg-prod-1.internal:5432", "postgres", "active", time.Now(), time.Now()))

		cluster, err := repo.GetClusterByID(context.Background(), "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cluster == nil {
			t.Fatal("expected cluster, got nil")
		}
		if cluster.ConnectionString != "pg-prod-1.internal:5432" {
			t.Errorf("ConnectionString = %q", cluster.ConnectionString)
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newDatabaseRepo(t)
		mock.ExpectQuery("SELECT id.*FROM clusters").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(clusterCols))

		cluster, err := repo.GetClusterByID(context.Background(), "missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cluster != nil {
			t.Errorf("expected nil, got %+v", cluster)
		}
	})
}

func TestGetDatabaseByNameAndCluster(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newDatabaseRepo(t)
		mock.ExpectQuery("SELECT d.id.*FROM databases d").
			WithArgs("analytics", "cluster-1").
			WillReturnRows(sampleDatabaseWithClusterRow())

		db, err := repo.GetDatabaseByNameAndCluster(context.Background(), "analytics", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if db == nil {
			t.Fatal("expected database, got nil")
		}
		if db.ClusterConnectionString != "pg-prod-1.internal:5432" {
			t.Errorf("ClusterConnectionString = %q", db.ClusterConnectionString)
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newDatabaseRepo(t)
		mock.ExpectQuery("SELECT d.id.*FROM databases d").
			WithArgs("missing", "cluster-1").
			WillReturnRows(sqlmock.NewRows(databaseWithClusterCols))

		db, err := repo.GetDatabaseByNameAndCluster(context.Background(), "missing", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if db != nil {
			t.Errorf("expected nil, got %+v", db)
		}
	})
}

func TestListDatabases(t *testing.T) {
	repo, mock := newDatabaseRepo(t)
	mock.ExpectQuery("SELECT d.id.*FROM databases d").
		WillReturnRows(sampleDatabaseWithClusterRow())

	databases, err := repo.ListDatabases(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(databases) != 1 {
		t.Fatalf("expected 1 database, got %d", len(databases))
	}
	if databases[0].Name != "analytics" {
		t.Errorf("Name = %q", databases[0].Name)
	}
}

func TestCountDatabasesByEnvironment(t *testing.T) {
	t.Run("grouped counts", func(t *testing.T) {
		repo, mock := newDatabaseRepo(t)
		mock.ExpectQuery("SELECT environment, COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"environment", "count"}).
				AddRow("production", 4).
				AddRow("staging", 2))

		counts, err := repo.CountDatabasesByEnvironment(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counts["production"] != 4 || counts["staging"] != 2 {
			t.Errorf("counts = %v", counts)
		}
	})

	t.Run("query error", func(t *testing.T) {
		repo, mock := newDatabaseRepo(t)
		mock.ExpectQuery("SELECT environment, COUNT").
			WillReturnError(errors.New("connection reset"))

		if _, err := repo.CountDatabasesByEnvironment(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})
}
