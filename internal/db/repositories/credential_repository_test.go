package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/db/models"
)

var credentialDetailCols = []string{
	"id", "name", "purpose", "expiration", "access_level", "status",
	"connection_string", "username", "creator_id", "database_id",
	"created_at", "updated_at", "deleted_at",
	"member_id", "email", "member_name", "team_id", "team_name", "role_id",
	"database_name", "cluster_id", "cluster_connection_string",
}

func newCredentialRepo(t *testing.T) (*CredentialRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCredentialRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleCredentialRow(status string, username interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(credentialDetailCols).
		AddRow("cred-1", "analytics", "ad-hoc queries", now.Add(24*time.Hour), "ro", status,
			"pg-prod-1.internal/analytics", username, "grant-1", "db-1",
			now, now, nil,
			"member-1", "alice@example.com", "Alice", "team-1", "Data", "MEMBER",
			"analytics", "cluster-1", "pg-prod-1.internal")
}

func TestCredentialCreate(t *testing.T) {
	repo, mock := newCredentialRepo(t)
	mock.ExpectExec("INSERT INTO credentials").
		WillReturnResult(sqlmock.NewResult(1, 1))

	username := "usr_alice_1700000000000_ro"
	cred := &models.Credential{
		Name:             "analytics",
		Purpose:          "ad-hoc queries",
		Expiration:       time.Now().Add(24 * time.Hour),
		AccessLevel:      models.AccessReadOnly,
		ConnectionString: "pg-prod-1.internal/analytics",
		Username:         &username,
		CreatorID:        "grant-1",
		DatabaseID:       "db-1",
	}
	if err := repo.Create(context.Background(), cred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.ID == "" {
		t.Error("Create did not assign an id")
	}
	if cred.Status != models.CredentialStatusPending {
		t.Errorf("status = %q, want pending", cred.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCredentialGetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newCredentialRepo(t)
		mock.ExpectQuery("SELECT c.id.*FROM credentials").
			WithArgs("cred-1").
			WillReturnRows(sampleCredentialRow("provisioned", "usr_alice_1700000000000_ro"))

		cred, err := repo.GetByID(context.Background(), "cred-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cred == nil {
			t.Fatal("expected credential, got nil")
		}
		if cred.Status != models.CredentialStatusProvisioned {
			t.Errorf("status = %q, want provisioned", cred.Status)
		}
		if cred.CreatorEmail != "alice@example.com" {
			t.Errorf("creator email = %q", cred.CreatorEmail)
		}
		if cred.ClusterEndpoint != "pg-prod-1.internal" {
			t.Errorf("cluster endpoint = %q", cred.ClusterEndpoint)
		}
	})

	t.Run("not found returns nil", func(t *testing.T) {
		repo, mock := newCredentialRepo(t)
		mock.ExpectQuery("SELECT c.id.*FROM credentials").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(credentialDetailCols))

		cred, err := repo.GetByID(context.Background(), "missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cred != nil {
			t.Errorf("expected nil, got %+v", cred)
		}
	})
}

func TestCredentialMarkProvisioned(t *testing.T) {
	repo, mock := newCredentialRepo(t)
	mock.ExpectExec("UPDATE credentials").
		WithArgs("cred-1", models.CredentialStatusProvisioned, "usr_alice_1700000000000_ro", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkProvisioned(context.Background(), "cred-1", "usr_alice_1700000000000_ro"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCredentialSoftDelete(t *testing.T) {
	repo, mock := newCredentialRepo(t)
	mock.ExpectExec("UPDATE credentials SET deleted_at").
		WithArgs("cred-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SoftDelete(context.Background(), "cred-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCredentialFindPriorByTuple(t *testing.T) {
	t.Run("prior credential exists", func(t *testing.T) {
		repo, mock := newCredentialRepo(t)
		mock.ExpectQuery("SELECT c.id.*FROM credentials").
			WithArgs("team-1", "member-1", "MEMBER", "cluster-1").
			WillReturnRows(sampleCredentialRow("pending", nil))

		cred, err := repo.FindPriorByTuple(context.Background(), "team-1", "member-1", "MEMBER", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cred == nil {
			t.Fatal("expected prior credential, got nil")
		}
		if cred.Username != nil {
			t.Errorf("username = %v, want nil for unprovisioned row", *cred.Username)
		}
	})

	t.Run("no prior credential", func(t *testing.T) {
		repo, mock := newCredentialRepo(t)
		mock.ExpectQuery("SELECT c.id.*FROM credentials").
			WillReturnRows(sqlmock.NewRows(credentialDetailCols))

		cred, err := repo.FindPriorByTuple(context.Background(), "team-1", "member-2", "MEMBER", "cluster-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cred != nil {
			t.Errorf("expected nil, got %+v", cred)
		}
	})
}

func TestCredentialList(t *testing.T) {
	t.Run("all", func(t *testing.T) {
		repo, mock := newCredentialRepo(t)
		mock.ExpectQuery("SELECT c.id.*FROM credentials").
			WillReturnRows(sampleCredentialRow("provisioned", "usr_alice_1700000000000_ro"))

		creds, err := repo.ListAll(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(creds) != 1 {
			t.Errorf("len = %d, want 1", len(creds))
		}
	})

	t.Run("by teams", func(t *testing.T) {
		repo, mock := newCredentialRepo(t)
		mock.ExpectQuery("SELECT c.id.*FROM credentials").
			WithArgs("team-1", "team-2").
			WillReturnRows(sampleCredentialRow("provisioned", "usr_alice_1700000000000_ro"))

		creds, err := repo.ListByTeams(context.Background(), []string{"team-1", "team-2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(creds) != 1 {
			t.Errorf("len = %d, want 1", len(creds))
		}
	})

	t.Run("by teams with empty slice skips query", func(t *testing.T) {
		repo, _ := newCredentialRepo(t)
		creds, err := repo.ListByTeams(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(creds) != 0 {
			t.Errorf("len = %d, want 0", len(creds))
		}
	})

	t.Run("by creator email", func(t *testing.T) {
		repo, mock := newCredentialRepo(t)
		mock.ExpectQuery("SELECT c.id.*FROM credentials").
			WithArgs("alice@example.com").
			WillReturnRows(sampleCredentialRow("pending", nil))

		creds, err := repo.ListByCreatorEmail(context.Background(), "alice@example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(creds) != 1 {
			t.Errorf("len = %d, want 1", len(creds))
		}
	})
}
