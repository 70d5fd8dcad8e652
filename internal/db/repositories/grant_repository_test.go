package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/db/models"
)

var grantCols = []string{
	"id", "member_id", "team_id", "role_id", "created_at", "updated_at",
}

var grantDetailCols = []string{
	"id", "member_id", "team_id", "role_id", "created_at", "updated_at",
	"email", "member_name", "team_name", "role_name",
}

func newGrantRepo(t *testing.T) (*GrantRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewGrantRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleGrantRow() *sqlmock.Rows {
	return sqlmock.NewRows(grantCols).
		AddRow("grant-1", "member-1", "team-1", "TL", time.Now(), time.Now())
}

func sampleGrantDetailRow(roleID string) *sqlmock.Rows {
	return sqlmock.NewRows(grantDetailCols).
		AddRow("grant-1", "member-1", "team-1", roleID, time.Now(), time.Now(),
			"alice@example.com", "Alice", "Data", "Team Lead")
}

func TestGrantCreate(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectExec("INSERT INTO team_member_roles").
		WillReturnResult(sqlmock.NewResult(1, 1))

	grant := &models.TeamMemberRole{MemberID: "member-1", TeamID: "team-1", RoleID: "TL"}
	if err := repo.Create(context.Background(), grant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.ID == "" {
		t.Error("Create did not assign an id")
	}
}

func TestGrantGetByTriple(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newGrantRepo(t)
		mock.ExpectQuery("SELECT id.*FROM team_member_roles").
			WithArgs("member-1", "team-1", "TL").
			WillReturnRows(sampleGrantRow())

		grant, err := repo.GetByTriple(context.Background(), "member-1", "team-1", "TL")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if grant == nil {
			t.Fatal("expected grant, got nil")
		}
		if grant.RoleID != "TL" {
			t.Errorf("role = %q, want TL", grant.RoleID)
		}
	})

	t.Run("missing triple returns nil", func(t *testing.T) {
		repo, mock := newGrantRepo(t)
		mock.ExpectQuery("SELECT id.*FROM team_member_roles").
			WillReturnRows(sqlmock.NewRows(grantCols))

		grant, err := repo.GetByTriple(context.Background(), "member-1", "team-2", "ADMIN")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if grant != nil {
			t.Errorf("expected nil, got %+v", grant)
		}
	})
}

func TestGrantListByMember(t *testing.T) {
	repo, mock := newGrantRepo(t)
	rows := sqlmock.NewRows(grantCols).
		AddRow("grant-1", "member-1", "team-1", "TL", time.Now(), time.Now()).
		AddRow("grant-2", "member-1", "team-2", "MEMBER", time.Now(), time.Now())
	mock.ExpectQuery("SELECT id.*FROM team_member_roles").
		WithArgs("member-1").
		WillReturnRows(rows)

	grants, err := repo.ListByMember(context.Background(), "member-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grants) != 2 {
		t.Errorf("len = %d, want 2", len(grants))
	}
}

func TestGrantFindByEmail(t *testing.T) {
	repo, mock := newGrantRepo(t)
	mock.ExpectQuery("SELECT tmr.id.*FROM team_member_roles").
		WithArgs("alice@example.com").
		WillReturnRows(sampleGrantDetailRow("MEMBER"))

	detail, err := repo.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail == nil {
		t.Fatal("expected detail, got nil")
	}
	if detail.MemberEmail != "alice@example.com" || detail.TeamName != "Data" {
		t.Errorf("detail = %+v", detail)
	}
}

func TestGrantFindByEmailAndRole(t *testing.T) {
	t.Run("admin grant found", func(t *testing.T) {
		repo, mock := newGrantRepo(t)
		mock.ExpectQuery("SELECT tmr.id.*FROM team_member_roles").
			WithArgs("alice@example.com", "ADMIN").
			WillReturnRows(sampleGrantDetailRow("ADMIN"))

		detail, err := repo.FindByEmailAndRole(context.Background(), "alice@example.com", "ADMIN")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if detail == nil || detail.RoleID != "ADMIN" {
			t.Fatalf("detail = %+v, want ADMIN grant", detail)
		}
	})

	t.Run("no matching grant returns nil", func(t *testing.T) {
		repo, mock := newGrantRepo(t)
		mock.ExpectQuery("SELECT tmr.id.*FROM team_member_roles").
			WillReturnRows(sqlmock.NewRows(grantDetailCols))

		detail, err := repo.FindByEmailAndRole(context.Background(), "bob@example.com", "ADMIN")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if detail != nil {
			t.Errorf("expected nil, got %+v", detail)
		}
	})
}
