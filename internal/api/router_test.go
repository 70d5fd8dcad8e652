package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/config"
	"github.com/credvault/credvault/internal/credential"
	"github.com/credvault/credvault/internal/db/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("CV_JWT_SECRET", "test-jwt-secret-that-is-32-chars!!")
	os.Exit(m.Run())
}

// noopManager satisfies credentials.Manager for routing tests that never
// reach a handler body.
type noopManager struct{}

func (noopManager) Create(_ context.Context, _ *auth.Actor, _ credential.CreateRequest) (*credential.CreateResult, error) {
	return nil, nil
}
func (noopManager) Recreate(_ context.Context, _ *auth.Actor, _ string) (*credential.RecreateResult, error) {
	return nil, nil
}
func (noopManager) SoftDelete(_ context.Context, _ *auth.Actor, _ string) (*models.CredentialDetail, error) {
	return nil, nil
}
func (noopManager) List(_ context.Context, _ *auth.Actor) ([]*models.CredentialDetail, error) {
	return []*models.CredentialDetail{}, nil
}

func testRouterConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.TokenTTL = time.Hour
	cfg.Security.CORS.AllowedOrigins = []string{"https://vault.example.com"}
	return cfg
}

func newMockDB(t *testing.T, monitorPings bool) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(monitorPings))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, _ := newMockDB(t, false)
	router, bg := NewRouter(testRouterConfig(), db, noopManager{})
	t.Cleanup(bg.Shutdown)
	return router
}

func get(t *testing.T, r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		t.Fatalf("http.NewRequest: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func bearerFor(t *testing.T, permissions []auth.Permission) map[string]string {
	t.Helper()
	token, err := auth.GenerateJWT("member-1", "alice@example.com", permissions, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock := newMockDB(t, true)
		mock.ExpectPing()
		router, bg := NewRouter(testRouterConfig(), db, noopManager{})
		t.Cleanup(bg.Shutdown)

		w := get(t, router, "/health", nil)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if body["status"] != "healthy" {
			t.Errorf("status = %q, want healthy", body["status"])
		}
	})

	t.Run("database down", func(t *testing.T) {
		db, mock := newMockDB(t, true)
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
		router, bg := NewRouter(testRouterConfig(), db, noopManager{})
		t.Cleanup(bg.Shutdown)

		w := get(t, router, "/health", nil)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}

func TestReadiness(t *testing.T) {
	t.Run("ready with degraded provisioner", func(t *testing.T) {
		db, mock := newMockDB(t, true)
		mock.ExpectPing()
		// No master key configured
		router, bg := NewRouter(testRouterConfig(), db, noopManager{})
		t.Cleanup(bg.Shutdown)

		w := get(t, router, "/ready", nil)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
		}
		var body struct {
			Ready  bool              `json:"ready"`
			Checks map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if !body.Ready {
			t.Error("ready = false, want true")
		}
		if body.Checks["provisioner"] != "degraded" {
			t.Errorf("provisioner check = %q, want degraded", body.Checks["provisioner"])
		}
	})

	t.Run("provisioner enabled when master key present", func(t *testing.T) {
		db, mock := newMockDB(t, true)
		mock.ExpectPing()
		cfg := testRouterConfig()
		cfg.Provisioner.MasterKey = "a-master-key"
		cfg.Provisioner.CredentialsFile = "/etc/credvault/credentials.enc"
		router, bg := NewRouter(cfg, db, noopManager{})
		t.Cleanup(bg.Shutdown)

		w := get(t, router, "/ready", nil)

		var body struct {
			Checks map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if body.Checks["provisioner"] != "enabled" {
			t.Errorf("provisioner check = %q, want enabled", body.Checks["provisioner"])
		}
	})
}

func TestVersionEndpoint(t *testing.T) {
	w := get(t, newTestRouter(t), "/version", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["version"] == "" {
		t.Error("version is empty")
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	router := newTestRouter(t)
	paths := []string{
		"/api/db-credential",
		"/api/dashboard-stats",
		"/api/audit-log",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			w := get(t, router, path, nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestAuditLogRequiresAdmin(t *testing.T) {
	router := newTestRouter(t)
	headers := bearerFor(t, []auth.Permission{
		{TeamID: "team-payments", RoleID: auth.RoleTeamLead},
	})

	w := get(t, router, "/api/audit-log", headers)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestCredentialListReachableWithBearer(t *testing.T) {
	router := newTestRouter(t)
	headers := bearerFor(t, []auth.Permission{
		{TeamID: "team-payments", RoleID: auth.RoleTeamLead},
	})

	w := get(t, router, "/api/db-credential", headers)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestCORSMiddleware(t *testing.T) {
	router := newTestRouter(t)

	t.Run("allowed origin echoed", func(t *testing.T) {
		w := get(t, router, "/version", map[string]string{"Origin": "https://vault.example.com"})
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://vault.example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})

	t.Run("unknown origin gets no header", func(t *testing.T) {
		w := get(t, router, "/version", map[string]string{"Origin": "https://evil.example.com"})
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, err := http.NewRequest(http.MethodOptions, "/api/db-credential", nil)
		if err != nil {
			t.Fatalf("http.NewRequest: %v", err)
		}
		req.Header.Set("Origin", "https://vault.example.com")
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})
}

func TestRequestIDHeaderSet(t *testing.T) {
	w := get(t, newTestRouter(t), "/version", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	w := get(t, newTestRouter(t), "/version", nil)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy not set")
	}
}
