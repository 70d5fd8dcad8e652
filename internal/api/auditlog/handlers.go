// Package auditlog implements the admin-only audit trail listing endpoint.
package auditlog

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/credvault/credvault/internal/db/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Store is the audit listing surface the handlers read from
type Store interface {
	List(ctx context.Context, limit, offset int) ([]*models.AuditLogDetail, error)
	Count(ctx context.Context) (int, error)
}

// Handlers serves the /api/audit-log endpoint
type Handlers struct {
	store Store
}

// NewHandlers creates audit log handlers backed by the given store
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

type actorView struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	TeamID   string `json:"team_id"`
	TeamName string `json:"team_name"`
	RoleID   string `json:"role_id"`
}

type entryView struct {
	ID      string              `json:"id"`
	Actor   actorView           `json:"actor"`
	Action  *models.AuditAction `json:"action"`
	Created time.Time           `json:"created"`
}

// ListHandler returns audit entries newest first, with limit/offset paging
// GET /api/audit-log?limit=50&offset=0
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := intQuery(c, "limit", defaultPageSize)
		if limit < 1 || limit > maxPageSize {
			limit = defaultPageSize
		}
		offset := intQuery(c, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		entries, err := h.store.List(c.Request.Context(), limit, offset)
		if err != nil {
			slog.Error("audit log listing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		total, err := h.store.Count(c.Request.Context())
		if err != nil {
			slog.Error("audit log count failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		views := make([]entryView, 0, len(entries))
		for _, entry := range entries {
			action, err := entry.DecodeAction()
			if err != nil {
				// Entries are written by the recorder and should always
				// decode; log and skip rather than fail the whole page.
				slog.Error("undecodable audit action", "error", err, "id", entry.ID)
				continue
			}
			views = append(views, entryView{
				ID: entry.ID,
				Actor: actorView{
					Email:    entry.ActorEmail,
					Name:     entry.ActorName,
					TeamID:   entry.ActorTeamID,
					TeamName: entry.ActorTeamName,
					RoleID:   entry.ActorRoleID,
				},
				Action:  action,
				Created: entry.CreatedAt,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"entries": views,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
