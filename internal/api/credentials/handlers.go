// Package credentials implements the /api/db-credential endpoints. Handlers
// translate between the HTTP surface and the credential manager; every
// decision (validation, policy, provisioning) lives in the manager.
package credentials

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/credvault/credvault/internal/apperr"
	"github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/credential"
	"github.com/credvault/credvault/internal/db/models"
	"github.com/credvault/credvault/internal/middleware"
)

// Manager is the credential lifecycle surface the handlers call into
type Manager interface {
	Create(ctx context.Context, actor *auth.Actor, req credential.CreateRequest) (*credential.CreateResult, error)
	Recreate(ctx context.Context, actor *auth.Actor, id string) (*credential.RecreateResult, error)
	SoftDelete(ctx context.Context, actor *auth.Actor, id string) (*models.CredentialDetail, error)
	List(ctx context.Context, actor *auth.Actor) ([]*models.CredentialDetail, error)
}

// Handlers serves the credential lifecycle endpoints
type Handlers struct {
	manager Manager
}

// NewHandlers creates credential handlers backed by the given manager
func NewHandlers(manager Manager) *Handlers {
	return &Handlers{manager: manager}
}

// secretResponse is the create/recreate response body. The password field is
// populated exactly once, here; it is never persisted or logged.
type secretResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Purpose          string    `json:"purpose"`
	Expiration       time.Time `json:"expiration"`
	AccessLevel      string    `json:"accessLevel"`
	MemberID         string    `json:"member_id"`
	TeamID           string    `json:"team_id"`
	RoleID           string    `json:"role_id"`
	DatabaseID       string    `json:"database_id"`
	ConnectionString string    `json:"connection_string"`
	Password         string    `json:"password"`
	Username         string    `json:"username"`
}

// listItem is one row of the list response. No password: secrets only
// appear in create and recreate responses.
type listItem struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Purpose          string     `json:"purpose"`
	Expiration       time.Time  `json:"expiration"`
	AccessLevel      string     `json:"accessLevel"`
	Status           string     `json:"status"`
	Username         *string    `json:"username"`
	ConnectionString string     `json:"connection_string"`
	DatabaseID       string     `json:"database_id"`
	DatabaseName     string     `json:"database_name"`
	TeamID           string     `json:"team_id"`
	TeamName         string     `json:"team_name"`
	RoleID           string     `json:"role_id"`
	CreatorMemberID  string     `json:"member_id"`
	CreatorEmail     string     `json:"creator_email"`
	CreatedAt        time.Time  `json:"created"`
	DeletedAt        *time.Time `json:"deleted,omitempty"`
}

// ListHandler returns the credentials visible to the actor
// GET /api/db-credential
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		creds, err := h.manager.List(c.Request.Context(), actor)
		if err != nil {
			respondError(c, err)
			return
		}

		items := make([]listItem, 0, len(creds))
		for _, cred := range creds {
			items = append(items, toListItem(cred))
		}
		c.JSON(http.StatusOK, items)
	}
}

// CreateHandler creates and provisions a new credential
// POST /api/db-credential
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req credential.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		result, err := h.manager.Create(c.Request.Context(), actor, req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, secretResponse{
			ID:               result.Credential.ID,
			Name:             result.Credential.Name,
			Purpose:          result.Credential.Purpose,
			Expiration:       result.Credential.Expiration,
			AccessLevel:      result.Credential.AccessLevel,
			MemberID:         result.MemberID,
			TeamID:           result.TeamID,
			RoleID:           result.RoleID,
			DatabaseID:       result.Credential.DatabaseID,
			ConnectionString: result.Credential.ConnectionString,
			Password:         result.Password,
			Username:         result.Username,
		})
	}
}

// RecreateHandler rotates the secret of an existing credential
// POST /api/db-credential/recreate/:id
func (h *Handlers) RecreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		result, err := h.manager.Recreate(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		cred := result.Credential
		c.JSON(http.StatusOK, secretResponse{
			ID:               cred.ID,
			Name:             cred.Name,
			Purpose:          cred.Purpose,
			Expiration:       cred.Expiration,
			AccessLevel:      cred.AccessLevel,
			MemberID:         cred.CreatorMemberID,
			TeamID:           cred.TeamID,
			RoleID:           cred.RoleID,
			DatabaseID:       cred.DatabaseID,
			ConnectionString: cred.ConnectionString,
			Password:         result.Password,
			Username:         result.Username,
		})
	}
}

// DeleteHandler soft deletes a credential. The external database role is
// not revoked; the row is retained for audit purposes.
// DELETE /api/db-credential/:id
func (h *Handlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.ActorFromContext(c)
		if actor == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		cred, err := h.manager.SoftDelete(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, toListItem(cred))
	}
}

func toListItem(cred *models.CredentialDetail) listItem {
	return listItem{
		ID:               cred.ID,
		Name:             cred.Name,
		Purpose:          cred.Purpose,
		Expiration:       cred.Expiration,
		AccessLevel:      cred.AccessLevel,
		Status:           cred.Status,
		Username:         cred.Username,
		ConnectionString: cred.ConnectionString,
		DatabaseID:       cred.DatabaseID,
		DatabaseName:     cred.DatabaseName,
		TeamID:           cred.TeamID,
		TeamName:         cred.TeamName,
		RoleID:           cred.RoleID,
		CreatorMemberID:  cred.CreatorMemberID,
		CreatorEmail:     cred.CreatorEmail,
		CreatedAt:        cred.CreatedAt,
		DeletedAt:        cred.DeletedAt,
	}
}

// respondError maps a manager error to its boundary status. The full cause
// chain is logged here; only the taxonomy message crosses the boundary.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("credential request failed", "error", err, "path", c.FullPath())
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}
