// Package authapi implements the login endpoints. Both flows resolve the
// member's team grants at login time and embed them in the issued token, so
// request authorization never hits the database.
package authapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"

	"github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/config"
	"github.com/credvault/credvault/internal/db/models"
)

// MemberStore resolves members by login email
type MemberStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
}

// GrantStore lists the team grants embedded in issued tokens
type GrantStore interface {
	ListByMember(ctx context.Context, memberID string) ([]*models.TeamMemberRole, error)
}

// googleVerifier validates a Google ID token against the configured audience.
// Swappable so tests do not need a live Google endpoint.
type googleVerifier func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Handlers serves the /api/auth endpoints
type Handlers struct {
	members  MemberStore
	grants   GrantStore
	tokenTTL time.Duration
	clientID string
	verify   googleVerifier
}

// NewHandlers creates the login handlers from the configured auth settings
func NewHandlers(cfg *config.Config, members MemberStore, grants GrantStore) *Handlers {
	return &Handlers{
		members:  members,
		grants:   grants,
		tokenTTL: cfg.Auth.TokenTTL,
		clientID: cfg.Auth.GoogleClientID,
		verify:   idtoken.Validate,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type googleLoginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// LoginHandler authenticates a member by email and password
// POST /api/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}

		member, err := h.members.GetByEmail(c.Request.Context(), req.Email)
		if err != nil {
			slog.Error("login member lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		// Members created via Google login carry no local password hash and
		// cannot use the password flow. Same response as a bad password so
		// account existence is not leaked.
		if member == nil || member.DeletedAt != nil || member.PasswordHash == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(*member.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}

		h.issueToken(c, member)
	}
}

// GoogleLoginHandler authenticates a member with a Google ID token. The
// member must already exist; login never creates accounts.
// POST /api/auth/login-google
func (h *Handlers) GoogleLoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req googleLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id_token is required"})
			return
		}

		if h.clientID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Google login is not configured"})
			return
		}

		payload, err := h.verify(c.Request.Context(), req.IDToken, h.clientID)
		if err != nil {
			slog.Warn("google id token rejected", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid Google token"})
			return
		}

		email, _ := payload.Claims["email"].(string)
		if email == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Google token carries no email"})
			return
		}

		member, err := h.members.GetByEmail(c.Request.Context(), email)
		if err != nil {
			slog.Error("google login member lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if member == nil || member.DeletedAt != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no account for this Google identity"})
			return
		}

		h.issueToken(c, member)
	}
}

// issueToken resolves the member's grants and writes the access token response
func (h *Handlers) issueToken(c *gin.Context, member *models.Member) {
	grants, err := h.grants.ListByMember(c.Request.Context(), member.ID)
	if err != nil {
		slog.Error("login grant lookup failed", "error", err, "member_id", member.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	permissions := make([]auth.Permission, 0, len(grants))
	for _, g := range grants {
		permissions = append(permissions, auth.Permission{TeamID: g.TeamID, RoleID: g.RoleID})
	}

	token, err := auth.GenerateJWT(member.ID, member.Email, permissions, h.tokenTTL)
	if err != nil {
		slog.Error("token generation failed", "error", err, "member_id", member.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token})
}
