// Package dashboard implements the aggregated statistics endpoint backing
// the operator overview page.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/credvault/credvault/internal/db/models"
	"github.com/credvault/credvault/internal/db/repositories"
)

// TeamStats lists teams with their member counts
type TeamStats interface {
	ListWithMemberCounts(ctx context.Context) ([]*models.TeamWithMemberCount, error)
}

// DatabaseStats aggregates registered databases per environment
type DatabaseStats interface {
	CountDatabasesByEnvironment(ctx context.Context) (map[string]int, error)
}

// MemberStats returns the member onboarding time series
type MemberStats interface {
	OnboardingByMonth(ctx context.Context) ([]repositories.OnboardingCount, error)
}

// Handlers serves the /api/dashboard-stats endpoint
type Handlers struct {
	teams     TeamStats
	databases DatabaseStats
	members   MemberStats
}

// NewHandlers creates dashboard handlers from the stats sources
func NewHandlers(teams TeamStats, databases DatabaseStats, members MemberStats) *Handlers {
	return &Handlers{teams: teams, databases: databases, members: members}
}

type teamView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

type onboardingPoint struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

// StatsHandler aggregates team, database, and onboarding statistics
// GET /api/dashboard-stats
func (h *Handlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		teams, err := h.teams.ListWithMemberCounts(ctx)
		if err != nil {
			slog.Error("dashboard team stats failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		byEnv, err := h.databases.CountDatabasesByEnvironment(ctx)
		if err != nil {
			slog.Error("dashboard database stats failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if byEnv == nil {
			byEnv = map[string]int{}
		}

		onboarding, err := h.members.OnboardingByMonth(ctx)
		if err != nil {
			slog.Error("dashboard onboarding stats failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		teamViews := make([]teamView, 0, len(teams))
		for _, team := range teams {
			teamViews = append(teamViews, teamView{
				ID:          team.ID,
				Name:        team.Name,
				MemberCount: team.MemberCount,
			})
		}

		series := make([]onboardingPoint, 0, len(onboarding))
		for _, point := range onboarding {
			series = append(series, onboardingPoint{
				Month: point.Month.Format("2006-01"),
				Count: point.Count,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"teams":                    teamViews,
			"databases_by_environment": byEnv,
			"onboarding_by_month":      series,
			"generated_at":             time.Now().UTC().Format(time.RFC3339),
		})
	}
}
