// Package audit records domain events as append-only audit entries. The
// Recorder subscribes to the event bus, resolves the acting identity to the
// grant it held at event time, and persists one row per event. Entries can be
// mirrored to secondary destinations via shippers.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/db/models"
	"github.com/credvault/credvault/internal/events"
	"github.com/credvault/credvault/internal/telemetry"
)

// GrantResolver maps an actor email to the grant an audit entry should
// reference. Admin-scoped events are resolved against the actor's ADMIN
// grant specifically.
type GrantResolver interface {
	FindByEmail(ctx context.Context, email string) (*models.TeamMemberRoleDetail, error)
	FindByEmailAndRole(ctx context.Context, email, roleID string) (*models.TeamMemberRoleDetail, error)
}

// Store persists audit entries
type Store interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// Recorder turns domain events into audit entries. Events whose actor cannot
// be resolved to a grant are dropped with a warning; the write path never
// fails the operation that published the event.
type Recorder struct {
	resolver GrantResolver
	store    Store
	shipper  Shipper // optional, may be nil
}

// NewRecorder creates an audit recorder. shipper may be nil when no secondary
// destinations are configured.
func NewRecorder(resolver GrantResolver, store Store, shipper Shipper) *Recorder {
	return &Recorder{resolver: resolver, store: store, shipper: shipper}
}

// SubscribeAll registers the recorder for every domain event type
func (r *Recorder) SubscribeAll(bus *events.Bus) {
	bus.Subscribe(r,
		events.CredentialCreated,
		events.CredentialRecreated,
		events.CredentialDeleted,
		events.DatabaseCreated,
		events.DatabaseUpdated,
		events.DatabaseDeleted,
		events.TeamCreated,
		events.TeamUpdated,
		events.TeamDeleted,
		events.MemberCreated,
		events.MemberDeleted,
	)
}

// Handle implements events.Handler
func (r *Recorder) Handle(ctx context.Context, event Event) {
	r.record(ctx, event)
}

// Event aliases the bus event type so recorder tests can construct events
// without importing the bus package.
type Event = events.Event

func (r *Recorder) record(ctx context.Context, event Event) {
	eventType := string(event.Type)
	telemetry.AuditEventsTotal.WithLabelValues(eventType).Inc()

	grant, err := r.resolveActor(ctx, event)
	if err != nil {
		slog.Error("audit actor lookup failed", "type", eventType, "actor", event.ActorEmail, "error", err)
		telemetry.AuditEventsDroppedTotal.WithLabelValues(eventType, "resolve_error").Inc()
		return
	}
	if grant == nil {
		slog.Warn("audit event dropped, actor has no matching grant", "type", eventType, "actor", event.ActorEmail, "admin_scoped", event.Type.AdminScoped())
		telemetry.AuditEventsDroppedTotal.WithLabelValues(eventType, "actor_not_found").Inc()
		return
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		slog.Error("audit payload not serializable", "type", eventType, "error", err)
		telemetry.AuditEventsDroppedTotal.WithLabelValues(eventType, "encode_error").Inc()
		return
	}
	action, err := json.Marshal(models.AuditAction{Payload: payload, Type: eventType})
	if err != nil {
		slog.Error("audit action not serializable", "type", eventType, "error", err)
		telemetry.AuditEventsDroppedTotal.WithLabelValues(eventType, "encode_error").Inc()
		return
	}

	entry := &models.AuditLog{ActorID: grant.ID, Action: action}
	if err := r.store.Create(ctx, entry); err != nil {
		slog.Error("audit entry write failed", "type", eventType, "actor", event.ActorEmail, "error", err)
		telemetry.AuditEventsDroppedTotal.WithLabelValues(eventType, "write_error").Inc()
		return
	}

	if r.shipper != nil {
		shipped := &ShippedEntry{
			Timestamp:  time.Now().UTC(),
			EventType:  eventType,
			ActorEmail: grant.MemberEmail,
			ActorTeam:  grant.TeamName,
			ActorRole:  grant.RoleID,
			Payload:    payload,
		}
		if err := r.shipper.Ship(ctx, shipped); err != nil {
			slog.Warn("audit entry ship failed", "type", eventType, "error", err)
		}
	}
}

// resolveActor maps the event's actor email to a grant. Admin-scoped events
// require the actor's ADMIN grant; everything else takes any grant the actor
// holds.
func (r *Recorder) resolveActor(ctx context.Context, event Event) (*models.TeamMemberRoleDetail, error) {
	if event.Type.AdminScoped() {
		return r.resolver.FindByEmailAndRole(ctx, event.ActorEmail, auth.RoleAdmin)
	}
	return r.resolver.FindByEmail(ctx, event.ActorEmail)
}
