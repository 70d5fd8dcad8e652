// Package models - audit_log.go defines the AuditLog model, an append-only record of
// privileged mutations tagged by event type with the original payload attached.
package models

import (
	"encoding/json"
	"time"
)

// AuditAction is the serialized content of an audit entry's action column:
// the original event payload plus the event type tag.
type AuditAction struct {
	Payload json.RawMessage `json:"payload"`
	Type    string          `json:"type"`
}

// AuditLog represents one immutable audit entry. Actor references the
// TeamMemberRole grant the acting identity resolved to at write time; the
// reference is read-only and never cascaded.
type AuditLog struct {
	ID        string
	ActorID   string
	Action    json.RawMessage // Serialized AuditAction, never mutated after write
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// DecodeAction unmarshals the action column
func (a *AuditLog) DecodeAction() (*AuditAction, error) {
	var action AuditAction
	if err := json.Unmarshal(a.Action, &action); err != nil {
		return nil, err
	}
	return &action, nil
}

// AuditLogDetail is an audit entry joined with the acting grant's member,
// team, and role rows.
type AuditLogDetail struct {
	AuditLog
	ActorEmail    string
	ActorName     string
	ActorTeamID   string
	ActorTeamName string
	ActorRoleID   string
}
