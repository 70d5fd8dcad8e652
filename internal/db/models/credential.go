// Package models - credential.go defines the Credential lifecycle entity: an ephemeral
// external-database login issued to a member or service account.
package models

import "time"

// Access levels for a provisioned role
const (
	AccessReadOnly  = "ro"
	AccessReadWrite = "rw"
)

// Credential lifecycle statuses. Status only ever transitions
// pending -> provisioned; soft delete is orthogonal.
const (
	CredentialStatusPending     = "pending"
	CredentialStatusProvisioned = "provisioned"
)

// Credential represents an ephemeral database credential. The external role's
// password is never stored here: it is generated per provisioning call and
// returned exactly once in the API response.
type Credential struct {
	ID               string
	Name             string
	Purpose          string
	Expiration       time.Time
	AccessLevel      string // "ro" or "rw"
	Status           string // "pending" or "provisioned"
	ConnectionString string // Copied from the resolved database at create time
	Username         *string // Set once at first provisioning attempt, immutable after
	CreatorID        string  // TeamMemberRole id of the creating grant
	DatabaseID       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time // Soft delete; external role is not revoked
}

// IsValidAccessLevel reports whether level is a known access level
func IsValidAccessLevel(level string) bool {
	return level == AccessReadOnly || level == AccessReadWrite
}

// CredentialDetail is a credential joined with its creator grant, team,
// database, and cluster rows, as returned by list endpoints.
type CredentialDetail struct {
	Credential
	CreatorMemberID  string
	CreatorEmail     string
	CreatorName      string
	TeamID           string
	TeamName         string
	RoleID           string
	DatabaseName     string
	ClusterID        string
	ClusterEndpoint  string
}
