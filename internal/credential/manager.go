package credential

import (
	"context"
	"log/slog"
	"time"

	"github.com/credvault/credvault/internal/apperr"
	"github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/db/models"
	"github.com/credvault/credvault/internal/events"
	"github.com/credvault/credvault/internal/policy"
	"github.com/credvault/credvault/internal/provisioner"
	"github.com/credvault/credvault/internal/telemetry"
)

// CredentialStore is the metadata-store surface the manager writes through
type CredentialStore interface {
	Create(ctx context.Context, cred *models.Credential) error
	GetByID(ctx context.Context, id string) (*models.CredentialDetail, error)
	MarkProvisioned(ctx context.Context, id, username string) error
	SoftDelete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]*models.CredentialDetail, error)
	ListByTeams(ctx context.Context, teamIDs []string) ([]*models.CredentialDetail, error)
	ListByCreatorEmail(ctx context.Context, email string) ([]*models.CredentialDetail, error)
}

// GrantStore resolves (member, team, role) triples
type GrantStore interface {
	GetByTriple(ctx context.Context, memberID, teamID, roleID string) (*models.TeamMemberRole, error)
}

// MemberStore resolves members and guards service-account naming
type MemberStore interface {
	GetByID(ctx context.Context, id string) (*models.Member, error)
	EmailFragmentExists(ctx context.Context, fragment string) (bool, error)
}

// DatabaseStore resolves the (database, cluster) pair a credential targets
type DatabaseStore interface {
	GetDatabaseByNameAndCluster(ctx context.Context, name, clusterID string) (*models.DatabaseWithCluster, error)
}

// Provisioner creates and rotates roles on the external cluster. Enabled
// reports whether a master key was configured; when false every credential
// stays pending.
type Provisioner interface {
	Enabled() bool
	Provision(ctx context.Context, req provisioner.Request) error
	Reprovision(ctx context.Context, req provisioner.Request) error
}

// Publisher emits domain events
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Manager orchestrates the credential lifecycle: pending on create,
// provisioned after a successful external provision, soft delete orthogonal
// to both. Provisioning failures never roll back metadata already written.
type Manager struct {
	credentials CredentialStore
	grants      GrantStore
	members     MemberStore
	databases   DatabaseStore
	policy      *policy.Engine
	provisioner Provisioner
	bus         Publisher
}

// NewManager creates a credential lifecycle manager
func NewManager(
	credentials CredentialStore,
	grants GrantStore,
	members MemberStore,
	databases DatabaseStore,
	engine *policy.Engine,
	prov Provisioner,
	bus Publisher,
) *Manager {
	return &Manager{
		credentials: credentials,
		grants:      grants,
		members:     members,
		databases:   databases,
		policy:      engine,
		provisioner: prov,
		bus:         bus,
	}
}

// CreateRequest is the create operation's input, bound directly from the API
// request body.
type CreateRequest struct {
	Name        string    `json:"name" binding:"required"`
	Purpose     string    `json:"purpose"`
	Expiration  time.Time `json:"expiration" binding:"required"`
	AccessLevel string    `json:"accessLevel" binding:"required"`
	MemberID    string    `json:"member_id" binding:"required"`
	TeamID      string    `json:"team_id" binding:"required"`
	RoleID      string    `json:"role_id" binding:"required"`
	ClusterID   string    `json:"cluster_id" binding:"required"`
	DBName      string    `json:"db_name" binding:"required"`
	Username    string    `json:"username,omitempty"` // Optional service-account fragment
}

// CreateResult carries the created row plus the one-time secret. Password
// appears here and in the API response derived from it, nowhere else.
type CreateResult struct {
	Credential  *models.Credential
	MemberID    string
	TeamID      string
	RoleID      string
	Username    string
	Password    string
	Provisioned bool
}

// RecreateResult carries the rotated secret for an existing credential
type RecreateResult struct {
	Credential *models.CredentialDetail
	Username   string
	Password   string
}

// Create validates the requested grant and database, authorizes the actor,
// persists a pending credential, and attempts external provisioning. On
// provisioning failure the pending row is kept and the failure surfaces to
// the caller, who retries via Recreate. The created event is emitted after
// the metadata write whether or not provisioning succeeded.
func (m *Manager) Create(ctx context.Context, actor *auth.Actor, req CreateRequest) (*CreateResult, error) {
	if !models.IsValidAccessLevel(req.AccessLevel) {
		return nil, m.fail("create", apperr.Newf(apperr.KindConflict, "unknown access level %q", req.AccessLevel))
	}

	grant, err := m.grants.GetByTriple(ctx, req.MemberID, req.TeamID, req.RoleID)
	if err != nil {
		return nil, m.fail("create", apperr.Wrap(apperr.KindInternal, "loading grant", err))
	}
	if grant == nil {
		return nil, m.fail("create", apperr.New(apperr.KindNotFound, "no such team membership for the requested member and role"))
	}

	member, err := m.members.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, m.fail("create", apperr.Wrap(apperr.KindInternal, "loading member", err))
	}
	if member == nil {
		return nil, m.fail("create", apperr.New(apperr.KindNotFound, "member not found"))
	}

	database, err := m.databases.GetDatabaseByNameAndCluster(ctx, req.DBName, req.ClusterID)
	if err != nil {
		return nil, m.fail("create", apperr.Wrap(apperr.KindInternal, "loading database", err))
	}
	if database == nil {
		return nil, m.fail("create", apperr.Newf(apperr.KindNotFound, "database %q not found on the requested cluster", req.DBName))
	}

	decision, err := m.policy.Authorize(ctx, actor, req.TeamID, req.MemberID, req.RoleID, req.ClusterID)
	if err != nil {
		return nil, m.fail("create", apperr.Wrap(apperr.KindInternal, "authorizing request", err))
	}
	if decision.Outcome == policy.Deny {
		return nil, m.fail("create", apperr.New(apperr.KindUnauthorized, decision.Reason))
	}

	if req.Username != "" {
		taken, err := m.members.EmailFragmentExists(ctx, req.Username)
		if err != nil {
			return nil, m.fail("create", apperr.Wrap(apperr.KindInternal, "checking username fragment", err))
		}
		if taken {
			return nil, m.fail("create", apperr.Newf(apperr.KindConflict, "username fragment %q collides with a member email", req.Username))
		}
	}

	// A reuse grant pins the member to the shape of their prior credential
	// on this tuple: same database, same access level, same expiration,
	// whatever the request asked for. The access level feeds the derived
	// username and the grant bundle, so copying it is what keeps a reuse
	// from escalating ro to rw.
	accessLevel := req.AccessLevel
	expiration := req.Expiration
	connectionString := database.ConnectionString
	databaseID := database.ID
	endpoint := database.ClusterConnectionString
	dbName := database.Name
	if decision.Outcome == policy.ReuseOnly {
		accessLevel = decision.Prior.AccessLevel
		expiration = decision.Prior.Expiration
		connectionString = decision.Prior.ConnectionString
		databaseID = decision.Prior.DatabaseID
		endpoint = decision.Prior.ClusterEndpoint
		dbName = decision.Prior.DatabaseName
	}

	username, err := DeriveUsername(accessLevel, expiration, member.Email, req.Username)
	if err != nil {
		return nil, m.fail("create", err)
	}
	password, err := GenerateSecret()
	if err != nil {
		return nil, m.fail("create", err)
	}

	cred := &models.Credential{
		Name:             req.Name,
		Purpose:          req.Purpose,
		Expiration:       expiration,
		AccessLevel:      accessLevel,
		Status:           models.CredentialStatusPending,
		ConnectionString: connectionString,
		CreatorID:        grant.ID,
		DatabaseID:       databaseID,
	}

	if err := m.credentials.Create(ctx, cred); err != nil {
		return nil, m.fail("create", apperr.Wrap(apperr.KindInternal, "persisting credential", err))
	}
	defer m.publish(ctx, events.CredentialCreated, actor, req)

	result := &CreateResult{
		Credential: cred,
		MemberID:   req.MemberID,
		TeamID:     req.TeamID,
		RoleID:     req.RoleID,
		Username:   username,
		Password:   password,
	}

	if !m.provisioner.Enabled() {
		slog.Info("provisioning disabled, credential left pending", "credential_id", cred.ID)
		telemetry.CredentialOperationsTotal.WithLabelValues("create", "success").Inc()
		return result, nil
	}

	if err := m.provision(ctx, "provision", provisioner.Request{
		Endpoint:     endpoint,
		DatabaseName: dbName,
		Username:     username,
		Password:     password,
		AccessLevel:  cred.AccessLevel,
	}); err != nil {
		telemetry.CredentialOperationsTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	if err := m.credentials.MarkProvisioned(ctx, cred.ID, username); err != nil {
		return nil, m.fail("create", apperr.Wrap(apperr.KindInternal, "recording provisioned status", err))
	}
	cred.Status = models.CredentialStatusProvisioned
	cred.Username = &username
	result.Provisioned = true

	telemetry.CredentialOperationsTotal.WithLabelValues("create", "success").Inc()
	return result, nil
}

// Recreate rotates an existing credential's password. A pending credential
// goes through the full provision path; a provisioned one gets a password
// rotation only. The stored username never changes.
func (m *Manager) Recreate(ctx context.Context, actor *auth.Actor, id string) (*RecreateResult, error) {
	cred, err := m.credentials.GetByID(ctx, id)
	if err != nil {
		return nil, m.fail("recreate", apperr.Wrap(apperr.KindInternal, "loading credential", err))
	}
	if cred == nil || cred.DeletedAt != nil {
		return nil, m.fail("recreate", apperr.New(apperr.KindNotFound, "credential not found"))
	}
	if !policy.CanTouch(actor, cred) {
		return nil, m.fail("recreate", apperr.New(apperr.KindUnauthorized, "only the creator or an admin may recreate a credential"))
	}

	username, err := m.usernameFor(cred)
	if err != nil {
		return nil, m.fail("recreate", err)
	}
	password, err := GenerateSecret()
	if err != nil {
		return nil, m.fail("recreate", err)
	}

	if !m.provisioner.Enabled() {
		return nil, m.fail("recreate", apperr.New(apperr.KindProvisioning, "provisioning is disabled, cannot rotate external role"))
	}

	req := provisioner.Request{
		Endpoint:     cred.ClusterEndpoint,
		DatabaseName: cred.DatabaseName,
		Username:     username,
		Password:     password,
		AccessLevel:  cred.AccessLevel,
	}

	switch cred.Status {
	case models.CredentialStatusPending:
		if err := m.provision(ctx, "provision", req); err != nil {
			telemetry.CredentialOperationsTotal.WithLabelValues("recreate", "error").Inc()
			return nil, err
		}
		if err := m.credentials.MarkProvisioned(ctx, cred.ID, username); err != nil {
			return nil, m.fail("recreate", apperr.Wrap(apperr.KindInternal, "recording provisioned status", err))
		}
		cred.Status = models.CredentialStatusProvisioned
		cred.Username = &username
	case models.CredentialStatusProvisioned:
		if err := m.provision(ctx, "reprovision", req); err != nil {
			telemetry.CredentialOperationsTotal.WithLabelValues("recreate", "error").Inc()
			return nil, err
		}
	default:
		return nil, m.fail("recreate", apperr.Newf(apperr.KindConflict, "credential in status %q cannot be recreated", cred.Status))
	}

	m.publish(ctx, events.CredentialRecreated, actor, map[string]string{"id": cred.ID, "name": cred.Name})
	telemetry.CredentialOperationsTotal.WithLabelValues("recreate", "success").Inc()
	return &RecreateResult{Credential: cred, Username: username, Password: password}, nil
}

// SoftDelete marks the credential deleted. The external role is not revoked;
// it keeps working until its cluster is cleaned up out of band.
func (m *Manager) SoftDelete(ctx context.Context, actor *auth.Actor, id string) (*models.CredentialDetail, error) {
	cred, err := m.credentials.GetByID(ctx, id)
	if err != nil {
		return nil, m.fail("delete", apperr.Wrap(apperr.KindInternal, "loading credential", err))
	}
	if cred == nil || cred.DeletedAt != nil {
		return nil, m.fail("delete", apperr.New(apperr.KindNotFound, "credential not found"))
	}
	if !policy.CanTouch(actor, cred) {
		return nil, m.fail("delete", apperr.New(apperr.KindUnauthorized, "only the creator or an admin may delete a credential"))
	}

	if err := m.credentials.SoftDelete(ctx, id); err != nil {
		return nil, m.fail("delete", apperr.Wrap(apperr.KindInternal, "deleting credential", err))
	}
	now := time.Now()
	cred.DeletedAt = &now

	m.publish(ctx, events.CredentialDeleted, actor, map[string]string{"id": cred.ID, "name": cred.Name})
	telemetry.CredentialOperationsTotal.WithLabelValues("delete", "success").Inc()
	return cred, nil
}

// List returns the credentials the actor may see: everything for admins,
// led teams for team leads, own creations for plain members.
func (m *Manager) List(ctx context.Context, actor *auth.Actor) ([]*models.CredentialDetail, error) {
	filter := policy.Visibility(actor)
	switch filter.Scope {
	case policy.ScopeAll:
		return m.credentials.ListAll(ctx)
	case policy.ScopeTeams:
		return m.credentials.ListByTeams(ctx, filter.TeamIDs)
	case policy.ScopeOwn:
		return m.credentials.ListByCreatorEmail(ctx, filter.Email)
	default:
		return []*models.CredentialDetail{}, nil
	}
}

// usernameFor returns the role name to provision. A provisioned credential
// already carries its immutable username; a pending one re-derives it, which
// is deterministic for the same creator email and expiration.
func (m *Manager) usernameFor(cred *models.CredentialDetail) (string, error) {
	if cred.Username != nil && *cred.Username != "" {
		return *cred.Username, nil
	}
	return DeriveUsername(cred.AccessLevel, cred.Expiration, cred.CreatorEmail, "")
}

// provision runs one external DDL attempt with timing and attempt metrics.
// kind is "provision" or "reprovision".
func (m *Manager) provision(ctx context.Context, kind string, req provisioner.Request) error {
	start := time.Now()
	var err error
	if kind == "reprovision" {
		err = m.provisioner.Reprovision(ctx, req)
	} else {
		err = m.provisioner.Provision(ctx, req)
	}
	telemetry.ProvisioningDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ProvisioningAttemptsTotal.WithLabelValues(kind, "error").Inc()
		slog.Error("external provisioning failed", "kind", kind, "endpoint", req.Endpoint, "username", req.Username, "error", err)
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Wrap(apperr.KindProvisioning, "external provisioning failed", err)
		}
		return err
	}
	telemetry.ProvisioningAttemptsTotal.WithLabelValues(kind, "success").Inc()
	return nil
}

func (m *Manager) publish(ctx context.Context, eventType events.Type, actor *auth.Actor, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(ctx, events.Event{Type: eventType, Payload: payload, ActorEmail: actor.Email})
}

// fail counts one failed operation and passes the error through
func (m *Manager) fail(operation string, err error) error {
	telemetry.CredentialOperationsTotal.WithLabelValues(operation, "error").Inc()
	return err
}
