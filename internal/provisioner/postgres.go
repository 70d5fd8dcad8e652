// postgres.go issues the role DDL against target clusters over pgx. Each call
// opens its own administrative connection on the engine default port against
// the bootstrap database, probes it for liveness, runs the statement sequence
// under a per-statement timeout, and always closes the connection.
package provisioner

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/credvault/credvault/internal/apperr"
)

// Postgres engine defaults: provisioning always connects to the bootstrap
// database on the standard port, regardless of the logical database the
// credential targets.
const (
	adminPort     = 5432
	bootstrapDB   = "postgres"
	defaultRWRole = "xnd_readwrite"
	defaultRORole = "xnd_readonly"
)

// Dynamic identifiers reaching DDL must already be validated; this is the
// final gate before interpolation.
var safeIdentifier = regexp.MustCompile(`^[A-Za-z0-9_@.+-]+$`)

// Request describes one provisioning operation against a target cluster
type Request struct {
	Endpoint     string // Cluster endpoint (host), the allow-list key
	DatabaseName string // Logical database the grants apply to
	Username     string // External role name, already derived and validated
	Password     string // One-time secret for the role
	AccessLevel  string // "ro" or "rw"
}

// Provisioner creates and rotates external database roles
type Provisioner interface {
	Provision(ctx context.Context, req Request) error
	Reprovision(ctx context.Context, req Request) error
}

// Postgres provisions roles on Postgres clusters
type Postgres struct {
	store       *MasterStore
	stmtTimeout time.Duration
	rwGroup     string
	roGroup     string
}

// Option configures a Postgres provisioner
type Option func(*Postgres)

// WithStatementTimeout bounds each DDL statement
func WithStatementTimeout(d time.Duration) Option {
	return func(p *Postgres) { p.stmtTimeout = d }
}

// WithGroups overrides the readwrite/readonly group roles granted to new users
func WithGroups(rw, ro string) Option {
	return func(p *Postgres) {
		p.rwGroup = rw
		p.roGroup = ro
	}
}

// NewPostgres creates a Postgres provisioner backed by the given master store
func NewPostgres(store *MasterStore, opts ...Option) *Postgres {
	p := &Postgres{
		store:       store,
		stmtTimeout: 5 * time.Second,
		rwGroup:     defaultRWRole,
		roGroup:     defaultRORole,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enabled reports whether provisioning can run
func (p *Postgres) Enabled() bool {
	return p.store.Enabled()
}

// Provision creates the external role: idempotent drop, create with login
// password, then the grant bundle selected by access level.
func (p *Postgres) Provision(ctx context.Context, req Request) error {
	return p.withConn(ctx, req, func(ctx context.Context, conn *pgx.Conn) error {
		user := pgx.Identifier{req.Username}.Sanitize()
		db := pgx.Identifier{req.DatabaseName}.Sanitize()

		statements := []string{
			fmt.Sprintf("DROP ROLE IF EXISTS %s", user),
			fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s", user, quoteLiteral(req.Password)),
		}
		switch req.AccessLevel {
		case "rw":
			statements = append(statements,
				fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", db, user),
				fmt.Sprintf("GRANT %s TO %s", pgx.Identifier{p.rwGroup}.Sanitize(), user),
			)
		case "ro":
			statements = append(statements,
				fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", db, user),
				fmt.Sprintf("GRANT %s TO %s", pgx.Identifier{p.roGroup}.Sanitize(), user),
			)
		default:
			return apperr.Newf(apperr.KindProvisioning, "unknown access level %q", req.AccessLevel)
		}

		for _, stmt := range statements {
			if err := p.exec(ctx, conn, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reprovision rotates the role's password in place. No drop, no create, no
// re-grant: privileges assigned at provisioning time are left untouched.
func (p *Postgres) Reprovision(ctx context.Context, req Request) error {
	return p.withConn(ctx, req, func(ctx context.Context, conn *pgx.Conn) error {
		user := pgx.Identifier{req.Username}.Sanitize()
		stmt := fmt.Sprintf("ALTER ROLE %s WITH PASSWORD %s", user, quoteLiteral(req.Password))
		return p.exec(ctx, conn, stmt)
	})
}

// withConn resolves the target's admin credentials, opens the per-call
// connection, verifies liveness, runs fn, and always closes the connection.
func (p *Postgres) withConn(ctx context.Context, req Request, fn func(context.Context, *pgx.Conn) error) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	admin, err := p.store.Resolve(req.Endpoint)
	if err != nil {
		return err
	}

	conn, err := p.connect(ctx, req.Endpoint, admin)
	if err != nil {
		return apperr.Wrap(apperr.KindProvisioning, "connecting to target cluster", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	// Guard against a stale connection handed back after long idle: probe,
	// and reconnect once before giving up.
	if probeErr := p.probe(ctx, conn); probeErr != nil {
		_ = conn.Close(ctx)
		conn, err = p.connect(ctx, req.Endpoint, admin)
		if err != nil {
			return apperr.Wrap(apperr.KindProvisioning, "reconnecting to target cluster", err)
		}
		if probeErr = p.probe(ctx, conn); probeErr != nil {
			return apperr.Wrap(apperr.KindProvisioning, "target cluster failed liveness probe", probeErr)
		}
	}

	return fn(ctx, conn)
}

func (p *Postgres) connect(ctx context.Context, endpoint string, admin AdminCredentials) (*pgx.Conn, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(admin.Username), url.QueryEscape(admin.Password),
		endpoint, adminPort, bootstrapDB)

	connectCtx, cancel := context.WithTimeout(ctx, p.stmtTimeout)
	defer cancel()
	return pgx.Connect(connectCtx, dsn)
}

func (p *Postgres) probe(ctx context.Context, conn *pgx.Conn) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.stmtTimeout)
	defer cancel()

	var one int
	return conn.QueryRow(probeCtx, "SELECT 1").Scan(&one)
}

func (p *Postgres) exec(ctx context.Context, conn *pgx.Conn, stmt string) error {
	stmtCtx, cancel := context.WithTimeout(ctx, p.stmtTimeout)
	defer cancel()

	if _, err := conn.Exec(stmtCtx, stmt); err != nil {
		if stmtCtx.Err() == context.DeadlineExceeded {
			return apperr.Wrap(apperr.KindProvisioning, "statement timed out", err)
		}
		return apperr.Wrap(apperr.KindProvisioning, "executing role statement", err)
	}
	return nil
}

func validateRequest(req Request) error {
	if !safeIdentifier.MatchString(req.Username) {
		return apperr.Newf(apperr.KindProvisioning, "role name %q contains unsafe characters", req.Username)
	}
	if !safeIdentifier.MatchString(req.DatabaseName) {
		return apperr.Newf(apperr.KindProvisioning, "database name %q contains unsafe characters", req.DatabaseName)
	}
	if req.Password == "" {
		return apperr.New(apperr.KindProvisioning, "empty password")
	}
	return nil
}

// quoteLiteral renders a string as a single-quoted SQL literal with embedded
// quotes doubled.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
