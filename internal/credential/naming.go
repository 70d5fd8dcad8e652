// Package credential implements the credential lifecycle: username derivation,
// one-time secret generation, and the create/recreate/soft-delete orchestration
// between the policy engine, the metadata store, and the external provisioner.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/credvault/credvault/internal/apperr"
)

// Usernames and their inputs must be safe to interpolate as SQL identifiers.
// Anything outside this set is rejected before naming; there is no
// parameterized-query escape for identifiers.
var safeNameInput = regexp.MustCompile(`^[A-Za-z0-9_@.+-]+$`)

// Username prefixes: app_ for explicit service accounts, usr_ for
// email-derived human accounts.
const (
	servicePrefix = "app_"
	humanPrefix   = "usr_"
)

// DeriveUsername builds the external database role name for a credential.
// With an explicit fragment the result is app_<fragment>_<epochMillis>_<level>;
// otherwise usr_<emailLocalPart>_<epochMillis>_<level>. Deterministic for
// identical inputs. Inputs failing the identifier-safety check are rejected
// with Conflict.
func DeriveUsername(accessLevel string, expiration time.Time, creatorEmail, explicit string) (string, error) {
	epochMillis := expiration.UnixMilli()

	if explicit != "" {
		if !safeNameInput.MatchString(explicit) {
			return "", apperr.Newf(apperr.KindConflict, "username fragment %q contains unsafe characters", explicit)
		}
		return fmt.Sprintf("%s%s_%d_%s", servicePrefix, explicit, epochMillis, accessLevel), nil
	}

	localPart := creatorEmail
	if idx := strings.Index(creatorEmail, "@"); idx >= 0 {
		localPart = creatorEmail[:idx]
	}
	if !safeNameInput.MatchString(localPart) {
		return "", apperr.Newf(apperr.KindConflict, "email local part %q contains unsafe characters", localPart)
	}
	return fmt.Sprintf("%s%s_%d_%s", humanPrefix, localPart, epochMillis, accessLevel), nil
}

// IsServiceUsername reports whether an explicit service-account fragment was
// requested for this username.
func IsServiceUsername(username string) bool {
	return strings.HasPrefix(username, servicePrefix)
}

// GenerateSecret produces a cryptographically random one-time password.
// Secrets are never persisted or logged; they are returned exactly once in
// the create/recreate response body.
func GenerateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "generating credential secret", err)
	}
	return hex.EncodeToString(buf), nil
}
