// Package provisioner provisions external database roles on target Postgres
// clusters. It owns two concerns: resolving cluster endpoints to administrative
// credentials through an encrypted allow-list, and issuing the role DDL over a
// dedicated short-lived connection. It never touches the metadata store.
package provisioner

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/credvault/credvault/internal/apperr"
	"github.com/credvault/credvault/internal/crypto"
)

// AdminCredentials is one cluster's administrative login
type AdminCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// MasterStore holds the decrypted provisioning allow-list: administrative
// credentials keyed by cluster endpoint. An endpoint absent from the store may
// never be provisioned against, even if database metadata claims otherwise.
type MasterStore struct {
	creds map[string]AdminCredentials
}

// LoadMasterStore reads the encrypted credentials blob at path and decrypts it
// with the hex-encoded 32-byte master key. An empty master key returns a nil
// store: provisioning is disabled and credentials stay pending (degraded mode).
func LoadMasterStore(path, masterKeyHex string) (*MasterStore, error) {
	if masterKeyHex == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(strings.TrimSpace(masterKeyHex))
	if err != nil {
		return nil, fmt.Errorf("decoding master key: %w", err)
	}
	cipher, err := crypto.NewSecretCipher(key)
	if err != nil {
		return nil, fmt.Errorf("initializing master cipher: %w", err)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading master credentials file: %w", err)
	}

	plaintext, err := cipher.Open(strings.TrimSpace(string(blob)))
	if err != nil {
		return nil, fmt.Errorf("decrypting master credentials: %w", err)
	}

	var creds map[string]AdminCredentials
	if err := json.Unmarshal([]byte(plaintext), &creds); err != nil {
		return nil, fmt.Errorf("parsing master credentials: %w", err)
	}

	return &MasterStore{creds: creds}, nil
}

// NewMasterStore builds a store from an already-decrypted credential map.
// Used by tests and the key-generation helper.
func NewMasterStore(creds map[string]AdminCredentials) *MasterStore {
	return &MasterStore{creds: creds}
}

// Resolve returns the administrative credentials for a cluster endpoint.
// Endpoints outside the allow-list fail with Unauthorized, distinct from
// caller authorization failures.
func (s *MasterStore) Resolve(endpoint string) (AdminCredentials, error) {
	if s == nil {
		return AdminCredentials{}, apperr.New(apperr.KindUnauthorized, "provisioning is disabled: no master key configured")
	}
	creds, ok := s.creds[endpoint]
	if !ok {
		return AdminCredentials{}, apperr.Newf(apperr.KindUnauthorized, "cluster endpoint %q is not in the provisioning allow-list", endpoint)
	}
	return creds, nil
}

// Enabled reports whether provisioning can run at all
func (s *MasterStore) Enabled() bool {
	return s != nil
}
