// Package main is an operator utility for bootstrapping the provisioning
// allow-list. It generates a fresh 32-byte master key and, when given a
// plaintext JSON file of cluster admin credentials, seals it into the
// encrypted blob the server reads at startup. The plaintext file maps cluster
// endpoints to admin logins:
//
//	{"db.internal:5432": {"username": "vault_admin", "password": "..."}}
//
// Run with no arguments to generate a key only, or with the plaintext path
// and output path to also produce the encrypted credentials file. The raw
// key is printed once and never stored; losing it means re-encrypting the
// allow-list from plaintext.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/credvault/credvault/internal/crypto"
	"github.com/credvault/credvault/internal/provisioner"
)

func main() {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("generating master key: %v", err)
	}
	keyHex := hex.EncodeToString(key)

	fmt.Println("Master key (set as MASTER_KEY, store in your secret manager):")
	fmt.Printf("  %s\n", keyHex)

	if len(os.Args) < 3 {
		fmt.Println("\nTo encrypt an admin credentials file:")
		fmt.Printf("  %s <plaintext.json> <output.enc>\n", os.Args[0])
		return
	}

	plaintext, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("reading credentials file: %v", err)
	}

	// Validate the shape before sealing so a malformed file fails here
	// instead of at server startup.
	var creds map[string]provisioner.AdminCredentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		log.Fatalf("credentials file is not valid JSON: %v", err)
	}
	for endpoint, admin := range creds {
		if admin.Username == "" || admin.Password == "" {
			log.Fatalf("cluster %q is missing a username or password", endpoint)
		}
	}

	cipher, err := crypto.NewSecretCipher(key)
	if err != nil {
		log.Fatalf("initializing cipher: %v", err)
	}
	sealed, err := cipher.Seal(string(plaintext))
	if err != nil {
		log.Fatalf("encrypting credentials: %v", err)
	}

	if err := os.WriteFile(os.Args[2], []byte(sealed), 0o600); err != nil {
		log.Fatalf("writing encrypted file: %v", err)
	}

	fmt.Printf("\nEncrypted allow-list for %d cluster(s) written to %s\n", len(creds), os.Args[2])
	fmt.Println("Point CV_PROVISIONER_CREDENTIALS_FILE at it and delete the plaintext.")
}
