// Package main is a utility for generating bcrypt hashes of member passwords.
// The members table stores only bcrypt hashes, never plaintext, so this tool
// is used when manually seeding member accounts in a development database
// without running the full server. The resulting hash can be inserted directly
// into the members.password_hash column.
package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <password>", os.Args[0])
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(hash))
}
