// Package main is a diagnostic tool for testing database connectivity and
// inspecting live vault data. It connects to the metadata database, counts
// rows in the core tables, and lists active credentials with their
// provisioning status. The binary exits with a non-zero code on any failure
// so it can be embedded in CI/CD pipeline steps to gate deployments on a
// reachable, populated database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "credvault"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=credvault password=%s dbname=credvault sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	fmt.Println("=== TABLE COUNTS ===")
	for _, table := range []string{"members", "teams", "clusters", "databases", "credentials", "audit_logs"} {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			log.Fatalf("Query failed for %s: %v", table, err)
		}
		fmt.Printf("%-12s %d\n", table, count)
	}

	fmt.Println("\n=== ACTIVE CREDENTIALS ===")
	rows, err := db.Query(`SELECT c.id, c.name, c.status, c.access_level, d.name
		FROM credentials c
		JOIN databases d ON d.id = c.database_id
		WHERE c.deleted_at IS NULL
		ORDER BY c.created_at`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, name, status, accessLevel, dbName string
		if err := rows.Scan(&id, &name, &status, &accessLevel, &dbName); err != nil {
			log.Printf("Warning: failed to scan credential row: %v", err)
			continue
		}
		fmt.Printf("Credential: %s on %s [%s, %s] (ID: %s)\n", name, dbName, accessLevel, status, id)
		count++
	}

	if count == 0 {
		fmt.Println("No active credentials found!")
	}
}
