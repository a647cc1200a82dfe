// Package main is a diagnostic tool for testing database connectivity and
// inspecting live audit data. It connects to the database, queries the
// audit_sessions and verifications tables, and prints a summary to stdout. The
// binary exits with a non-zero code on any failure so it can be embedded in
// health checks or CI/CD pipeline steps to gate deployments on a reachable,
// populated database.
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
		dbPassword = "stockaudit"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=stockaudit password=%s dbname=stockaudit sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	// Check sessions
	fmt.Println("=== AUDIT SESSIONS ===")
	rows, err := db.Query("SELECT id, code, status, warehouse_id FROM audit_sessions ORDER BY created_at DESC")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, code, status, warehouseID string
		if err := rows.Scan(&id, &code, &status, &warehouseID); err != nil {
			log.Printf("Warning: failed to scan session row: %v", err)
			continue
		}
		fmt.Printf("Session: %s [%s] warehouse=%s (ID: %s)\n", code, status, warehouseID, id)
	}

	// Check verification progress per session
	fmt.Println("\n=== VERIFICATION PROGRESS ===")
	rows2, err := db.Query(`SELECT session_id, COUNT(*),
								   COUNT(*) FILTER (WHERE physical_quantity IS NOT NULL),
								   COUNT(*) FILTER (WHERE status IN ('short', 'excess'))
							FROM verifications GROUP BY session_id`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows2.Close()

	count := 0
	for rows2.Next() {
		var sessionID string
		var total, counted, discrepancies int
		if err := rows2.Scan(&sessionID, &total, &counted, &discrepancies); err != nil {
			log.Printf("Warning: failed to scan progress row: %v", err)
			continue
		}
		fmt.Printf("Session %s: %d/%d counted, %d discrepancies\n", sessionID, counted, total, discrepancies)
		count++
	}

	if count == 0 {
		fmt.Println("No verifications found!")
	}
}
