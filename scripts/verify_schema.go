package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/paperdesk.db"
	}
	fmt.Printf("Verifying database at: %s\n", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	// 1. Verify snapshots table
	fmt.Println("\n1. Verifying snapshots table...")
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name='snapshots'")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if rows.Next() {
		fmt.Println("✓ snapshots table exists")
	} else {
		fmt.Println("❌ snapshots table MISSING")
	}
	rows.Close()

	// 2. Verify transactions table and migrated columns
	fmt.Println("\n2. Verifying transactions table...")
	var sqlSchema string
	err = db.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&sqlSchema)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, col := range []string{"user_id", "kind", "market", "fee", "close_detail"} {
		if strings.Contains(sqlSchema, col) {
			fmt.Printf("✓ %s column exists\n", col)
		} else {
			fmt.Printf("❌ %s column MISSING\n", col)
		}
	}

	// 3. Verify the per-user transaction index
	fmt.Println("\n3. Verifying indexes...")
	rows, err = db.Query("SELECT name FROM sqlite_master WHERE type='index' AND name LIKE 'idx_transactions_%'")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	found := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("✓ index %s exists\n", name)
		found++
	}
	rows.Close()
	if found == 0 {
		fmt.Println("❌ transaction indexes MISSING")
	}
}
