// cmd/seeder/main.go
package main

import (
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/safarnama/backoffice/internal/config"
	"github.com/safarnama/backoffice/internal/db"
)

func main() {
	cfg := config.Load()

	database, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	seedFiles := []string{
		"seed/schema.sql",
		"seed/customers.sql",
		"seed/campaigns.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}

		_, err = database.Exec(string(content))
		if err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	fmt.Println("Database seeding completed successfully!")
}
