package main

import (
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/thalir/agrimarket/internal/config"
	"github.com/thalir/agrimarket/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Ping database: %v", err)
	}

	if direction == "up" {
		err = database.Migrate(db, cfg.Database.MigrationsDir)
	} else {
		err = database.MigrateDown(db, cfg.Database.MigrationsDir)
	}
	if err != nil {
		log.Fatalf("Run migrations %s: %v", direction, err)
	}

	log.Printf("Migrations %s completed", direction)
}
