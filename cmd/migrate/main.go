package main

import (
	"esadad-service/internal/config"
	"esadad-service/internal/database"
	"esadad-service/internal/logging"
)

func main() {
	// Load environment variables
	config.LoadEnvFile()
	cfg := config.MustLoad()
	log := logging.New(cfg.Logs)

	// Initialize Database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal(err)
	}

	// Run Migrations
	log.Info("Running database migrations...")
	if err := database.Migrate(db, cfg.Database.TransactionsTable, cfg.Database.LogsTable); err != nil {
		log.Fatal(err)
	}

	log.Info("Migrations completed successfully!")
}
