package main

import (
	"github.com/hibiken/asynq"

	"esadad-service/internal/app"
	"esadad-service/internal/config"
	"esadad-service/internal/database"
	"esadad-service/internal/logging"
	"esadad-service/internal/worker"
)

func main() {
	// Load env
	config.LoadEnvFile()
	cfg := config.MustLoad()
	log := logging.New(cfg.Logs)

	// Connect DB
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal(err)
	}

	a, err := app.Build(cfg, db, log)
	if err != nil {
		log.Fatalf("Failed to initialize eSADAD gateway: %v", err)
	}
	defer a.Close()

	log.Infof("Starting confirmation worker on %s", cfg.RedisAddr)
	worker.StartWorker(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, a.Payments, log)
}
