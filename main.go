package main

import (
	"os"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"esadad-service/internal/app"
	"esadad-service/internal/config"
	"esadad-service/internal/database"
	grpcServer "esadad-service/internal/grpc"
	"esadad-service/internal/handlers"
	"esadad-service/internal/logging"
	"esadad-service/internal/services"
	"esadad-service/internal/worker"
)

func main() {
	// Load environment variables
	config.LoadEnvFile()
	cfg := config.MustLoad()
	log := logging.New(cfg.Logs)

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	}

	// Initialize Database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	if err := database.Migrate(db, cfg.Database.TransactionsTable, cfg.Database.LogsTable); err != nil {
		log.Fatal(err)
	}

	a, err := app.Build(cfg, db, log)
	if err != nil {
		log.Fatalf("Failed to initialize eSADAD gateway: %v", err)
	}
	defer a.Close()

	// Redis/Asynq Client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()

	checkoutService := services.NewCheckoutService(
		a.Payments,
		a.Transactions,
		worker.NewQueue(asynqClient, cfg.ConfirmAttempts),
		cfg.Checkout.SessionTTL,
		log,
	)

	// Initialize Gin
	r := gin.Default()

	// Ping endpoint
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Welcome To eSADAD service",
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		metrics.WritePrometheus(c.Writer, true)
	})

	handlers.Register(
		r.Group("/"+cfg.Checkout.RoutePrefix),
		handlers.NewCheckoutHandler(checkoutService, cfg.Checkout.SessionTTL, log),
		handlers.NewTransactionHandler(a.Transactions, log),
	)

	// Start gRPC server
	go grpcServer.StartGRPCServer(cfg.GRPCPort, a.Payments, a.Transactions, log)

	// Start Cron Schedulers
	a.Transactions.StartScheduler()

	log.Infof("HTTP Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
