package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"esadad-service/internal/config"
	"esadad-service/internal/models"
)

func Connect(cfg config.Database) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logrus.Info("Database connection established")
	return db, nil
}

// Migrate creates or updates the ledger and log tables under the configured names.
func Migrate(db *gorm.DB, transactionsTable, logsTable string) error {
	if transactionsTable == "" {
		transactionsTable = models.DefaultTransactionsTable
	}
	if logsTable == "" {
		logsTable = models.DefaultLogsTable
	}

	if err := db.Table(transactionsTable).AutoMigrate(&models.Transaction{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", transactionsTable, err)
	}
	if err := db.Table(logsTable).AutoMigrate(&models.LogEntry{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", logsTable, err)
	}

	logrus.Info("Database migration completed")
	return nil
}
