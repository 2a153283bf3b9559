package db

import (
	"fmt"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chemlab/labstock/internal/models"
)

// Connect opens the database with a bounded retry (Postgres may still be
// starting).
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DATABASE_DSN")
	}
	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var conn *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		conn, err = gorm.Open(postgres.Open(dsn), cfg)
		if err == nil {
			break
		}
		fmt.Println("Retrying DB connection...", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}
	if pingErr := conn.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}
	return conn, nil
}

// Migrate applies the gorm schema for every persisted table.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Substance{},
		&models.Normative{},
		&models.Recipe{},
		&models.StockEntry{},
		&models.SolutionEntry{},
		&models.Analysis{},
	); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	return nil
}
