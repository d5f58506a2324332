package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"arbcontrol/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB initializes the database connection
func InitDB() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	// TranslateError maps unique violations to gorm.ErrDuplicatedKey; the
	// keyed store's atomic check-and-insert depends on it.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get database instance:", err)
	}

	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db

	// Auto migrate all models
	err = DB.AutoMigrate(
		&models.KvEntry{},
		&models.Trade{},
		&models.Deposit{},
		&models.Order{},
		&models.VaultSnapshot{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
}
