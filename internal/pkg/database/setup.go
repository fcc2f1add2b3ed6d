package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

const defaultMaxRetries = 5
const retryDelay = 5 * time.Second

// SetupDatabase connects to MySQL with a bounded retry and migrates the schema.
func SetupDatabase() (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	maxRetries := env.GetEnvInt("DB_CONNECT_RETRIES", defaultMaxRetries)
	if maxRetries < 1 {
		maxRetries = 1
	}

	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,  // data source name
			DefaultStringSize:         256,  // default size for string fields
			DontSupportRenameIndex:    true, // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true, // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			// unique violations surface as gorm.ErrDuplicatedKey
			TranslateError: true,
		})
		if err == nil {
			if err = db.AutoMigrate(&models.User{}, &models.Transaction{}); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			return db, nil
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	return nil, err
}
