package db

import (
	"fmt"
	stdlog "log"
	"time"

	"hosa-study-board/internal/config"
	"hosa-study-board/internal/docstore"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var AppDb *gorm.DB

func dsn(cfg config.Config) string {
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v sslmode=disable",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
	)
}

func ConnectDb() error {
	level := logger.Warn
	if config.AppConfig.Environment == "production" {
		level = logger.Error
	}
	gormLogger := logger.New(
		stdlog.New(log.Logger, "", 0),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn(config.AppConfig)), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	AppDb = db
	log.Info().Str("host", config.AppConfig.DBHost).Str("db", config.AppConfig.DBName).Msg("connected to db")
	return nil
}

// Migrate creates or updates the document tables.
func Migrate() error {
	if err := AppDb.AutoMigrate(docstore.Models()...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	log.Info().Msg("database schema migrated")
	return nil
}

func CloseDb() {
	if AppDb == nil {
		return
	}
	sqlDB, err := AppDb.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to close db")
		return
	}
	log.Info().Msg("db closed")
}
