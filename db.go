package main

import (
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"shardscan/models"
)

var db *gorm.DB

func initDB(conf *Config) error {
	dsn := conf.DSN
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		appLog.Fatal().Msg("DB_DSN is not set. This service requires a Postgres DSN in DB_DSN.")
	}
	var err error
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return err
	}
	// Control schema migrations with env DB_AUTO_MIGRATE (default true).
	shouldMigrate := true
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			shouldMigrate = false
		}
	}
	if shouldMigrate {
		// Migrate models individually so a failure on one doesn't block others
		for _, m := range []any{
			&models.User{},
			&models.Snapshot{},
			&models.PullEvent{},
			&models.MercyState{},
			&models.ResetEvent{},
			&models.SummaryArtifact{},
		} {
			if err := db.AutoMigrate(m); err != nil {
				appLog.Warn().Err(err).Msgf("migration warning (%T)", m)
			}
		}
	}
	seedDB()
	return nil
}

func seedDB() {
	// Seed a staff account so a fresh install is operable before any
	// registration happens.
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin := models.User{
			Username:       "admin",
			HashedPassword: hashedPassword,
			Staff:          true,
		}
		db.Create(&admin)
		appLog.Info().Msg("seeded staff user: username=admin, password=admin123")
	}
}
