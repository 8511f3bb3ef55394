package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"donasiku_backend/internals/configs"
)

// ConnectDB opens the pool. PreferSimpleProtocol keeps it usable behind
// PgBouncer in transaction mode.
func ConnectDB(cfg configs.DBConfig, logger gormLogger.Interface) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:                 logger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db %s/%s: %w", cfg.Host, cfg.Name, err)
	}
	return db, nil
}

func TunePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	return nil
}

// WarmUp pings in the background so the first webhook does not pay for
// the connection handshake.
func WarmUp(db *gorm.DB, logger *slog.Logger) {
	go func() {
		time.Sleep(500 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := Ping(ctx, db); err != nil {
			logger.Warn("warm-up ping failed", "error", err)
			return
		}
		var general int64
		db.WithContext(ctx).Table("campaigns").Where("campaign_is_general = true AND campaign_deleted_at IS NULL").Count(&general)
		if general == 0 {
			logger.Warn("no general campaign; overflow and unassigned donations will fail until one is seeded")
		}
	}()
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
