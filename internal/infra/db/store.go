package db

import (
	"fmt"

	"castgate/internal/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	DB *gorm.DB
}

// NewStore opens the ledger database. An empty POSTGRES_DSN yields a store
// with a nil DB; callers then fall back to in-memory ledgers.
func NewStore(cfg config.Config, logger *zap.Logger) (*Store, error) {
	if cfg.PostgresDSN == "" {
		logger.Warn("POSTGRES_DSN not set; idempotency and audit ledgers are in-memory")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{DB: gdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
