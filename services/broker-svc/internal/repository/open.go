package repository

import (
	"context"
	"fmt"
	"strings"

	"broker/pkg/config"
	"broker/pkg/database"
	"broker/pkg/logger"
)

// Store репозиторий вместе с функцией освобождения соединений
type Store struct {
	CalculationRepository
	Driver string
	close  func() error
}

// Close закрывает пул или файл базы
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open подключается к базе по database.driver и при auto_migrate накатывает миграции
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		return openPostgres(ctx, cfg)
	case "sqlite", "":
		return openSQLite(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	db, err := database.NewPostgresDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		m := database.NewPostgresMigrator(db.Pool())
		err := m.Up(ctx)
		m.Close()
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Log.Info("Postgres migrations applied")
	}

	return &Store{
		CalculationRepository: WithTracing(NewPostgresCalculationRepository(db)),
		Driver:                "postgres",
		close: func() error {
			db.Close()
			return nil
		},
	}, nil
}

func openSQLite(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	db, err := database.OpenSQLite(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		m, err := database.NewMigrator(db, database.DialectSQLite)
		if err == nil {
			err = m.Up(ctx)
		}
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Log.Info("SQLite migrations applied", "path", cfg.SQLitePath)
	}

	return &Store{
		CalculationRepository: WithTracing(NewSQLiteCalculationRepository(db)),
		Driver:                "sqlite",
		close:                 db.Close,
	}, nil
}
