package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"broker/pkg/config"
	"broker/pkg/logger"
)

// SQLiteDriver имя драйвера modernc.org/sqlite в database/sql
const SQLiteDriver = "sqlite"

const memoryPath = ":memory:"

// OpenSQLite открывает (или создаёт) файл SQLite
func OpenSQLite(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "broker.db"
	}

	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	db, err := sql.Open(SQLiteDriver, path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// у каждого соединения своя in-memory база
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	logger.Log.Info("Opened SQLite database", "path", path)
	return db, nil
}
