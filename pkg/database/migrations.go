package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"broker/pkg/logger"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

// Диалекты goose
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// goose хранит FS и диалект в глобальных переменных
var gooseMu sync.Mutex

// Migrator управляет миграциями схемы истории расчётов
type Migrator struct {
	db      *sql.DB
	dialect string
	dir     string
	owned   bool
}

// NewMigrator создаёт мигратор для *sql.DB и диалекта goose
func NewMigrator(db *sql.DB, dialect string) (*Migrator, error) {
	var dir string
	switch dialect {
	case DialectPostgres:
		dir = "migrations/postgres"
	case DialectSQLite:
		dir = "migrations/sqlite"
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	return &Migrator{db: db, dialect: dialect, dir: dir}, nil
}

// NewPostgresMigrator открывает database/sql поверх пула pgx
func NewPostgresMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{
		db:      stdlib.OpenDBFromPool(pool),
		dialect: DialectPostgres,
		dir:     "migrations/postgres",
		owned:   true,
	}
}

// Close закрывает *sql.DB, если мигратор открыл его сам
func (m *Migrator) Close() error {
	if m.owned {
		return m.db.Close()
	}
	return nil
}

func (m *Migrator) setup() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(m.dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// Up применяет все миграции
func (m *Migrator) Up(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := m.setup(); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, m.db, m.dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Log.Info("Migrations applied successfully", "dialect", m.dialect)
	return nil
}

// Down откатывает последнюю миграцию
func (m *Migrator) Down(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := m.setup(); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, m.db, m.dir); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	logger.Log.Info("Migration rolled back", "dialect", m.dialect)
	return nil
}

// Version возвращает текущую версию схемы
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := m.setup(); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, m.db)
}
