package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"broker/pkg/database"
	"broker/pkg/telemetry"
)

// created_at хранится текстом фиксированной ширины, чтобы сортировка строк
// совпадала с хронологической
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteCalculationRepository SQLite реализация (modernc.org/sqlite)
type SQLiteCalculationRepository struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// NewSQLiteCalculationRepository создаёт репозиторий поверх открытой базы.
// Схема должна быть применена через database.Migrator.
func NewSQLiteCalculationRepository(db *sql.DB) *SQLiteCalculationRepository {
	return &SQLiteCalculationRepository{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (r *SQLiteCalculationRepository) Save(ctx context.Context, calc *Calculation) error {
	ctx, span := telemetry.StartSpan(ctx, "SQLiteCalculationRepository.Save")
	defer span.End()

	prepare(calc, r.now, r.newID)

	tags, err := json.Marshal(calc.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO calculations (
			id, owner, name, tags, suppliers, customers, problem, result,
			total_purchase, total_transport, total_revenue, total_profit,
			iterations, balance_kind, duration_ns, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		calc.ID,
		calc.Owner,
		calc.Name,
		string(tags),
		calc.Suppliers,
		calc.Customers,
		string(calc.Problem),
		string(calc.Result),
		calc.Summary.TotalPurchase,
		calc.Summary.TotalTransport,
		calc.Summary.TotalRevenue,
		calc.Summary.TotalProfit,
		calc.Iterations,
		calc.BalanceKind,
		int64(calc.Duration),
		calc.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save calculation: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner, withPayload bool) (*Calculation, error) {
	calc := &Calculation{}
	var (
		tags, createdAt string
		problem, result string
		duration        int64
	)

	dest := []any{
		&calc.ID,
		&calc.Owner,
		&calc.Name,
		&tags,
		&calc.Suppliers,
		&calc.Customers,
	}
	if withPayload {
		dest = append(dest, &problem, &result)
	}
	dest = append(dest,
		&calc.Summary.TotalPurchase,
		&calc.Summary.TotalTransport,
		&calc.Summary.TotalRevenue,
		&calc.Summary.TotalProfit,
		&calc.Iterations,
		&calc.BalanceKind,
		&duration,
		&createdAt,
	)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &calc.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	ts, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	calc.CreatedAt = ts
	calc.Duration = time.Duration(duration)
	if withPayload {
		calc.Problem = []byte(problem)
		calc.Result = []byte(result)
	}
	return calc, nil
}

func (r *SQLiteCalculationRepository) Get(ctx context.Context, id string) (*Calculation, error) {
	ctx, span := telemetry.StartSpan(ctx, "SQLiteCalculationRepository.Get")
	defer span.End()

	row := r.db.QueryRowContext(ctx, `
		SELECT
			id, owner, name, tags, suppliers, customers, problem, result,
			total_purchase, total_transport, total_revenue, total_profit,
			iterations, balance_kind, duration_ns, created_at
		FROM calculations
		WHERE id = ?`, id)

	calc, err := scanSQLite(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCalculationNotFound
		}
		return nil, fmt.Errorf("failed to get calculation: %w", err)
	}
	return calc, nil
}

func (r *SQLiteCalculationRepository) List(ctx context.Context, filter ListFilter) ([]*Calculation, error) {
	ctx, span := telemetry.StartSpan(ctx, "SQLiteCalculationRepository.List")
	defer span.End()

	filter = filter.Normalize()
	where, args := sqliteWhere(filter)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT
			id, owner, name, tags, suppliers, customers,
			total_purchase, total_transport, total_revenue, total_profit,
			iterations, balance_kind, duration_ns, created_at
		FROM calculations
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}
	defer rows.Close()

	var results []*Calculation
	for rows.Next() {
		calc, err := scanSQLite(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calculation: %w", err)
		}
		results = append(results, calc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return results, nil
}

func (r *SQLiteCalculationRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "SQLiteCalculationRepository.Count")
	defer span.End()

	where, args := sqliteWhere(filter)

	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calculations WHERE "+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count calculations: %w", err)
	}
	return total, nil
}

func (r *SQLiteCalculationRepository) Delete(ctx context.Context, id, owner string) error {
	ctx, span := telemetry.StartSpan(ctx, "SQLiteCalculationRepository.Delete")
	defer span.End()

	return database.WithSQLTransaction(ctx, r.db, func(tx *sql.Tx) error {
		var rowOwner string
		err := tx.QueryRowContext(ctx, `SELECT owner FROM calculations WHERE id = ?`, id).Scan(&rowOwner)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCalculationNotFound
			}
			return fmt.Errorf("failed to read calculation: %w", err)
		}

		if owner != "" && rowOwner != owner {
			return ErrAccessDenied
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM calculations WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete calculation: %w", err)
		}
		return nil
	})
}

func sqliteWhere(filter ListFilter) (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	if filter.Owner != "" {
		conditions = append(conditions, "owner = ?")
		args = append(args, filter.Owner)
	}
	for _, tag := range filter.Tags {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM json_each(calculations.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}

	return strings.Join(conditions, " AND "), args
}
