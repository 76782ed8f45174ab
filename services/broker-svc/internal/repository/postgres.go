package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"broker/pkg/database"
	"broker/pkg/telemetry"
)

// PostgresCalculationRepository PostgreSQL реализация
type PostgresCalculationRepository struct {
	db    database.DB
	now   func() time.Time
	newID func() string
}

// NewPostgresCalculationRepository создаёт новый репозиторий
func NewPostgresCalculationRepository(db database.DB) *PostgresCalculationRepository {
	return &PostgresCalculationRepository{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (r *PostgresCalculationRepository) Save(ctx context.Context, calc *Calculation) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCalculationRepository.Save")
	defer span.End()

	prepare(calc, r.now, r.newID)

	query := `
		INSERT INTO calculations (
			id, owner, name, tags, suppliers, customers, problem, result,
			total_purchase, total_transport, total_revenue, total_profit,
			iterations, balance_kind, duration_ns, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.Exec(ctx, query,
		calc.ID,
		calc.Owner,
		calc.Name,
		calc.Tags,
		calc.Suppliers,
		calc.Customers,
		calc.Problem,
		calc.Result,
		calc.Summary.TotalPurchase,
		calc.Summary.TotalTransport,
		calc.Summary.TotalRevenue,
		calc.Summary.TotalProfit,
		calc.Iterations,
		calc.BalanceKind,
		int64(calc.Duration),
		calc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save calculation: %w", err)
	}

	return nil
}

func (r *PostgresCalculationRepository) Get(ctx context.Context, id string) (*Calculation, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCalculationRepository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrCalculationNotFound
	}

	query := `
		SELECT
			id, owner, name, tags, suppliers, customers, problem, result,
			total_purchase, total_transport, total_revenue, total_profit,
			iterations, balance_kind, duration_ns, created_at
		FROM calculations
		WHERE id = $1
	`

	calc := &Calculation{}
	var (
		tags     pgtype.Array[string]
		duration int64
	)

	err := r.db.QueryRow(ctx, query, id).Scan(
		&calc.ID,
		&calc.Owner,
		&calc.Name,
		&tags,
		&calc.Suppliers,
		&calc.Customers,
		&calc.Problem,
		&calc.Result,
		&calc.Summary.TotalPurchase,
		&calc.Summary.TotalTransport,
		&calc.Summary.TotalRevenue,
		&calc.Summary.TotalProfit,
		&calc.Iterations,
		&calc.BalanceKind,
		&duration,
		&calc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCalculationNotFound
		}
		return nil, fmt.Errorf("failed to get calculation: %w", err)
	}

	calc.Tags = tags.Elements
	calc.Duration = time.Duration(duration)

	return calc, nil
}

func (r *PostgresCalculationRepository) List(ctx context.Context, filter ListFilter) ([]*Calculation, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCalculationRepository.List")
	defer span.End()

	filter = filter.Normalize()
	where, args := r.buildWhereClause(filter)

	query := fmt.Sprintf(`
		SELECT
			id, owner, name, tags, suppliers, customers,
			total_purchase, total_transport, total_revenue, total_profit,
			iterations, balance_kind, duration_ns, created_at
		FROM calculations
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calculations: %w", err)
	}
	defer rows.Close()

	var results []*Calculation
	for rows.Next() {
		calc := &Calculation{}
		var (
			tags     pgtype.Array[string]
			duration int64
		)

		err := rows.Scan(
			&calc.ID,
			&calc.Owner,
			&calc.Name,
			&tags,
			&calc.Suppliers,
			&calc.Customers,
			&calc.Summary.TotalPurchase,
			&calc.Summary.TotalTransport,
			&calc.Summary.TotalRevenue,
			&calc.Summary.TotalProfit,
			&calc.Iterations,
			&calc.BalanceKind,
			&duration,
			&calc.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calculation: %w", err)
		}

		calc.Tags = tags.Elements
		calc.Duration = time.Duration(duration)
		results = append(results, calc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return results, nil
}

func (r *PostgresCalculationRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCalculationRepository.Count")
	defer span.End()

	where, args := r.buildWhereClause(filter)

	var total int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM calculations WHERE %s`, where)
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count calculations: %w", err)
	}
	return total, nil
}

// Delete проверяет владельца и удаляет запись в одной транзакции
func (r *PostgresCalculationRepository) Delete(ctx context.Context, id, owner string) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresCalculationRepository.Delete")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return ErrCalculationNotFound
	}

	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		var rowOwner string
		err := tx.QueryRow(ctx, `SELECT owner FROM calculations WHERE id = $1 FOR UPDATE`, id).Scan(&rowOwner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCalculationNotFound
			}
			return fmt.Errorf("failed to lock calculation: %w", err)
		}

		if owner != "" && rowOwner != owner {
			return ErrAccessDenied
		}

		if _, err := tx.Exec(ctx, `DELETE FROM calculations WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete calculation: %w", err)
		}
		return nil
	})
}

func (r *PostgresCalculationRepository) buildWhereClause(filter ListFilter) (string, []any) {
	conditions := []string{"TRUE"}
	var args []any

	if filter.Owner != "" {
		args = append(args, filter.Owner)
		conditions = append(conditions, fmt.Sprintf("owner = $%d", len(args)))
	}

	if len(filter.Tags) > 0 {
		args = append(args, filter.Tags)
		conditions = append(conditions, fmt.Sprintf("tags @> $%d", len(args)))
	}

	return strings.Join(conditions, " AND "), args
}
