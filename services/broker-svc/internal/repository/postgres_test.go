package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"broker/pkg/broker"
)

// ============================================================
// MOCK DB ADAPTER
// ============================================================

type pgxMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *pgxMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}

func (a *pgxMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}

func (a *pgxMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}

func (a *pgxMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}

func (a *pgxMockAdapter) Close() {
	a.mock.Close()
}

func (a *pgxMockAdapter) Ping(ctx context.Context) error {
	return a.mock.Ping(ctx)
}

// ============================================================
// HELPER FUNCTIONS
// ============================================================

const testID = "6f1c2a3e-8d4b-4f7a-9c1e-2b3d4e5f6a7b"

var testTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func setupMockDB(t *testing.T) (pgxmock.PgxPoolIface, *PostgresCalculationRepository) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	repo := NewPostgresCalculationRepository(&pgxMockAdapter{mock: mock})
	repo.now = func() time.Time { return testTime }
	repo.newID = func() string { return testID }

	return mock, repo
}

func createTagsArray(tags []string) pgtype.Array[string] {
	return pgtype.Array[string]{
		Elements: tags,
		Valid:    true,
		Dims:     []pgtype.ArrayDimension{{Length: int32(len(tags)), LowerBound: 1}},
	}
}

func sampleCalculation() *Calculation {
	return &Calculation{
		Owner:     "alice",
		Name:      "weekly plan",
		Tags:      []string{"weekly"},
		Suppliers: 2,
		Customers: 2,
		Problem:   []byte(`{"supply":[20,30]}`),
		Result:    []byte(`{"iterations":4}`),
		Summary: broker.Summary{
			TotalPurchase:  280,
			TotalTransport: 55,
			TotalRevenue:   570,
			TotalProfit:    235,
		},
		Iterations:  4,
		BalanceKind: "none",
		Duration:    1500 * time.Microsecond,
	}
}

var listColumns = []string{
	"id", "owner", "name", "tags", "suppliers", "customers",
	"total_purchase", "total_transport", "total_revenue", "total_profit",
	"iterations", "balance_kind", "duration_ns", "created_at",
}

// ============================================================
// SAVE
// ============================================================

func TestPostgresCalculationRepository_Save(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	calc := sampleCalculation()

	mock.ExpectExec(`INSERT INTO calculations`).
		WithArgs(
			testID,
			"alice",
			"weekly plan",
			[]string{"weekly"},
			2,
			2,
			calc.Problem,
			calc.Result,
			int64(280),
			int64(55),
			int64(570),
			int64(235),
			4,
			"none",
			int64(1500*time.Microsecond),
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Save(context.Background(), calc)

	require.NoError(t, err)
	assert.Equal(t, testID, calc.ID)
	assert.Equal(t, testTime, calc.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCalculationRepository_Save_Error(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO calculations`).
		WillReturnError(errors.New("connection reset"))

	err := repo.Save(context.Background(), sampleCalculation())

	assert.ErrorContains(t, err, "failed to save calculation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================
// GET
// ============================================================

func TestPostgresCalculationRepository_Get(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"id", "owner", "name", "tags", "suppliers", "customers", "problem", "result",
		"total_purchase", "total_transport", "total_revenue", "total_profit",
		"iterations", "balance_kind", "duration_ns", "created_at",
	}).AddRow(
		testID, "alice", "weekly plan", createTagsArray([]string{"weekly"}), 2, 2,
		[]byte(`{"supply":[20,30]}`), []byte(`{"iterations":4}`),
		int64(280), int64(55), int64(570), int64(235),
		4, "none", int64(2000), testTime,
	)

	mock.ExpectQuery(`SELECT`).WithArgs(testID).WillReturnRows(rows)

	calc, err := repo.Get(context.Background(), testID)

	require.NoError(t, err)
	assert.Equal(t, "alice", calc.Owner)
	assert.Equal(t, []string{"weekly"}, calc.Tags)
	assert.Equal(t, int64(235), calc.Summary.TotalProfit)
	assert.Equal(t, 2*time.Microsecond, calc.Duration)
	assert.JSONEq(t, `{"iterations":4}`, string(calc.Result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCalculationRepository_Get_NotFound(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT`).WithArgs(testID).WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), testID)

	assert.ErrorIs(t, err, ErrCalculationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCalculationRepository_Get_InvalidID(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	_, err := repo.Get(context.Background(), "not-a-uuid")

	assert.ErrorIs(t, err, ErrCalculationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================
// LIST / COUNT
// ============================================================

func TestPostgresCalculationRepository_List(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	rows := pgxmock.NewRows(listColumns).
		AddRow(testID, "alice", "b", createTagsArray([]string{"weekly"}), 2, 2,
			int64(280), int64(55), int64(570), int64(235), 4, "none", int64(10), testTime).
		AddRow("a2b3c4d5-0000-4000-8000-000000000000", "alice", "a", createTagsArray(nil), 1, 2,
			int64(20), int64(10), int64(46), int64(16), 4, "dummy_supplier", int64(10), testTime.Add(-time.Hour))

	mock.ExpectQuery(`ORDER BY created_at DESC`).
		WithArgs("alice", []string{"weekly"}, MaxListLimit, 0).
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), ListFilter{
		Owner: "alice",
		Tags:  []string{"weekly"},
		Limit: 500,
	})

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Name)
	assert.Equal(t, "dummy_supplier", list[1].BalanceKind)
	assert.Nil(t, list[0].Problem, "list rows carry no payload")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCalculationRepository_List_DefaultLimit(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM calculations`).
		WithArgs(DefaultListLimit, 0).
		WillReturnRows(pgxmock.NewRows(listColumns))

	list, err := repo.List(context.Background(), ListFilter{Offset: -5})

	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCalculationRepository_Count(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := repo.Count(context.Background(), ListFilter{Owner: "alice"})

	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhereClause(t *testing.T) {
	repo := &PostgresCalculationRepository{}

	where, args := repo.buildWhereClause(ListFilter{})
	assert.Equal(t, "TRUE", where)
	assert.Empty(t, args)

	where, args = repo.buildWhereClause(ListFilter{Owner: "bob", Tags: []string{"x", "y"}})
	assert.Equal(t, "TRUE AND owner = $1 AND tags @> $2", where)
	assert.Equal(t, []any{"bob", []string{"x", "y"}}, args)
}

// ============================================================
// DELETE
// ============================================================

func TestPostgresCalculationRepository_Delete(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT owner FROM calculations`).
		WithArgs(testID).
		WillReturnRows(pgxmock.NewRows([]string{"owner"}).AddRow("alice"))
	mock.ExpectExec(`DELETE FROM calculations`).
		WithArgs(testID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), testID, "alice")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCalculationRepository_Delete_OtherOwner(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT owner FROM calculations`).
		WithArgs(testID).
		WillReturnRows(pgxmock.NewRows([]string{"owner"}).AddRow("alice"))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), testID, "mallory")

	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCalculationRepository_Delete_NotFound(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT owner FROM calculations`).
		WithArgs(testID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), testID, "")

	assert.ErrorIs(t, err, ErrCalculationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
