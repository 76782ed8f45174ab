package repository

import (
	"context"
	"errors"
	"time"

	"broker/pkg/broker"
)

// Стандартные ошибки
var (
	ErrCalculationNotFound = errors.New("calculation not found")
	ErrAccessDenied        = errors.New("access denied")
)

// Границы выборки списка
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Calculation сохранённый расчёт
type Calculation struct {
	ID          string
	Owner       string
	Name        string
	Tags        []string
	Suppliers   int
	Customers   int
	Problem     []byte // JSON broker.Problem
	Result      []byte // JSON broker.Result
	Summary     broker.Summary
	Iterations  int
	BalanceKind string
	Duration    time.Duration
	CreatedAt   time.Time
}

// ListFilter фильтры и пагинация для списка. List не заполняет Problem и Result.
type ListFilter struct {
	Owner  string
	Tags   []string // запись должна содержать все теги
	Limit  int
	Offset int
}

// Normalize приводит limit и offset к допустимым значениям
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// CalculationRepository интерфейс репозитория расчётов
type CalculationRepository interface {
	// Save заполняет ID и CreatedAt, если они пустые
	Save(ctx context.Context, calc *Calculation) error
	Get(ctx context.Context, id string) (*Calculation, error)
	// List возвращает записи от новых к старым
	List(ctx context.Context, filter ListFilter) ([]*Calculation, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	// Delete с непустым owner удаляет только запись этого владельца
	Delete(ctx context.Context, id, owner string) error
}

func prepare(calc *Calculation, now func() time.Time, newID func() string) {
	if calc.ID == "" {
		calc.ID = newID()
	}
	if calc.CreatedAt.IsZero() {
		calc.CreatedAt = now().UTC()
	}
	if calc.Tags == nil {
		calc.Tags = []string{}
	}
}
