package repository

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"broker/pkg/telemetry"
)

// tracedRepository оборачивает каждый вызов в span
type tracedRepository struct {
	next CalculationRepository
}

// WithTracing добавляет трейсинг к репозиторию
func WithTracing(repo CalculationRepository) CalculationRepository {
	return &tracedRepository{next: repo}
}

func (r *tracedRepository) Save(ctx context.Context, calc *Calculation) error {
	ctx, span := telemetry.StartSpan(ctx, "CalculationRepository.Save")
	defer span.End()

	err := r.next.Save(ctx, calc)
	if err != nil {
		telemetry.SetError(ctx, err)
		return err
	}
	span.SetAttributes(attribute.String("calculation.id", calc.ID))
	return nil
}

func (r *tracedRepository) Get(ctx context.Context, id string) (*Calculation, error) {
	ctx, span := telemetry.StartSpan(ctx, "CalculationRepository.Get",
		telemetry.WithAttributes(attribute.String("calculation.id", id)))
	defer span.End()

	calc, err := r.next.Get(ctx, id)
	if err != nil {
		telemetry.SetError(ctx, err)
	}
	return calc, err
}

func (r *tracedRepository) List(ctx context.Context, filter ListFilter) ([]*Calculation, error) {
	ctx, span := telemetry.StartSpan(ctx, "CalculationRepository.List",
		telemetry.WithAttributes(
			attribute.Int("limit", filter.Limit),
			attribute.Int("offset", filter.Offset),
		))
	defer span.End()

	items, err := r.next.List(ctx, filter)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("results", len(items)))
	return items, nil
}

func (r *tracedRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "CalculationRepository.Count")
	defer span.End()

	n, err := r.next.Count(ctx, filter)
	if err != nil {
		telemetry.SetError(ctx, err)
	}
	return n, err
}

func (r *tracedRepository) Delete(ctx context.Context, id, owner string) error {
	ctx, span := telemetry.StartSpan(ctx, "CalculationRepository.Delete",
		telemetry.WithAttributes(attribute.String("calculation.id", id)))
	defer span.End()

	err := r.next.Delete(ctx, id, owner)
	if err != nil {
		telemetry.SetError(ctx, err)
	}
	return err
}
