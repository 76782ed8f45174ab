// Package service реализует операции API брокера поверх ядра pkg/broker.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"broker/pkg/apperror"
	"broker/pkg/auth"
	"broker/pkg/broker"
	"broker/pkg/cache"
	"broker/pkg/logger"
	"broker/pkg/metrics"
	"broker/pkg/report"
	"broker/pkg/telemetry"
	"broker/services/broker-svc/internal/repository"
	"broker/services/broker-svc/internal/validation"
)

// BrokerService решает задачи, ведёт историю и строит отчёты.
// repo, cache и metrics могут быть nil.
type BrokerService struct {
	opts    Options
	repo    repository.CalculationRepository
	cache   *cache.SolveCache
	metrics *metrics.Metrics
	reports *report.Factory
	flight  singleflight.Group
}

// NewBrokerService создаёт сервис
func NewBrokerService(opts Options, repo repository.CalculationRepository, solveCache *cache.SolveCache, m *metrics.Metrics) *BrokerService {
	if opts.BatchWorkers <= 0 {
		opts.BatchWorkers = 1
	}
	return &BrokerService{
		opts:    opts,
		repo:    repo,
		cache:   solveCache,
		metrics: m,
		reports: report.NewFactory(),
	}
}

// Solve валидирует задачу, берёт результат из кэша или решает и при
// необходимости сохраняет расчёт
func (s *BrokerService) Solve(ctx context.Context, req SolveRequest) (*SolveResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokerService.Solve")
	defer span.End()

	start := time.Now()
	resp, err := s.solve(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordSolveOperation("solve", err == nil, time.Since(start))
	}
	if err != nil {
		telemetry.SetError(ctx, err)
		logger.FromContext(ctx).Warn("Solve failed", "name", req.Name, "error", err)
		return nil, err
	}
	return resp, nil
}

func (s *BrokerService) solve(ctx context.Context, req SolveRequest) (*SolveResponse, error) {
	v := validation.ValidateProblem(req.Problem, s.opts.Limits)
	if err := v.Err(); err != nil {
		return nil, err
	}
	p := req.Problem

	telemetry.SetAttributes(ctx, telemetry.ProblemAttributes(p.Suppliers(), p.Customers(), p.TotalSupply(), p.TotalDemand())...)

	result, cached, err := s.compute(ctx, p)
	if err != nil {
		return nil, err
	}

	resp := &SolveResponse{
		Result:   result,
		Analysis: broker.Analyze(p, result),
		Cached:   cached,
		Warnings: v.WarningMessages(),
	}

	balance := string(resp.Analysis.BalanceApplied)
	telemetry.SetAttributes(ctx, telemetry.ResultAttributes(balance, result.Iterations, len(result.Shipments), result.Summary.TotalProfit)...)
	if s.metrics != nil {
		s.metrics.RecordSolveResult(p.Suppliers(), p.Customers(), result.Iterations, balance, result.Summary.TotalProfit)
	}

	if s.repo != nil && (req.Save || s.opts.PersistResults) {
		id, err := s.persist(ctx, req, result)
		switch {
		case err == nil:
			resp.ID = id
		case req.Save:
			return nil, err
		default:
			// история вторична, расчёт всё равно возвращаем
			logger.FromContext(ctx).Warn("Failed to persist calculation", "error", err)
			telemetry.RecordError(ctx, err)
		}
	}

	logger.FromContext(ctx).Info("Problem solved",
		"id", resp.ID,
		"suppliers", p.Suppliers(),
		"customers", p.Customers(),
		"balance", balance,
		"iterations", result.Iterations,
		"total_profit", result.Summary.TotalProfit,
		"cached", cached,
	)
	return resp, nil
}

// compute возвращает результат и признак попадания в кэш
func (s *BrokerService) compute(ctx context.Context, p *broker.Problem) (*broker.Result, bool, error) {
	if s.cache != nil {
		hit, found, err := s.cache.Get(ctx, p)
		if err != nil {
			logger.FromContext(ctx).Warn("Solve cache lookup failed", "error", err)
		}
		if s.metrics != nil && err == nil {
			s.metrics.RecordCache(found)
		}
		if found {
			telemetry.AddEvent(ctx, "cache_hit", attribute.String("computed_at", hit.ComputedAt.Format(time.RFC3339)))
			return hit.Result, true, nil
		}
	}

	solveCtx := ctx
	if s.opts.SolveTimeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, s.opts.SolveTimeout)
		defer cancel()
	}

	// одинаковые задачи, решаемые одновременно, считаются один раз
	v, err, shared := s.flight.Do(cache.ProblemHash(p), func() (any, error) {
		return broker.SolveContext(solveCtx, p)
	})
	if err != nil {
		return nil, false, solveError(err)
	}
	if shared {
		telemetry.AddEvent(ctx, "solve_shared")
	}
	result := v.(*broker.Result)

	if s.cache != nil {
		if err := s.cache.Set(ctx, p, result, s.opts.CacheTTL); err != nil {
			logger.FromContext(ctx).Warn("Failed to cache solve result", "error", err)
		}
	}
	return result, false, nil
}

func solveError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperror.Wrap(err, apperror.CodeTimeout, "solve timed out")
	case errors.Is(err, context.Canceled):
		return apperror.Wrap(err, apperror.CodeCanceled, "solve canceled")
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.Wrap(err, apperror.CodeSolveFailed, "solve failed")
}

func (s *BrokerService) persist(ctx context.Context, req SolveRequest, result *broker.Result) (string, error) {
	problemJSON, err := json.Marshal(req.Problem)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeInternal, "encode problem")
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeInternal, "encode result")
	}

	calc := &repository.Calculation{
		Owner:       auth.SubjectFromContext(ctx),
		Name:        req.Name,
		Tags:        req.Tags,
		Suppliers:   req.Problem.Suppliers(),
		Customers:   req.Problem.Customers(),
		Problem:     problemJSON,
		Result:      resultJSON,
		Summary:     result.Summary,
		Iterations:  result.Iterations,
		BalanceKind: string(result.Balanced.Kind),
		Duration:    result.Duration,
	}
	if err := s.repo.Save(ctx, calc); err != nil {
		return "", apperror.Wrap(err, apperror.CodeInternal, "failed to save calculation")
	}
	return calc.ID, nil
}

// SolveBatch решает задачи параллельно, не больше BatchWorkers одновременно.
// Ошибка отдельной задачи не прерывает остальные; порядок ответов совпадает с запросом.
func (s *BrokerService) SolveBatch(ctx context.Context, reqs []SolveRequest) ([]BatchItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokerService.SolveBatch",
		telemetry.WithAttributes(attribute.Int("batch.size", len(reqs))))
	defer span.End()

	if len(reqs) == 0 {
		return nil, apperror.NewWithField(apperror.CodeInvalidArgument, "batch is empty", "problems")
	}
	if s.opts.MaxBatchSize > 0 && len(reqs) > s.opts.MaxBatchSize {
		err := apperror.NewWithField(apperror.CodeProblemTooLarge,
			fmt.Sprintf("batch of %d exceeds the limit of %d", len(reqs), s.opts.MaxBatchSize), "problems")
		telemetry.SetError(ctx, err)
		return nil, err
	}

	start := time.Now()
	items := make([]BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.opts.BatchWorkers)
	for i, req := range reqs {
		g.Go(func() error {
			items[i].Index = i
			if err := ctx.Err(); err != nil {
				items[i].Error = solveError(err)
				return nil
			}
			resp, err := s.Solve(ctx, req)
			items[i].Response, items[i].Error = resp, err
			return nil
		})
	}
	_ = g.Wait() // задачи не возвращают ошибок

	failed := 0
	for _, it := range items {
		if it.Error != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("batch.failed", failed))
	if s.metrics != nil {
		s.metrics.RecordSolveOperation("solve_batch", failed == 0, time.Since(start))
	}

	logger.FromContext(ctx).Info("Batch solved", "size", len(reqs), "failed", failed, "duration", time.Since(start))
	return items, nil
}

// StateSource отдаёт коллектору метрик доступ к кэшу и истории сервиса.
// Число расчётов считается по всем владельцам.
func (s *BrokerService) StateSource() metrics.StateSource {
	var src metrics.StateSource
	if s.cache != nil {
		src.Cache = func(ctx context.Context) (metrics.CacheState, error) {
			st, err := s.cache.Stats(ctx)
			if err != nil {
				return metrics.CacheState{}, err
			}
			return metrics.CacheState{
				Keys:        st.TotalKeys,
				Hits:        st.Hits,
				Misses:      st.Misses,
				Evictions:   st.Evictions,
				MemoryBytes: st.MemoryBytes,
			}, nil
		}
	}
	if s.repo != nil {
		src.History = func(ctx context.Context) (int64, error) {
			return s.repo.Count(ctx, repository.ListFilter{})
		}
	}
	return src
}

func (s *BrokerService) requireHistory() error {
	if s.repo == nil {
		return apperror.New(apperror.CodeUnimplemented, "calculation history is disabled")
	}
	return nil
}

func historyError(err error, id string) error {
	switch {
	case errors.Is(err, repository.ErrCalculationNotFound):
		return apperror.Wrap(err, apperror.CodeNotFound, "calculation not found").WithField("id").WithDetails("id", id)
	case errors.Is(err, repository.ErrAccessDenied):
		return apperror.Wrap(err, apperror.CodePermissionDenied, "calculation belongs to another owner").WithField("id")
	default:
		return apperror.Wrap(err, apperror.CodeInternal, "history storage error")
	}
}

// GetCalculation возвращает расчёт владельца (admin видит все)
func (s *BrokerService) GetCalculation(ctx context.Context, id string) (*Calculation, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokerService.GetCalculation",
		telemetry.WithAttributes(attribute.String("calculation.id", id)))
	defer span.End()

	if err := s.requireHistory(); err != nil {
		return nil, err
	}

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		err = historyError(err, id)
		telemetry.SetError(ctx, err)
		return nil, err
	}
	if owner := auth.OwnerScope(ctx); owner != "" && rec.Owner != owner {
		return nil, historyError(repository.ErrAccessDenied, id)
	}

	return decodeCalculation(rec)
}

func decodeCalculation(rec *repository.Calculation) (*Calculation, error) {
	calc := &Calculation{
		ID:        rec.ID,
		Owner:     rec.Owner,
		Name:      rec.Name,
		Tags:      rec.Tags,
		CreatedAt: rec.CreatedAt,
	}
	if err := json.Unmarshal(rec.Problem, &calc.Problem); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "stored problem is corrupted")
	}
	if err := json.Unmarshal(rec.Result, &calc.Result); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "stored result is corrupted")
	}
	if calc.Problem == nil || calc.Result == nil {
		return nil, apperror.New(apperror.CodeInternal, "stored calculation is incomplete")
	}
	if err := calc.Result.CheckShape(calc.Problem); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "stored calculation is inconsistent")
	}
	calc.Analysis = broker.Analyze(calc.Problem, calc.Result)
	return calc, nil
}

// ListCalculations возвращает историю, от новых к старым
func (s *BrokerService) ListCalculations(ctx context.Context, req ListRequest) (*ListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "BrokerService.ListCalculations")
	defer span.End()

	if err := s.requireHistory(); err != nil {
		return nil, err
	}
	if req.Limit < 0 || req.Offset < 0 {
		return nil, apperror.New(apperror.CodeInvalidPagination, "limit and offset must not be negative")
	}
	if req.Limit > repository.MaxListLimit {
		return nil, apperror.Newf(apperror.CodeInvalidPagination, "limit must not exceed %d", repository.MaxListLimit).
			WithField("limit")
	}

	filter := repository.ListFilter{
		Owner:  auth.OwnerScope(ctx),
		Tags:   req.Tags,
		Limit:  req.Limit,
		Offset: req.Offset,
	}.Normalize()

	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, historyError(err, "")
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, historyError(err, "")
	}

	resp := &ListResponse{
		Items: make([]*CalculationSummary, 0, len(records)),
		Total: total,
	}
	for _, rec := range records {
		resp.Items = append(resp.Items, &CalculationSummary{
			ID:          rec.ID,
			Owner:       rec.Owner,
			Name:        rec.Name,
			Tags:        rec.Tags,
			Suppliers:   rec.Suppliers,
			Customers:   rec.Customers,
			Summary:     rec.Summary,
			Iterations:  rec.Iterations,
			BalanceKind: rec.BalanceKind,
			DurationMs:  float64(rec.Duration) / float64(time.Millisecond),
			CreatedAt:   rec.CreatedAt,
		})
	}
	return resp, nil
}

// DeleteCalculation удаляет расчёт владельца (admin удаляет любые)
func (s *BrokerService) DeleteCalculation(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "BrokerService.DeleteCalculation",
		telemetry.WithAttributes(attribute.String("calculation.id", id)))
	defer span.End()

	if err := s.requireHistory(); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id, auth.OwnerScope(ctx)); err != nil {
		err = historyError(err, id)
		telemetry.SetError(ctx, err)
		return err
	}

	logger.FromContext(ctx).Info("Calculation deleted", "id", id, "by", auth.SubjectFromContext(ctx))
	return nil
}
