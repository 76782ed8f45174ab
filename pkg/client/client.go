package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"

	"broker/pkg/api"
	"broker/pkg/apperror"
	"broker/pkg/config"
)

// Config конфигурация клиента
type Config struct {
	Address      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	Token        string
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Address:      "http://localhost:8080",
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
		MaxBackoff:   2 * time.Second,
	}
}

// FromConfig переводит секцию client
func FromConfig(cfg config.ClientConfig) *Config {
	c := DefaultConfig()
	if cfg.Address != "" {
		c.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if cfg.MaxRetries >= 0 {
		c.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBackoff > 0 {
		c.RetryBackoff = cfg.RetryBackoff
	}
	if cfg.MaxBackoff > 0 {
		c.MaxBackoff = cfg.MaxBackoff
	}
	c.Token = cfg.Token
	return c
}

// BrokerClient клиент broker.v1.BrokerService
type BrokerClient struct {
	solve      *connect.Client[api.SolveRequest, api.SolveResponse]
	solveBatch *connect.Client[api.SolveBatchRequest, api.SolveBatchResponse]
	get        *connect.Client[api.GetCalculationRequest, api.Calculation]
	list       *connect.Client[api.ListCalculationsRequest, api.ListCalculationsResponse]
	del        *connect.Client[api.DeleteCalculationRequest, api.DeleteCalculationResponse]
	report     *connect.Client[api.GenerateReportRequest, api.GenerateReportResponse]
}

// New создаёт клиента. httpClient nil - http.DefaultClient с таймаутом из cfg.
func New(cfg *Config, httpClient *http.Client) *BrokerClient {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	base := strings.TrimRight(cfg.Address, "/")
	opts := []connect.ClientOption{
		connect.WithCodec(api.Codec{}),
		connect.WithInterceptors(
			BearerInterceptor(cfg.Token),
			RetryInterceptor(RetryPolicy{
				MaxRetries: cfg.MaxRetries,
				Backoff:    cfg.RetryBackoff,
				MaxBackoff: cfg.MaxBackoff,
			}),
		),
	}

	return &BrokerClient{
		solve:      connect.NewClient[api.SolveRequest, api.SolveResponse](httpClient, base+api.SolveProcedure, opts...),
		solveBatch: connect.NewClient[api.SolveBatchRequest, api.SolveBatchResponse](httpClient, base+api.SolveBatchProcedure, opts...),
		get:        connect.NewClient[api.GetCalculationRequest, api.Calculation](httpClient, base+api.GetCalculationProcedure, opts...),
		list:       connect.NewClient[api.ListCalculationsRequest, api.ListCalculationsResponse](httpClient, base+api.ListCalculationsProcedure, opts...),
		del:        connect.NewClient[api.DeleteCalculationRequest, api.DeleteCalculationResponse](httpClient, base+api.DeleteCalculationProcedure, opts...),
		report:     connect.NewClient[api.GenerateReportRequest, api.GenerateReportResponse](httpClient, base+api.GenerateReportProcedure, opts...),
	}
}

// Solve решает задачу на сервере
func (c *BrokerClient) Solve(ctx context.Context, req *api.SolveRequest) (*api.SolveResponse, error) {
	resp, err := c.solve.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, callError("solve", err)
	}
	return resp.Msg, nil
}

// SolveBatch решает пакет задач
func (c *BrokerClient) SolveBatch(ctx context.Context, reqs []api.SolveRequest) (*api.SolveBatchResponse, error) {
	resp, err := c.solveBatch.CallUnary(ctx, connect.NewRequest(&api.SolveBatchRequest{Problems: reqs}))
	if err != nil {
		return nil, callError("solve batch", err)
	}
	return resp.Msg, nil
}

// GetCalculation возвращает сохранённый расчёт
func (c *BrokerClient) GetCalculation(ctx context.Context, id string) (*api.Calculation, error) {
	resp, err := c.get.CallUnary(ctx, connect.NewRequest(&api.GetCalculationRequest{ID: id}))
	if err != nil {
		return nil, callError("get calculation", err)
	}
	return resp.Msg, nil
}

// ListCalculations возвращает страницу истории
func (c *BrokerClient) ListCalculations(ctx context.Context, req *api.ListCalculationsRequest) (*api.ListCalculationsResponse, error) {
	resp, err := c.list.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, callError("list calculations", err)
	}
	return resp.Msg, nil
}

// DeleteCalculation удаляет расчёт
func (c *BrokerClient) DeleteCalculation(ctx context.Context, id string) error {
	if _, err := c.del.CallUnary(ctx, connect.NewRequest(&api.DeleteCalculationRequest{ID: id})); err != nil {
		return callError("delete calculation", err)
	}
	return nil
}

// GenerateReport строит отчёт на сервере
func (c *BrokerClient) GenerateReport(ctx context.Context, req *api.GenerateReportRequest) (*api.GenerateReportResponse, error) {
	resp, err := c.report.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, callError("generate report", err)
	}
	return resp.Msg, nil
}

// callError восстанавливает *apperror.Error из ответа сервера
func callError(op string, err error) error {
	appErr := apperror.FromConnect(err)
	appErr.Message = fmt.Sprintf("%s: %s", op, appErr.Message)
	return appErr
}
