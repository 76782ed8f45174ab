package main

import (
	"context"
	"strings"

	"github.com/urfave/cli/v2"

	"broker/pkg/api"
	"broker/pkg/client"
	"broker/pkg/config"
	"broker/pkg/logger"
	"broker/services/broker-svc/internal/repository"
	"broker/services/broker-svc/internal/service"
)

const configKey = "config"

// backend общий интерфейс локального сервиса и клиента broker-svc
type backend interface {
	Solve(ctx context.Context, req *api.SolveRequest) (*api.SolveResponse, error)
	GenerateReport(ctx context.Context, req *api.GenerateReportRequest) (*api.GenerateReportResponse, error)
	GetCalculation(ctx context.Context, id string) (*api.Calculation, error)
	ListCalculations(ctx context.Context, req *api.ListCalculationsRequest) (*api.ListCalculationsResponse, error)
	DeleteCalculation(ctx context.Context, id string) error
}

// setup загружает конфигурацию и настраивает логгер, логи идут в stderr
func setup(c *cli.Context) error {
	var opts []config.LoaderOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithConfigPaths(path))
	}
	cfg, err := config.NewLoader(opts...).Load()
	if err != nil {
		return err
	}

	if db := c.String("db"); db != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.SQLitePath = db
	}
	if server := c.String("server"); server != "" {
		cfg.Client.Address = server
	}
	if token := c.String("token"); token != "" {
		cfg.Client.Token = token
	}

	logger.InitWithConfig(logger.Config{
		Level:  c.String("log-level"),
		Format: "text",
		Output: "stderr",
	})

	c.App.Metadata = map[string]any{configKey: cfg}
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return &config.Config{}
}

// openBackend выбирает удалённый сервер при --server, иначе собирает
// сервис в процессе. withHistory открывает хранилище расчётов.
func openBackend(c *cli.Context, withHistory bool) (backend, func() error, error) {
	cfg := loadedConfig(c)

	if c.String("server") != "" {
		return client.New(client.FromConfig(cfg.Client), nil), func() error { return nil }, nil
	}

	opts := service.OptionsFromConfig(cfg)
	// локальный solve сохраняет только по --save
	opts.PersistResults = false

	var (
		repo    repository.CalculationRepository
		closeFn = func() error { return nil }
	)
	if withHistory {
		dbCfg := cfg.Database
		if strings.TrimSpace(dbCfg.Driver) == "" {
			dbCfg.Driver = "sqlite"
		}
		dbCfg.AutoMigrate = true
		store, err := repository.Open(c.Context, &dbCfg)
		if err != nil {
			return nil, nil, err
		}
		repo = store
		closeFn = store.Close
	}

	return &localBackend{svc: service.NewBrokerService(opts, repo, nil, nil)}, closeFn, nil
}

// localBackend адаптирует BrokerService к сообщениям API
type localBackend struct {
	svc *service.BrokerService
}

func (b *localBackend) Solve(ctx context.Context, req *api.SolveRequest) (*api.SolveResponse, error) {
	return b.svc.Solve(ctx, *req)
}

func (b *localBackend) GenerateReport(ctx context.Context, req *api.GenerateReportRequest) (*api.GenerateReportResponse, error) {
	rep, err := b.svc.Report(ctx, *req)
	if err != nil {
		return nil, err
	}
	return &api.GenerateReportResponse{
		Content:     rep.Content,
		ContentType: rep.ContentType,
		Filename:    rep.Filename,
		Format:      string(rep.Format),
	}, nil
}

func (b *localBackend) GetCalculation(ctx context.Context, id string) (*api.Calculation, error) {
	return b.svc.GetCalculation(ctx, id)
}

func (b *localBackend) ListCalculations(ctx context.Context, req *api.ListCalculationsRequest) (*api.ListCalculationsResponse, error) {
	return b.svc.ListCalculations(ctx, *req)
}

func (b *localBackend) DeleteCalculation(ctx context.Context, id string) error {
	return b.svc.DeleteCalculation(ctx, id)
}
