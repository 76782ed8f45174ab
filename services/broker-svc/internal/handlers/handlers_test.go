package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"broker/pkg/api"
	"broker/pkg/apperror"
	"broker/pkg/auth"
	"broker/pkg/broker"
	"broker/pkg/client"
	"broker/pkg/config"
	"broker/pkg/database"
	"broker/pkg/interceptors"
	"broker/pkg/logger"
	"broker/pkg/metrics"
	"broker/pkg/ratelimit"
	"broker/pkg/swagger"
	"broker/services/broker-svc/internal/repository"
	"broker/services/broker-svc/internal/service"
)

func init() {
	logger.Init("error")
}

func sampleProblem() *broker.Problem {
	return &broker.Problem{
		Supply:         []int64{20, 30},
		Demand:         []int64{25, 25},
		PurchaseCosts:  []int64{5, 6},
		SellingPrices:  []int64{12, 11},
		TransportCosts: broker.Matrix{{1, 2}, {2, 1}},
	}
}

type testEnv struct {
	srv    *httptest.Server
	tokens *auth.Manager
}

type envOptions struct {
	auth      bool
	rateLimit int
}

func newTestEnv(t *testing.T, o envOptions) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, &config.DatabaseConfig{SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	m, err := database.NewMigrator(db, database.DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))

	reg := prometheus.NewRegistry()
	mtr := metrics.New(reg, "broker", "")

	opts := service.DefaultOptions()
	opts.PersistResults = false
	svc := service.NewBrokerService(opts, repository.NewSQLiteCalculationRepository(db), nil, mtr)
	reg.MustRegister(metrics.NewStateCollector("broker", "", svc.StateSource(), time.Second))

	ic := &interceptors.ServerConfig{Metrics: mtr}
	env := &testEnv{}
	if o.auth {
		env.tokens = auth.NewManager(&auth.Config{SecretKey: "test-secret", TokenTTL: time.Hour, Issuer: "test"})
		ic.Tokens = env.tokens
		ic.KeyExtractor = ratelimit.SubjectKeyExtractor(auth.SubjectFromContext)
	}
	if o.rateLimit > 0 {
		limiter := ratelimit.NewMemoryLimiter(&ratelimit.Config{Requests: o.rateLimit, Window: time.Minute})
		t.Cleanup(func() { limiter.Close() })
		ic.RateLimiter = limiter
	}

	docs, err := swagger.New(api.OpenAPI, swagger.Options{
		Version:      "test",
		MaxNodes:     opts.Limits.MaxNodes,
		MaxBatchSize: opts.MaxBatchSize,
		AuthRequired: o.auth,
	})
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		Service:      svc,
		Interceptors: ic,
		Tokens:       env.tokens,
		Metrics:      metrics.HandlerFor(reg),
		Ready: map[string]Checker{
			"database": func(r *http.Request) error { return db.PingContext(r.Context()) },
		},
		Docs:    docs,
		Version: "test",
		HTTP: config.HTTPConfig{
			MaxBodyBytes: 1 << 20,
			CORS:         config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowedMethods: []string{"POST"}},
		},
	})
	env.srv = httptest.NewServer(router)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) client(token string) *client.BrokerClient {
	return client.New(&client.Config{Address: e.srv.URL, Token: token}, e.srv.Client())
}

func (e *testEnv) token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := e.tokens.Issue(subject, role)
	require.NoError(t, err)
	return tok
}

func TestBrokerHandler_Solve(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	c := env.client("")

	resp, err := c.Solve(context.Background(), &api.SolveRequest{Problem: sampleProblem()})
	require.NoError(t, err)

	assert.Equal(t, broker.Matrix{{20, 0}, {5, 25}}, resp.Result.Allocation)
	assert.Equal(t, int64(235), resp.Result.Summary.TotalProfit)
	assert.Equal(t, 4, resp.Result.Iterations)
	assert.Equal(t, 3, resp.Result.Allocations)
	require.Len(t, resp.Result.Shipments, 3)
	assert.Equal(t, broker.Shipment{Step: 1, Supplier: 0, Customer: 0, Quantity: 20, Profit: 6, Cost: 1}, resp.Result.Shipments[0])
}

func TestBrokerHandler_SolveErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	c := env.client("")

	bad := sampleProblem()
	bad.PurchaseCosts = []int64{5}

	_, err := c.Solve(context.Background(), &api.SolveRequest{Problem: bad})
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeShapeMismatch, appErr.Code)
	assert.Equal(t, "purchase_costs", appErr.Field)
}

func TestBrokerHandler_SolveBatch(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	c := env.client("")

	bad := sampleProblem()
	bad.Supply = []int64{-1, 30}

	resp, err := c.SolveBatch(context.Background(), []api.SolveRequest{
		{Problem: sampleProblem()},
		{Problem: bad},
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)

	assert.Nil(t, resp.Items[0].Error)
	assert.Equal(t, int64(235), resp.Items[0].Response.Result.Summary.TotalProfit)

	require.NotNil(t, resp.Items[1].Error)
	assert.Equal(t, string(apperror.CodeNegativeValue), resp.Items[1].Error.Code)
	assert.Equal(t, "supply[0]", resp.Items[1].Error.Field)
}

func TestBrokerHandler_History(t *testing.T) {
	env := newTestEnv(t, envOptions{auth: true})
	ctx := context.Background()

	alice := env.client(env.token(t, "alice", auth.RoleUser))
	bob := env.client(env.token(t, "bob", auth.RoleUser))

	saved, err := alice.Solve(ctx, &api.SolveRequest{Name: "weekly", Problem: sampleProblem(), Save: true})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	calc, err := alice.GetCalculation(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", calc.Owner)
	assert.Equal(t, "weekly", calc.Name)

	list, err := alice.ListCalculations(ctx, &api.ListCalculationsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)

	list, err = bob.ListCalculations(ctx, &api.ListCalculationsRequest{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)

	_, err = bob.GetCalculation(ctx, saved.ID)
	assert.Equal(t, apperror.CodePermissionDenied, apperror.Code(err))

	_, err = alice.GetCalculation(ctx, "")
	assert.Equal(t, apperror.CodeInvalidArgument, apperror.Code(err))

	require.NoError(t, alice.DeleteCalculation(ctx, saved.ID))
	_, err = alice.GetCalculation(ctx, saved.ID)
	assert.Equal(t, apperror.CodeNotFound, apperror.Code(err))
}

func TestBrokerHandler_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, envOptions{auth: true})

	_, err := env.client("").Solve(context.Background(), &api.SolveRequest{Problem: sampleProblem()})
	assert.Equal(t, apperror.CodeUnauthenticated, apperror.Code(err))

	_, err = env.client("forged").Solve(context.Background(), &api.SolveRequest{Problem: sampleProblem()})
	assert.Equal(t, apperror.CodeUnauthenticated, apperror.Code(err))
}

func TestBrokerHandler_RateLimit(t *testing.T) {
	env := newTestEnv(t, envOptions{rateLimit: 3})
	c := client.New(&client.Config{Address: env.srv.URL, MaxRetries: 0}, env.srv.Client())
	ctx := context.Background()

	// пакет из трёх задач расходует весь лимит
	_, err := c.SolveBatch(ctx, []api.SolveRequest{
		{Problem: sampleProblem()},
		{Problem: sampleProblem()},
		{Problem: sampleProblem()},
	})
	require.NoError(t, err)

	_, err = c.Solve(ctx, &api.SolveRequest{Problem: sampleProblem()})
	assert.Equal(t, apperror.CodeRateLimited, apperror.Code(err))
}

func TestBrokerHandler_GenerateReport(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	c := env.client("")

	resp, err := c.GenerateReport(context.Background(), &api.GenerateReportRequest{Problem: sampleProblem(), Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", resp.Format)
	assert.Equal(t, "broker-plan.csv", resp.Filename)
	assert.NotEmpty(t, resp.Content)

	_, err = c.GenerateReport(context.Background(), &api.GenerateReportRequest{Format: "csv"})
	assert.Equal(t, apperror.CodeInvalidArgument, apperror.Code(err))
}

func TestReportDownloadHandler(t *testing.T) {
	env := newTestEnv(t, envOptions{auth: true})
	tok := env.token(t, "alice", auth.RoleUser)

	saved, err := env.client(tok).Solve(context.Background(), &api.SolveRequest{Problem: sampleProblem(), Save: true})
	require.NoError(t, err)

	get := func(path, token string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, env.srv.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("text", func(t *testing.T) {
		resp := get("/reports/"+saved.ID+".txt", tok)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "broker-"+saved.ID+".txt")
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "Total profit")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		resp := get("/reports/"+saved.ID+".txt", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("other owner", func(t *testing.T) {
		resp := get("/reports/"+saved.ID+".txt", env.token(t, "bob", auth.RoleUser))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("unknown format", func(t *testing.T) {
		resp := get("/reports/"+saved.ID+".docx", tok)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, string(apperror.CodeUnsupportedFormat), body["code"])
	})

	t.Run("missing", func(t *testing.T) {
		resp := get("/reports/nope.csv", tok)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("no extension", func(t *testing.T) {
		resp := get("/reports/"+saved.ID, tok)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHealthReadyMetrics(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	_, err := env.client("").Solve(context.Background(), &api.SolveRequest{Problem: sampleProblem()})
	require.NoError(t, err)

	for _, tc := range []struct {
		path     string
		contains string
	}{
		{"/health", `"status":"ok"`},
		{"/ready", `"ready":true`},
		{"/reports", `"pdf"`},
		{"/metrics", "broker_solve_operations_total"},
		{"/metrics", "broker_history_calculations 0"},
		{"/docs/openapi.json", "/broker.v1.BrokerService/SolveBatch"},
		{"/docs/openapi.json", `"maxItems": 500`},
	} {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := env.srv.Client().Get(env.srv.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tc.contains)
		})
	}
}

func TestReadyHandler_Failing(t *testing.T) {
	h := ReadyHandler(map[string]Checker{
		"cache": func(*http.Request) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "connection refused"))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code apperror.ErrorCode
		want int
	}{
		{apperror.CodeNotFound, http.StatusNotFound},
		{apperror.CodePermissionDenied, http.StatusForbidden},
		{apperror.CodeUnauthenticated, http.StatusUnauthorized},
		{apperror.CodeShapeMismatch, http.StatusBadRequest},
		{apperror.CodeUnimplemented, http.StatusNotImplemented},
		{apperror.CodeReportFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.code), string(tt.code))
	}
}
