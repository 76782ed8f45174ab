package interceptors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"broker/pkg/api"
	"broker/pkg/apperror"
	"broker/pkg/auth"
	"broker/pkg/logger"
	"broker/pkg/metrics"
	"broker/pkg/ratelimit"
)

func init() {
	logger.Init("error")
}

const echoProcedure = "/test.v1.EchoService/Echo"

type echoRequest struct {
	Text  string `json:"text"`
	Panic bool   `json:"panic,omitempty"`
	Fail  bool   `json:"fail,omitempty"`
	Cost  int    `json:"cost,omitempty"`
}

func (r *echoRequest) Validate() error {
	if r.Text == "invalid" {
		return errors.New("text must not be 'invalid'")
	}
	return nil
}

func (r *echoRequest) RateLimitCost() int { return r.Cost }

type echoResponse struct {
	Text    string `json:"text"`
	Subject string `json:"subject,omitempty"`
}

func echo(ctx context.Context, req *connect.Request[echoRequest]) (*connect.Response[echoResponse], error) {
	if req.Msg.Panic {
		panic("test panic")
	}
	if req.Msg.Fail {
		return nil, apperror.ToConnect(apperror.New(apperror.CodeNotFound, "nothing here"))
	}
	return connect.NewResponse(&echoResponse{
		Text:    req.Msg.Text,
		Subject: auth.SubjectFromContext(ctx),
	}), nil
}

func newEchoClient(t *testing.T, interceptors ...connect.Interceptor) *connect.Client[echoRequest, echoResponse] {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle(echoProcedure, connect.NewUnaryHandler(echoProcedure, echo,
		connect.WithCodec(api.Codec{}),
		connect.WithInterceptors(interceptors...),
	))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return connect.NewClient[echoRequest, echoResponse](srv.Client(), srv.URL+echoProcedure,
		connect.WithCodec(api.Codec{}))
}

func call(c *connect.Client[echoRequest, echoResponse], msg *echoRequest, header http.Header) (*connect.Response[echoResponse], error) {
	req := connect.NewRequest(msg)
	for k, v := range header {
		req.Header()[k] = v
	}
	return c.CallUnary(context.Background(), req)
}

func TestRecoveryInterceptor(t *testing.T) {
	c := newEchoClient(t, RecoveryInterceptor())

	t.Run("normal execution", func(t *testing.T) {
		resp, err := call(c, &echoRequest{Text: "hi"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Msg.Text != "hi" {
			t.Errorf("unexpected response: %v", resp.Msg.Text)
		}
	})

	t.Run("panic recovery", func(t *testing.T) {
		_, err := call(c, &echoRequest{Panic: true}, nil)
		if err == nil {
			t.Fatal("expected error after panic")
		}
		if connect.CodeOf(err) != connect.CodeInternal {
			t.Errorf("expected Internal code, got %v", connect.CodeOf(err))
		}
	})
}

func TestLoggingInterceptor(t *testing.T) {
	c := newEchoClient(t, LoggingInterceptor())

	t.Run("request id generated", func(t *testing.T) {
		resp, err := call(c, &echoRequest{Text: "hi"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Header().Get(RequestIDHeader) == "" {
			t.Error("expected request id header")
		}
	})

	t.Run("request id propagated", func(t *testing.T) {
		resp, err := call(c, &echoRequest{Text: "hi"}, http.Header{RequestIDHeader: {"req-42"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := resp.Header().Get(RequestIDHeader); got != "req-42" {
			t.Errorf("expected req-42, got %q", got)
		}
	})

	t.Run("failed request", func(t *testing.T) {
		_, err := call(c, &echoRequest{Fail: true}, nil)
		if connect.CodeOf(err) != connect.CodeNotFound {
			t.Errorf("expected NotFound, got %v", connect.CodeOf(err))
		}
	})
}

func TestValidationInterceptor(t *testing.T) {
	c := newEchoClient(t, ValidationInterceptor())

	t.Run("valid request", func(t *testing.T) {
		if _, err := call(c, &echoRequest{Text: "ok"}, nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("invalid request", func(t *testing.T) {
		_, err := call(c, &echoRequest{Text: "invalid"}, nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if connect.CodeOf(err) != connect.CodeInvalidArgument {
			t.Errorf("expected InvalidArgument, got %v", connect.CodeOf(err))
		}
		if code := apperror.FromConnect(err).Code; code != apperror.CodeInvalidArgument {
			t.Errorf("expected INVALID_ARGUMENT, got %v", code)
		}
	})
}

func TestMetricsInterceptor(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry(), "test", "")
	c := newEchoClient(t, MetricsInterceptor(m))

	if _, err := call(c, &echoRequest{Text: "a"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _ = call(c, &echoRequest{Fail: true}, nil)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues(echoProcedure, "ok")); got != 1 {
		t.Errorf("expected 1 ok request, got %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues(echoProcedure, "not_found")); got != 1 {
		t.Errorf("expected 1 not_found request, got %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsInFlight); got != 0 {
		t.Errorf("expected no requests in flight, got %v", got)
	}
}

func TestRateLimitInterceptor(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(&ratelimit.Config{
		Requests: 3,
		Window:   time.Minute,
		Strategy: ratelimit.StrategySlidingWindow,
	})
	defer limiter.Close()

	m := metrics.New(prometheus.NewRegistry(), "test", "")
	c := newEchoClient(t, RateLimitInterceptor(limiter, nil, m))
	client1 := http.Header{"X-Forwarded-For": {"10.0.0.1"}}
	client2 := http.Header{"X-Forwarded-For": {"10.0.0.2"}}

	for i := range 3 {
		if _, err := call(c, &echoRequest{Text: "x"}, client1); err != nil {
			t.Fatalf("request %d should be allowed: %v", i+1, err)
		}
	}

	_, err := call(c, &echoRequest{Text: "x"}, client1)
	if !IsRateLimited(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	var ce *connect.Error
	if !errors.As(err, &ce) {
		t.Fatalf("expected connect error, got %T", err)
	}
	if ce.Meta().Get("X-RateLimit-Limit") != "3" {
		t.Errorf("expected limit header 3, got %q", ce.Meta().Get("X-RateLimit-Limit"))
	}
	if ce.Meta().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if got := testutil.ToFloat64(m.RateLimited.WithLabelValues(echoProcedure)); got != 1 {
		t.Errorf("expected 1 rate limited request, got %v", got)
	}

	// другой клиент не затронут
	if _, err := call(c, &echoRequest{Text: "x"}, client2); err != nil {
		t.Errorf("other client should be allowed: %v", err)
	}

	// пакет расходует несколько единиц
	if _, err := call(c, &echoRequest{Text: "x", Cost: 3}, client2); !IsRateLimited(err) {
		t.Errorf("batch of 3 should exceed the remaining 2, got %v", err)
	}
	if _, err := call(c, &echoRequest{Text: "x", Cost: 2}, client2); err != nil {
		t.Errorf("batch of 2 should fit, got %v", err)
	}
}

func TestAuthInterceptor(t *testing.T) {
	tokens := auth.NewManager(&auth.Config{SecretKey: "test-secret", TokenTTL: time.Hour, Issuer: "test"})
	c := newEchoClient(t, AuthInterceptor(tokens, nil))

	token, err := tokens.Issue("alice", auth.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name    string
		header  string
		code    connect.Code
		subject string
	}{
		{name: "valid token", header: "Bearer " + token, subject: "alice"},
		{name: "missing token", header: "", code: connect.CodeUnauthenticated},
		{name: "wrong scheme", header: "Basic " + token, code: connect.CodeUnauthenticated},
		{name: "garbage token", header: "Bearer not-a-jwt", code: connect.CodeUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			resp, err := call(c, &echoRequest{Text: "x"}, h)
			if tt.code != 0 {
				if connect.CodeOf(err) != tt.code {
					t.Errorf("expected %v, got %v", tt.code, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Msg.Subject != tt.subject {
				t.Errorf("expected subject %q, got %q", tt.subject, resp.Msg.Subject)
			}
		})
	}
}

func TestAuthInterceptor_PublicProcedure(t *testing.T) {
	tokens := auth.NewManager(&auth.Config{SecretKey: "test-secret", TokenTTL: time.Hour, Issuer: "test"})
	c := newEchoClient(t, AuthInterceptor(tokens, []string{echoProcedure}))

	resp, err := call(c, &echoRequest{Text: "x"}, nil)
	if err != nil {
		t.Fatalf("public procedure should not require a token: %v", err)
	}
	if resp.Msg.Subject != "" {
		t.Errorf("expected anonymous call, got subject %q", resp.Msg.Subject)
	}

	// неверный токен отклоняется и на публичной процедуре
	_, err = call(c, &echoRequest{Text: "x"}, http.Header{"Authorization": {"Bearer bad"}})
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryServerInterceptors(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig())
	defer limiter.Close()

	tests := []struct {
		name string
		cfg  *ServerConfig
		want int
	}{
		{name: "minimal", cfg: &ServerConfig{}, want: 3},
		{
			name: "full",
			cfg: &ServerConfig{
				EnableTracing: true,
				Metrics:       metrics.New(prometheus.NewRegistry(), "test", ""),
				RateLimiter:   limiter,
				Tokens:        auth.NewManager(auth.DefaultConfig()),
			},
			want: 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(UnaryServerInterceptors(tt.cfg)); got != tt.want {
				t.Errorf("expected %d interceptors, got %d", tt.want, got)
			}
			if got := len(HandlerOptions(tt.cfg, connect.WithCodec(api.Codec{}))); got != 2 {
				t.Errorf("expected 2 handler options, got %d", got)
			}
		})
	}
}
