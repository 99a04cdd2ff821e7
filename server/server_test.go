package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/logging"
	"github.com/goliatone/go-accounts/metrics"
	"github.com/goliatone/go-accounts/server"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

type outbox struct {
	mu   sync.Mutex
	code string
}

func (o *outbox) Send(ctx context.Context, to, templateID string, vars map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.code, _ = vars["activationCode"].(string)
	return nil
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type serverFixture struct {
	*httptestApp
	box     *outbox
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
}

func newServer(t *testing.T, configure ...func(*server.Options)) *serverFixture {
	t.Helper()

	bdb, err := accounts.OpenDB(accounts.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bdb.Close() })

	manager := accounts.NewRepositoryManager(bdb)
	require.NoError(t, manager.Migrate(context.Background()))

	tokens, err := accounts.NewTokenService(accounts.TokenConfig{
		ActivationSecret: "activation",
		AccessSecret:     "access",
		RefreshSecret:    "refresh",
		AccessTTL:        15 * time.Minute,
	})
	require.NoError(t, err)

	m := metrics.New()
	box := &outbox{}
	service := accounts.NewAccountService(manager.Accounts(), tokens, box,
		accounts.WithHasher(accounts.NewBcryptHasher(bcrypt.MinCost)),
		accounts.WithActivitySink(m),
	)

	core, logs := observer.New(zapcore.DebugLevel)

	opts := server.Options{
		Service:     service,
		Logger:      logging.NewZap(zap.New(core)),
		Metrics:     m,
		DB:          bdb,
		PhoneRegion: "US",
	}
	for _, fn := range configure {
		fn(&opts)
	}

	app := server.New(opts)
	return &serverFixture{
		httptestApp: &httptestApp{t: t, test: app.Test},
		box:         box,
		metrics:     m,
		logs:        logs,
	}
}

type httptestApp struct {
	t    *testing.T
	test func(*http.Request, ...int) (*http.Response, error)
}

func (a *httptestApp) do(method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.test(req, -1)
	require.NoError(a.t, err)

	out, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, out
}

func graphql(query string, variables map[string]any) map[string]any {
	return map[string]any{"query": query, "variables": variables}
}

func TestServer_RESTAndGraphQLShareTheService(t *testing.T) {
	app := newServer(t)
	box, m := app.box, app.metrics

	resp, raw := app.do(http.MethodPost, "/graphql", graphql(`mutation R($dto: RegisterDto!) {
		register(registerDto: $dto) { activation_token }
	}`, map[string]any{"dto": map[string]any{
		"name": "Ann", "email": "ann@x.com", "password": "pw123", "phone_number": "+12015550123",
	}}), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var registered struct {
		Data struct {
			Register struct {
				ActivationToken string `json:"activation_token"`
			} `json:"register"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &registered))
	require.NotEmpty(t, registered.Data.Register.ActivationToken)

	resp, raw = app.do(http.MethodPost, "/users/verify-otp", map[string]string{
		"activationToken": registered.Data.Register.ActivationToken,
		"activationCode":  box.code,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	resp, raw = app.do(http.MethodPost, "/users/login", map[string]string{"email": "ann@x.com", "password": "pw123"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var login accounts.LoginResult
	require.NoError(t, json.Unmarshal(raw, &login))
	require.NotNil(t, login.AccessToken)

	resp, raw = app.do(http.MethodPost, "/graphql", graphql(`{ getLoggedInUser { user { email } } }`, nil), map[string]string{
		"accesstoken":  *login.AccessToken,
		"refreshtoken": *login.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":{"getLoggedInUser":{"user":{"email":"ann@x.com"}}}}`, string(raw))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Events.WithLabelValues(string(accounts.ActivityEventAccountActivated))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Events.WithLabelValues(string(accounts.ActivityEventLoginSuccess))))
}

func TestServer_OperationalRoutes(t *testing.T) {
	app := newServer(t)

	resp, raw := app.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))

	resp, raw = app.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "accounts_http_requests_total")

	resp, _ = app.do(http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestServer_HealthReportsStoreFailures(t *testing.T) {
	app := newServer(t, func(o *server.Options) {
		o.DB = pinger{err: errors.New("down")}
	})

	resp, _ := app.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_ErrorStatusIsLoggedAndCounted(t *testing.T) {
	app := newServer(t)

	resp, raw := app.do(http.MethodPost, "/users/verify-otp", map[string]string{
		"activationToken": "forged.token.value",
		"activationCode":  "1234",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(raw))

	assert.Equal(t, float64(1), testutil.ToFloat64(app.metrics.RequestsTotal.WithLabelValues(http.MethodPost, "/users/verify-otp", "401")))
	assert.Equal(t, float64(0), testutil.ToFloat64(app.metrics.RequestsTotal.WithLabelValues(http.MethodPost, "/users/verify-otp", "200")))

	entries := app.logs.FilterMessage("request").FilterField(zap.String("path", "/users/verify-otp")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusUnauthorized), entries[0].ContextMap()["status"])
}

func TestServer_SignupRateLimit(t *testing.T) {
	app := newServer(t, func(o *server.Options) {
		o.SignupRateLimit = 1
	})

	signup := map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": "pw123", "phone_number": "+12015550123",
	}

	resp, raw := app.do(http.MethodPost, "/users/signup", signup, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	resp, raw = app.do(http.MethodPost, "/users/signup", signup, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(raw), "too many signup attempts")

	resp, _ = app.do(http.MethodPost, "/users/login", map[string]string{"email": "ann@x.com", "password": "pw123"}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
