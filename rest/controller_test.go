package rest_test

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

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/rest"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const validPhone = "+12015550123"

type outbox struct {
	mu   sync.Mutex
	code string
	err  error
}

func (o *outbox) Send(ctx context.Context, to, templateID string, vars map[string]any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.code, _ = vars["activationCode"].(string)
	return nil
}

type fixture struct {
	app    *fiber.App
	outbox *outbox
	tokens *accounts.TokenService
}

func newFixture(t *testing.T, opts ...rest.ControllerOption) *fixture {
	t.Helper()

	db, err := accounts.OpenDB(accounts.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	manager := accounts.NewRepositoryManager(db)
	require.NoError(t, manager.Migrate(context.Background()))

	tokens, err := accounts.NewTokenService(accounts.TokenConfig{
		ActivationSecret: "activation",
		AccessSecret:     "access",
		RefreshSecret:    "refresh",
		AccessTTL:        15 * time.Minute,
	})
	require.NoError(t, err)

	box := &outbox{}
	service := accounts.NewAccountService(manager.Accounts(), tokens, box,
		accounts.WithHasher(accounts.NewBcryptHasher(bcrypt.MinCost)),
	)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return fiber.New(fiber.Config{ErrorHandler: rest.ErrorHandler(nil)})
	})
	rest.RegisterRoutes(srv.Router(), rest.NewController(service, opts...))

	return &fixture{app: srv.WrappedRouter(), outbox: box, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func signupBody() map[string]string {
	return map[string]string{
		"name":         "Ann",
		"email":        "ann@x.com",
		"password":     "pw123",
		"phone_number": validPhone,
	}
}

// activate runs signup and verify-otp and returns the created user
func (f *fixture) activate(t *testing.T) map[string]any {
	t.Helper()

	resp, raw := f.do(t, http.MethodPost, "/users/signup", signupBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	token := decode[map[string]string](t, raw)["activation_token"]

	resp, raw = f.do(t, http.MethodPost, "/users/verify-otp", map[string]string{
		"activationToken": token,
		"activationCode":  f.outbox.code,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	return decode[map[string]map[string]any](t, raw)["user"]
}

func TestController_SignupAndVerify(t *testing.T) {
	f := newFixture(t)

	user := f.activate(t)
	assert.Equal(t, "Ann", user["name"])
	assert.Equal(t, "ann@x.com", user["email"])
	assert.Equal(t, validPhone, user["phone_number"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "password_hash")
	assert.NotContains(t, user, "PasswordHash")

	t.Run("duplicate signup conflicts", func(t *testing.T) {
		resp, raw := f.do(t, http.MethodPost, "/users/signup", signupBody(), nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		body := decode[rest.ErrorResponse](t, raw)
		assert.Equal(t, http.StatusConflict, body.StatusCode)
		assert.Equal(t, "User Ann ann@x.com already exists", body.Message)
		assert.Equal(t, "Conflict", body.Error)
	})

	t.Run("list users", func(t *testing.T) {
		resp, raw := f.do(t, http.MethodGet, "/users/getusers", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		list := decode[[]map[string]any](t, raw)
		require.Len(t, list, 1)
		assert.Equal(t, "ann@x.com", list[0]["email"])
	})
}

func TestController_SignupValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		field string
		value string
	}{
		{name: "missing name", field: "name", value: ""},
		{name: "bad email", field: "email", value: "not-an-email"},
		{name: "missing password", field: "password", value: ""},
		{name: "bad phone", field: "phone_number", value: "555-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := signupBody()
			body[tt.field] = tt.value

			resp, raw := f.do(t, http.MethodPost, "/users/signup", body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			res := decode[rest.ErrorResponse](t, raw)
			assert.Contains(t, res.Details, tt.field)
		})
	}
}

func TestController_SignupNormalizesPhoneNumber(t *testing.T) {
	f := newFixture(t)

	body := signupBody()
	body["phone_number"] = "(201) 555-0123"

	resp, raw := f.do(t, http.MethodPost, "/users/signup", body, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	token := decode[map[string]string](t, raw)["activation_token"]

	resp, raw = f.do(t, http.MethodPost, "/users/verify-otp", map[string]string{
		"activationToken": token,
		"activationCode":  f.outbox.code,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	assert.Equal(t, validPhone, decode[map[string]map[string]any](t, raw)["user"]["phone_number"])

	other := signupBody()
	other["email"] = "bob@x.com"
	other["name"] = "Bob"

	resp, raw = f.do(t, http.MethodPost, "/users/signup", other, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "User Bob "+validPhone+" already exists", decode[rest.ErrorResponse](t, raw).Message)
}

func TestController_SignupDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.outbox.err = errors.New("smtp down")

	resp, raw := f.do(t, http.MethodPost, "/users/signup", signupBody(), nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failed to deliver notification", decode[rest.ErrorResponse](t, raw).Message)
}

func TestController_VerifyOTPFailures(t *testing.T) {
	f := newFixture(t)

	resp, raw := f.do(t, http.MethodPost, "/users/signup", signupBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := decode[map[string]string](t, raw)["activation_token"]

	for _, wrong := range []string{"1000", "99999", "12ab", " " + f.outbox.code + "x"} {
		if wrong == f.outbox.code {
			continue
		}
		resp, raw = f.do(t, http.MethodPost, "/users/verify-otp", map[string]string{
			"activationToken": token,
			"activationCode":  wrong,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, wrong)
		assert.Equal(t, "invalid activation code", decode[rest.ErrorResponse](t, raw).Message, wrong)
	}

	resp, _ = f.do(t, http.MethodPost, "/users/verify-otp", map[string]string{
		"activationToken": "forged",
		"activationCode":  f.outbox.code,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/users/verify-otp", map[string]string{
		"activationToken": token,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestController_LoginFlow(t *testing.T) {
	f := newFixture(t)
	user := f.activate(t)

	t.Run("bad credentials are data", func(t *testing.T) {
		resp, raw := f.do(t, http.MethodPost, "/users/login", map[string]string{
			"email": "ann@x.com", "password": "nope",
		}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decode[map[string]any](t, raw)
		assert.Nil(t, body["user"])
		assert.Nil(t, body["accessToken"])
		assert.Nil(t, body["refreshToken"])
		assert.Equal(t, map[string]any{"message": accounts.LoginErrorMessage}, body["error"])
	})

	resp, raw := f.do(t, http.MethodPost, "/users/login", map[string]string{
		"email": "ann@x.com", "password": "pw123",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	login := decode[accounts.LoginResult](t, raw)
	require.NotNil(t, login.AccessToken)
	require.NotNil(t, login.RefreshToken)
	assert.Equal(t, user["id"], login.User.ID.String())

	t.Run("current user with access token", func(t *testing.T) {
		resp, raw := f.do(t, http.MethodGet, "/users/current-user", nil, map[string]string{
			"accesstoken":  *login.AccessToken,
			"refreshtoken": *login.RefreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

		who := decode[map[string]any](t, raw)
		assert.Equal(t, *login.AccessToken, who["accessToken"])
		assert.Equal(t, *login.RefreshToken, who["refreshToken"])
		assert.Equal(t, "ann@x.com", who["user"].(map[string]any)["email"])
	})

	t.Run("current user with bearer header", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/users/current-user", nil, map[string]string{
			"Authorization": "Bearer " + *login.AccessToken,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("current user rotates with refresh token", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/users/current-user", nil, map[string]string{
			"accesstoken":  "expired",
			"refreshtoken": *login.RefreshToken,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		rotated := resp.Header.Get("accesstoken")
		require.NotEmpty(t, rotated)
		claims, err := f.tokens.VerifyAccess(rotated)
		require.NoError(t, err)
		assert.Equal(t, user["id"], claims.UserID())
	})

	t.Run("current user without tokens", func(t *testing.T) {
		resp, raw := f.do(t, http.MethodGet, "/users/current-user", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "please login to access this resource", decode[rest.ErrorResponse](t, raw).Message)
	})

	t.Run("logout", func(t *testing.T) {
		for _, headers := range []map[string]string{
			{"accesstoken": *login.AccessToken},
			nil,
		} {
			resp, raw := f.do(t, http.MethodGet, "/users/logout", nil, headers)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, accounts.LogoutMessage, decode[map[string]string](t, raw)["message"])
		}
	})
}

func TestController_Hello(t *testing.T) {
	f := newFixture(t)

	resp, raw := f.do(t, http.MethodGet, "/users", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello world", string(raw))
}

func TestNewErrorResponse(t *testing.T) {
	res := rest.NewErrorResponse(errors.New("dial tcp: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "internal server error", res.Message)

	res = rest.NewErrorResponse(fiber.NewError(http.StatusNotFound, "Cannot GET /nope"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Cannot GET /nope", res.Message)

	res = rest.NewErrorResponse(accounts.ErrInvalidToken)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid or expired token", res.Message)
}
