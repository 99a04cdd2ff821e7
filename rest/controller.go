package rest

import (
	"context"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/middleware/jwtware"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// AccountService is the lifecycle the controller exposes
type AccountService interface {
	jwtware.Authenticator
	Register(ctx context.Context, input accounts.RegisterInput) (*accounts.RegisterResult, error)
	Activate(ctx context.Context, input accounts.ActivateInput) (*accounts.Account, error)
	Login(ctx context.Context, email, password string) (*accounts.LoginResult, error)
	Logout(ctx context.Context, session *accounts.Session) accounts.LogoutResult
	WhoAmI(ctx context.Context, session *accounts.Session) accounts.WhoAmIResult
	ListAccounts(ctx context.Context) ([]*accounts.Account, error)
}

type ControllerRoutes struct {
	Base        string
	Signup      string
	VerifyOTP   string
	Login       string
	Logout      string
	Users       string
	CurrentUser string
}

type Controller struct {
	Debug       bool
	Logger      accounts.Logger
	Service     AccountService
	Routes      *ControllerRoutes
	PhoneRegion string
	sessionKey  string
}

type ControllerOption func(*Controller)

func WithLogger(logger accounts.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func WithDebug(debug bool) ControllerOption {
	return func(c *Controller) {
		c.Debug = debug
	}
}

func WithPhoneRegion(region string) ControllerOption {
	return func(c *Controller) {
		if region != "" {
			c.PhoneRegion = region
		}
	}
}

func NewController(service AccountService, opts ...ControllerOption) *Controller {
	c := &Controller{
		Service:     service,
		Logger:      nopLogger{},
		PhoneRegion: accounts.DefaultPhoneRegion,
		sessionKey:  "session",
		Routes: &ControllerRoutes{
			Base:        "/users",
			Signup:      "/signup",
			VerifyOTP:   "/verify-otp",
			Login:       "/login",
			Logout:      "/logout",
			Users:       "/getusers",
			CurrentUser: "/current-user",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// SignupPath is the full path of the signup route
func (a *Controller) SignupPath() string {
	return a.Routes.Base + a.Routes.Signup
}

// RegisterRoutes mounts the account routes of controller on app
func RegisterRoutes[T any](app router.Router[T], controller *Controller) {
	requireSession := jwtware.New(jwtware.Config{
		Authenticator:       controller.Service,
		ContextKey:          controller.sessionKey,
		ExposeRotatedTokens: true,
		ErrorHandler:        PassError,
	})

	optionalSession := jwtware.New(jwtware.Config{
		Authenticator: controller.Service,
		ContextKey:    controller.sessionKey,
		Optional:      true,
		ErrorHandler:  PassError,
	})

	users := app.Group(controller.Routes.Base)

	users.Post(controller.Routes.Signup, controller.Signup).SetName("users.signup")
	users.Post(controller.Routes.VerifyOTP, controller.VerifyOTP).SetName("users.verify-otp")
	users.Post(controller.Routes.Login, controller.Login).SetName("users.login")
	users.Get(controller.Routes.Logout, controller.Logout, optionalSession).SetName("users.logout")
	users.Get(controller.Routes.Users, controller.ListUsers).SetName("users.list")
	users.Get(controller.Routes.CurrentUser, controller.CurrentUser, requireSession).SetName("users.current")
	users.Get("/", controller.Hello).SetName("users.hello")
}

// PassError is a jwtware error handler that leaves the response to the
// app error handler
func PassError(_ router.Context, err error) error {
	return err
}

// SignupRequest is the signup payload
type SignupRequest struct {
	Name        string `json:"name" form:"name"`
	Email       string `json:"email" form:"email"`
	Password    string `json:"password" form:"password"`
	PhoneNumber string `json:"phone_number" form:"phone_number"`
}

func (r SignupRequest) validate(region string) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&r.PhoneNumber, validation.Required, accounts.PhoneNumberRule(region)),
	)
}

// VerifyOTPRequest is the activation payload
type VerifyOTPRequest struct {
	ActivationToken string `json:"activationToken" form:"activationToken"`
	ActivationCode  string `json:"activationCode" form:"activationCode"`
}

func (r VerifyOTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ActivationToken, validation.Required),
		validation.Field(&r.ActivationCode, validation.Required),
	)
}

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *Controller) Signup(ctx router.Context) error {
	payload := new(SignupRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("signup parse payload", "error", err)
		return accounts.NewValidationMessage("failed to parse request body")
	}

	payload.Email = strings.TrimSpace(payload.Email)
	payload.PhoneNumber = strings.TrimSpace(payload.PhoneNumber)

	if err := payload.validate(a.PhoneRegion); err != nil {
		return accounts.NewValidationError(err)
	}

	payload.PhoneNumber = accounts.FormatPhoneE164(payload.PhoneNumber, a.PhoneRegion)

	if a.Debug {
		a.Logger.Debug("signup payload", "email", payload.Email, "phone_number", payload.PhoneNumber)
	}

	res, err := a.Service.Register(ctx.Context(), accounts.RegisterInput{
		Name:        payload.Name,
		Email:       payload.Email,
		Password:    payload.Password,
		PhoneNumber: payload.PhoneNumber,
	})
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, res)
}

func (a *Controller) VerifyOTP(ctx router.Context) error {
	payload := new(VerifyOTPRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("verify otp parse payload", "error", err)
		return accounts.NewValidationMessage("failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return accounts.NewValidationError(err)
	}

	account, err := a.Service.Activate(ctx.Context(), accounts.ActivateInput{
		ActivationToken: payload.ActivationToken,
		ActivationCode:  payload.ActivationCode,
	})
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"user": account,
	})
}

func (a *Controller) Login(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return accounts.NewValidationMessage("failed to parse request body")
	}

	if err := payload.Validate(); err != nil {
		return accounts.NewValidationError(err)
	}

	res, err := a.Service.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return err
	}

	if a.Debug {
		a.Logger.Debug("login result", "result", print.MaybePrettyJSON(map[string]any{
			"user":  res.User,
			"error": res.Error,
		}))
	}

	return ctx.JSON(http.StatusCreated, res)
}

func (a *Controller) Logout(ctx router.Context) error {
	session, _ := jwtware.SessionFromLocals(ctx, a.sessionKey)
	return ctx.JSON(router.StatusOK, a.Service.Logout(ctx.Context(), session))
}

func (a *Controller) CurrentUser(ctx router.Context) error {
	session, ok := jwtware.SessionFromLocals(ctx, a.sessionKey)
	if !ok || !session.IsAuthenticated() {
		return accounts.ErrUnauthenticated
	}
	return ctx.JSON(router.StatusOK, a.Service.WhoAmI(ctx.Context(), session))
}

func (a *Controller) ListUsers(ctx router.Context) error {
	list, err := a.Service.ListAccounts(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, list)
}

func (a *Controller) Hello(ctx router.Context) error {
	return ctx.SendString("Hello world")
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
