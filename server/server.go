// Package server assembles the fiber application serving REST, GraphQL,
// metrics and health endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/gql"
	"github.com/goliatone/go-accounts/logging"
	"github.com/goliatone/go-accounts/metrics"
	"github.com/goliatone/go-accounts/middleware/jwtware"
	"github.com/goliatone/go-accounts/rest"
	"github.com/goliatone/go-router"
)

// Pinger reports whether the store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Service is what the transports need from the lifecycle service
type Service interface {
	rest.AccountService
	gql.AccountService
}

type Options struct {
	Service         Service
	Logger          accounts.Logger
	Metrics         *metrics.Metrics
	DB              Pinger
	PhoneRegion     string
	SignupRateLimit int
	Debug           bool
}

// New builds the application. Request id, logging, metrics and rate limits
// are fiber middleware on the wrapped app; every route goes through the
// router.
func New(opts Options) *fiber.App {
	controller := rest.NewController(opts.Service,
		rest.WithLogger(opts.Logger),
		rest.WithDebug(opts.Debug),
		rest.WithPhoneRegion(opts.PhoneRegion),
	)

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app := fiber.New(fiber.Config{
			AppName:               "accounts",
			DisableStartupMessage: true,
			ErrorHandler:          rest.ErrorHandler(opts.Logger),
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          15 * time.Second,
		})

		app.Use(recover.New())
		app.Use(requestid.New())
		if opts.Logger != nil {
			app.Use(logging.RequestLogger(opts.Logger))
		}
		if opts.Metrics != nil {
			app.Use(opts.Metrics.Middleware())
			app.Get("/metrics", opts.Metrics.Handler())
		}
		if opts.SignupRateLimit > 0 {
			app.Use(signupLimiter(controller.SignupPath(), opts.SignupRateLimit))
		}

		return app
	})

	r := srv.Router()

	r.Get("/healthz", health(opts.DB)).SetName("healthz")

	rest.RegisterRoutes(r, controller)

	schema := gql.NewSchema(opts.Service, opts.PhoneRegion, opts.Logger)
	r.Post("/graphql", gql.Handler(schema), jwtware.New(jwtware.Config{
		Authenticator:       opts.Service,
		Optional:            true,
		ExposeRotatedTokens: true,
		ErrorHandler:        rest.PassError,
	})).SetName("graphql")

	return srv.WrappedRouter()
}

// signupLimiter caps signup attempts per client and leaves every other
// route alone
func signupLimiter(path string, limit int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() != fiber.MethodPost || c.Path() != path
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many signup attempts, try again later")
		},
	})
}

func health(db Pinger) router.HandlerFunc {
	return func(ctx router.Context) error {
		if db != nil {
			pingCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(pingCtx); err != nil {
				return ctx.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			}
		}
		return ctx.JSON(router.StatusOK, map[string]any{"status": "ok"})
	}
}
