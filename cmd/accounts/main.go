package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/logging"
	"github.com/goliatone/go-accounts/metrics"
	"github.com/goliatone/go-accounts/notifier"
	"github.com/goliatone/go-accounts/server"
	"github.com/goliatone/go-print"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, "accounts:", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Debug {
		logger.Debug("configuration loaded", "config", print.MaybePrettyJSON(cfg.Redacted()))
	}

	db, err := accounts.OpenDB(cfg.GetDBDriver(), cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	manager := accounts.NewRepositoryManager(db, accounts.WithIDStrategy(cfg.GetIDStrategy()))
	manager.MustValidate()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Migrate(ctx); err != nil {
		return err
	}

	tokens, err := accounts.NewTokenService(cfg.TokenConfig(), accounts.WithTokenLogger(logger.Named("tokens")))
	if err != nil {
		return err
	}

	mailer, closeMailer, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeMailer()

	m := metrics.New()

	service := accounts.NewAccountService(manager.Accounts(), tokens, mailer,
		accounts.WithHasher(accounts.NewBcryptHasher(cfg.BcryptCost)),
		accounts.WithLogger(logger.Named("service")),
		accounts.WithActivitySink(accounts.MultiActivitySink{
			m,
			logging.ActivitySink(logger.Named("activity")),
		}),
	)

	app := server.New(server.Options{
		Service:         service,
		Logger:          logger.Named("http"),
		Metrics:         m,
		DB:              db,
		PhoneRegion:     cfg.GetPhoneRegion(),
		SignupRateLimit: cfg.SignupRateLimit,
		Debug:           cfg.Debug,
	})

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.GetHTTPAddr(), "notifier", cfg.GetNotifier(), "driver", cfg.GetDBDriver())
		errc <- app.Listen(cfg.GetHTTPAddr())
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func newNotifier(cfg *config.Config, logger *logging.ZapLogger) (accounts.Notifier, func(), error) {
	switch cfg.GetNotifier() {
	case config.NotifierSMTP:
		return notifier.NewSMTPNotifier(notifier.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		}), func() {}, nil
	case config.NotifierAMQP:
		n, err := notifier.DialAMQP(cfg.AMQPURL,
			notifier.WithExchange(cfg.AMQPExchange, cfg.AMQPRoutingKey),
			notifier.WithAMQPLogger(logger.Named("amqp")),
		)
		if err != nil {
			return nil, nil, err
		}
		return n, func() { _ = n.Close() }, nil
	default:
		return notifier.NewLogNotifier(logger.Named("notifier")), func() {}, nil
	}
}
