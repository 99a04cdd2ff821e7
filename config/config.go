// Package config loads service settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-accounts"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	NotifierLog  = "log"
	NotifierSMTP = "smtp"
	NotifierAMQP = "amqp"
)

// Config is the service configuration
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":5000"`
	Debug    bool   `env:"DEBUG" envDefault:"false"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN      string `env:"DB_DSN" envDefault:"file:accounts.db?cache=shared"`
	IDStrategy string `env:"ID_STRATEGY" envDefault:"uuid"`

	ActivationSecret string        `env:"ACTIVATION_TOKEN_SECRET"`
	AccessSecret     string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshSecret    string        `env:"REFRESH_TOKEN_SECRET"`
	ActivationTTL    time.Duration `env:"ACTIVATION_TOKEN_TTL" envDefault:"5m"`
	AccessTTL        time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL       time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"72h"`
	TokenIssuer      string        `env:"TOKEN_ISSUER"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`

	Notifier       string `env:"NOTIFIER" envDefault:"log"`
	SMTPHost       string `env:"SMTP_HOST"`
	SMTPPort       int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser       string `env:"SMTP_USER"`
	SMTPPass       string `env:"SMTP_PASS"`
	SMTPFrom       string `env:"SMTP_FROM"`
	AMQPURL        string `env:"AMQP_URL"`
	AMQPExchange   string `env:"AMQP_EXCHANGE" envDefault:"accounts.notifications"`
	AMQPRoutingKey string `env:"AMQP_ROUTING_KEY" envDefault:"email.send"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	PhoneRegion     string `env:"PHONE_REGION" envDefault:"US"`
	SignupRateLimit int    `env:"SIGNUP_RATE_LIMIT" envDefault:"10"`
}

// Load reads the given .env files, or ".env" when none is given, then parses
// and validates the environment. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.DBDriver, validation.Required, validation.In(accounts.DriverSQLite, accounts.DriverPostgres)),
		validation.Field(&c.DBDSN, validation.Required),
		validation.Field(&c.IDStrategy, validation.In(string(accounts.IDStrategyUUID), string(accounts.IDStrategyHashid))),
		validation.Field(&c.BcryptCost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
		validation.Field(&c.Notifier, validation.Required, validation.In(NotifierLog, NotifierSMTP, NotifierAMQP)),
		validation.Field(&c.SMTPPort, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.LogFormat, validation.In("json", "console")),
		validation.Field(&c.SignupRateLimit, validation.Min(0)),
	)
	if err != nil {
		return err
	}

	switch c.GetNotifier() {
	case NotifierSMTP:
		if strings.TrimSpace(c.SMTPHost) == "" {
			return errors.New("SMTP_HOST is required when NOTIFIER=smtp")
		}
	case NotifierAMQP:
		if strings.TrimSpace(c.AMQPURL) == "" {
			return errors.New("AMQP_URL is required when NOTIFIER=amqp")
		}
	}

	if c.ActivationTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("activation and refresh token lifetimes must be positive")
	}

	return c.TokenConfig().Validate()
}

// TokenConfig returns the token issuer settings
func (c Config) TokenConfig() accounts.TokenConfig {
	return accounts.TokenConfig{
		ActivationSecret: c.ActivationSecret,
		AccessSecret:     c.AccessSecret,
		RefreshSecret:    c.RefreshSecret,
		ActivationTTL:    c.ActivationTTL,
		AccessTTL:        c.AccessTTL,
		RefreshTTL:       c.RefreshTTL,
		Issuer:           c.TokenIssuer,
	}
}

func (c Config) GetHTTPAddr() string {
	return c.HTTPAddr
}

func (c Config) GetDBDriver() string {
	return strings.ToLower(c.DBDriver)
}

func (c Config) GetIDStrategy() accounts.IDStrategy {
	return accounts.IDStrategy(c.IDStrategy)
}

func (c Config) GetNotifier() string {
	return strings.ToLower(c.Notifier)
}

func (c Config) GetPhoneRegion() string {
	return strings.ToUpper(c.PhoneRegion)
}

// Redacted returns a copy safe to print
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.ActivationSecret = mask(c.ActivationSecret)
	c.AccessSecret = mask(c.AccessSecret)
	c.RefreshSecret = mask(c.RefreshSecret)
	c.SMTPPass = mask(c.SMTPPass)
	if c.AMQPURL != "" {
		c.AMQPURL = mask(c.AMQPURL)
	}
	return c
}
