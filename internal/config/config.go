// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every environment variable name.
const Prefix = "DQ_"

// Notification transports
const (
	TransportHTTP    = "http"
	TransportWebPush = "webpush"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	DBPath    string `env:"DB_PATH" envDefault:"dailyquestion.db"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// AdminToken guards /admin routes; empty disables them.
	AdminToken string `env:"ADMIN_TOKEN"`

	FamilyServiceURL       string        `env:"FAMILY_SERVICE_URL" envDefault:"http://localhost:8081"`
	NotificationServiceURL string        `env:"NOTIFICATION_SERVICE_URL" envDefault:"http://localhost:8082"`
	GatewayTimeout         time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"5s"`

	ProgressionCron     string `env:"PROGRESSION_CRON" envDefault:"0 9 * * *"`
	ProgressionTimezone string `env:"PROGRESSION_TIMEZONE" envDefault:"Asia/Seoul"`
	ProgressionWorkers  int    `env:"PROGRESSION_WORKERS" envDefault:"8"`
	ProgressionPageSize int    `env:"PROGRESSION_PAGE_SIZE" envDefault:"500"`
	CompletionReward    int    `env:"COMPLETION_REWARD" envDefault:"10"`
	EmptyRosterPolicy   string `env:"EMPTY_ROSTER_POLICY" envDefault:"complete"`

	OutboxBatchSize   int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxMaxAttempts int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"8"`
	OutboxBaseDelay   time.Duration `env:"OUTBOX_BASE_DELAY" envDefault:"30s"`
	OutboxMaxDelay    time.Duration `env:"OUTBOX_MAX_DELAY" envDefault:"6h"`
	OutboxInterval    time.Duration `env:"OUTBOX_INTERVAL" envDefault:"1m"`

	NotifyTransport string `env:"NOTIFY_TRANSPORT" envDefault:"http"`
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT" envDefault:"mailto:admin@localhost"`

	KnockBurst    int           `env:"KNOCK_BURST" envDefault:"5"`
	KnockInterval time.Duration `env:"KNOCK_INTERVAL" envDefault:"1m"`
}

// Load reads an optional .env file and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ProgressionWorkers < 1 {
		return fmt.Errorf("%sPROGRESSION_WORKERS must be at least 1", Prefix)
	}
	if c.ProgressionPageSize < 1 {
		return fmt.Errorf("%sPROGRESSION_PAGE_SIZE must be at least 1", Prefix)
	}
	if _, err := time.LoadLocation(c.ProgressionTimezone); err != nil {
		return fmt.Errorf("%sPROGRESSION_TIMEZONE: %w", Prefix, err)
	}
	switch c.NotifyTransport {
	case TransportHTTP:
	case TransportWebPush:
		if c.VAPIDPublicKey == "" || c.VAPIDPrivateKey == "" {
			return fmt.Errorf("%sNOTIFY_TRANSPORT=webpush requires VAPID keys", Prefix)
		}
	default:
		return fmt.Errorf("%sNOTIFY_TRANSPORT: unknown transport %q", Prefix, c.NotifyTransport)
	}
	return nil
}

// Location returns the time zone the progression schedule runs in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ProgressionTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
