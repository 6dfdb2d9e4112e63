package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	StoreDriver    string        `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	JWTSecret      string        `envconfig:"JWT_SECRET"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"text"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`

	RegistrationTimeout   time.Duration `envconfig:"REGISTRATION_TIMEOUT" default:"5s"`
	DeregistrationTimeout time.Duration `envconfig:"DEREGISTRATION_TIMEOUT" default:"2s"`
	StoreConcurrency      int64         `envconfig:"STORE_CONCURRENCY" default:"32"`
	StoreTimeout          time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	SendBufferSize        int           `envconfig:"SEND_BUFFER_SIZE" default:"256"`
	MaxFrameBytes         int64         `envconfig:"MAX_FRAME_BYTES" default:"8388608"`
	PresenceTTL           time.Duration `envconfig:"PRESENCE_TTL" default:"2m"`

	MediaDir     string `envconfig:"MEDIA_DIR" default:"./media"`
	MediaBaseURL string `envconfig:"MEDIA_BASE_URL" default:"/media/"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads .env.local, then .env, then the process environment. Values
// already set in the environment win over the files.
func Load() (Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			logrus.Debug(".env not found, using environment variables")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.RegistrationTimeout <= 0 || c.DeregistrationTimeout <= 0 || c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	// Leases are renewed once per ping period (54s).
	if c.PresenceTTL <= time.Minute {
		errs = append(errs, errors.New("PRESENCE_TTL must be longer than one minute"))
	}
	if c.StoreConcurrency <= 0 {
		errs = append(errs, errors.New("STORE_CONCURRENCY must be positive"))
	}
	if c.SendBufferSize < 64 {
		errs = append(errs, errors.New("SEND_BUFFER_SIZE must hold at least 64 events"))
	}
	if c.MaxFrameBytes <= 0 {
		errs = append(errs, errors.New("MAX_FRAME_BYTES must be positive"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
