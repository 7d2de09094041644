// Package config loads the service configuration from the environment.
// A .env file in the working directory is honoured when present.
package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // zone data for hosts without a system database

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/emigresto/meal-reservation/internal/calendar"
	"github.com/emigresto/meal-reservation/internal/database"
)

// Config holds all runtime configuration values.
type Config struct {
	Env      string `env:"APP_ENV"      envDefault:"dev"`
	Port     string `env:"APP_PORT"     envDefault:"8080"`
	Timezone string `env:"APP_TIMEZONE" envDefault:"Africa/Dakar"`

	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`

	DB        DBConfig
	Booking   BookingConfig
	Sweeper   SweeperConfig
	Events    EventsConfig
	Log       LogConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig

	location *time.Location
}

// DBConfig selects and addresses the relational store.
type DBConfig struct {
	Driver     string `env:"DB_DRIVER"   envDefault:"mysql"`
	User       string `env:"DB_USER"     envDefault:"root"`
	Pass       string `env:"DB_PASS"`
	Host       string `env:"DB_HOST"     envDefault:"127.0.0.1"`
	Port       string `env:"DB_PORT"     envDefault:"3306"`
	Name       string `env:"DB_NAME"     envDefault:"meals"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"meals.db"`
}

// Options converts the settings into database.Open options.
func (c DBConfig) Options() database.Options {
	return database.Options{
		Driver:     database.Driver(c.Driver),
		User:       c.User,
		Pass:       c.Pass,
		Host:       c.Host,
		Port:       c.Port,
		Name:       c.Name,
		SQLitePath: c.SQLitePath,
	}
}

// BookingConfig tunes the booking policy.
type BookingConfig struct {
	SameDayCutoff  string `env:"BOOKING_SAME_DAY_CUTOFF"  envDefault:"11:00"`
	MaxAdvanceDays int    `env:"BOOKING_MAX_ADVANCE_DAYS" envDefault:"14"`

	cutoff time.Duration
}

// Cutoff is the parsed same-day cutoff as an offset from midnight.
func (c BookingConfig) Cutoff() time.Duration { return c.cutoff }

// SweeperConfig controls the periodic expiry sweep.
type SweeperConfig struct {
	Enabled   bool          `env:"SWEEPER_ENABLED"    envDefault:"true"`
	Interval  time.Duration `env:"SWEEPER_INTERVAL"   envDefault:"1h"`
	BatchSize int           `env:"SWEEPER_BATCH_SIZE" envDefault:"200"`
	LockTTL   time.Duration `env:"SWEEPER_LOCK_TTL"   envDefault:"5m"`
}

// EventsConfig controls reservation event publishing and the audit consumer.
type EventsConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	Enabled         bool   `env:"EVENTS_ENABLED"          envDefault:"false"`
	ConsumerEnabled bool   `env:"EVENTS_CONSUMER_ENABLED" envDefault:"false"`
	LogDir          string `env:"EVENTS_LOG_DIR"          envDefault:"logs"`
}

// LogConfig configures the logrus logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Location is the time zone every calendar computation runs in.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads an optional .env file, then parses and validates the
// environment into a Config.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv parses the current process environment without touching .env.
func FromEnv() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Events.URL == "" {
		cfg.Events.URL = os.Getenv("AMQP_URL")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("APP_TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	cutoff, err := calendar.ParseClock(cfg.Booking.SameDayCutoff)
	if err != nil {
		return Config{}, fmt.Errorf("BOOKING_SAME_DAY_CUTOFF: %w", err)
	}
	cfg.Booking.cutoff = cutoff

	switch database.Driver(cfg.DB.Driver) {
	case database.DriverMySQL, database.DriverSQLite:
	default:
		return Config{}, fmt.Errorf("DB_DRIVER %q: want mysql or sqlite", cfg.DB.Driver)
	}
	if cfg.Sweeper.Interval <= 0 {
		return Config{}, fmt.Errorf("SWEEPER_INTERVAL must be positive")
	}
	if cfg.Sweeper.BatchSize < 1 {
		cfg.Sweeper.BatchSize = 200
	}

	cfg.RateLimit.normalize()
	cfg.Cache.normalize()
	return cfg, nil
}
