package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrMissingSecret = errors.New("JWT_SECRET is required")

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Engine   EngineConfig   `yaml:"engine"`
}

type HTTPConfig struct {
	Port       string        `yaml:"port"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type DatabaseConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type AuthConfig struct {
	JWTSecret string        `yaml:"-"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// EngineConfig tunes streak and overdue evaluation.
type EngineConfig struct {
	Timezone         string        `yaml:"timezone"`
	OverdueBucket    time.Duration `yaml:"overdue_bucket"`
	HabitCacheTTL    time.Duration `yaml:"habit_cache_ttl"`
	QueueSize        int           `yaml:"queue_size"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	SweepConcurrency int           `yaml:"sweep_concurrency"`
	StreakAttempts   int           `yaml:"streak_attempts"`
	FreezeAttempts   int           `yaml:"freeze_attempts"`
	SeverityChannel  string        `yaml:"severity_channel"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:       "8080",
			RateLimit:  100,
			RateWindow: time.Minute,
		},
		Database: DatabaseConfig{
			User:    "kanso_user",
			Host:    "localhost",
			Port:    "5432",
			Name:    "kanso_db",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     "6379",
			PoolSize: 10,
		},
		Auth: AuthConfig{
			Issuer:   "kanso-streak-engine",
			TokenTTL: 72 * time.Hour,
		},
		Engine: EngineConfig{
			Timezone:         "Local",
			OverdueBucket:    time.Minute,
			HabitCacheTTL:    30 * time.Minute,
			QueueSize:        100,
			SweepInterval:    15 * time.Minute,
			SweepConcurrency: 4,
			StreakAttempts:   3,
			FreezeAttempts:   5,
			SeverityChannel:  "severity",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by KANSO_CONFIG_FILE, and finally the environment. envFiles are loaded
// with godotenv first; missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := Default()

	if path := os.Getenv("KANSO_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)

	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnv("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getEnv("JWT_ISSUER", c.Auth.Issuer)

	c.Engine.Timezone = getEnv("KANSO_TIMEZONE", c.Engine.Timezone)
	c.Engine.SeverityChannel = getEnv("KANSO_SEVERITY_CHANNEL", c.Engine.SeverityChannel)

	var err error
	if c.Redis.Enabled, err = getBool("REDIS_ENABLED", c.Redis.Enabled); err != nil {
		return err
	}
	if c.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", c.Redis.PoolSize); err != nil {
		return err
	}
	if c.Redis.DB, err = getInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.HTTP.RateLimit, err = getInt("RATE_LIMIT", c.HTTP.RateLimit); err != nil {
		return err
	}
	if c.Auth.TokenTTL, err = getDuration("JWT_TTL", c.Auth.TokenTTL); err != nil {
		return err
	}
	if c.Engine.SweepInterval, err = getDuration("KANSO_SWEEP_INTERVAL", c.Engine.SweepInterval); err != nil {
		return err
	}
	if c.Engine.QueueSize, err = getInt("KANSO_QUEUE_SIZE", c.Engine.QueueSize); err != nil {
		return err
	}
	if c.Engine.StreakAttempts, err = getInt("KANSO_STREAK_ATTEMPTS", c.Engine.StreakAttempts); err != nil {
		return err
	}
	if c.Engine.FreezeAttempts, err = getInt("KANSO_FREEZE_ATTEMPTS", c.Engine.FreezeAttempts); err != nil {
		return err
	}
	return nil
}

// Validate checks what the HTTP server needs beyond Load.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingSecret
	}
	return nil
}

// Location resolves the timezone used to compute "today".
func (c *Config) Location() (*time.Location, error) {
	if c.Engine.Timezone == "" || c.Engine.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Engine.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
