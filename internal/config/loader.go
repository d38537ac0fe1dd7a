package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is prepended to every environment override, e.g. MOVIENIGHT_SERVER_ADDR.
const EnvPrefix = "MOVIENIGHT_"

// ConfigPathEnv names the environment variable that points at an optional YAML file.
const ConfigPathEnv = "MOVIENIGHT_CONFIG"

// Config captures the movienight service configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Session      SessionConfig      `koanf:"session"`
	Log          LogConfig          `koanf:"log"`
	Schedule     ScheduleConfig     `koanf:"schedule"`
	Integrations IntegrationsConfig `koanf:"integrations"`
	Cache        CacheConfig        `koanf:"cache"`
}

type ServerConfig struct {
	Addr               string        `koanf:"addr"`
	ReadTimeout        time.Duration `koanf:"read_timeout"`
	WriteTimeout       time.Duration `koanf:"write_timeout"`
	IdleTimeout        time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
	AllowedOrigins     []string      `koanf:"allowed_origins"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute"`
	SecureCookies      bool          `koanf:"secure_cookies"`
}

type DatabaseConfig struct {
	Path         string        `koanf:"path"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	BusyTimeout  time.Duration `koanf:"busy_timeout"`
}

type SessionConfig struct {
	TTL      time.Duration `koanf:"ttl"`
	GuestTTL time.Duration `koanf:"guest_ttl"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ScheduleConfig struct {
	Timezone            string        `koanf:"timezone"`
	MaintenanceInterval time.Duration `koanf:"maintenance_interval"`
}

// Location resolves the configured time zone, falling back to UTC.
func (s ScheduleConfig) Location() *time.Location {
	if strings.TrimSpace(s.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type IntegrationsConfig struct {
	BreakerCooldown       time.Duration `koanf:"breaker_cooldown"`
	RequestTimeout        time.Duration `koanf:"request_timeout"`
	TMDBTimeout           time.Duration `koanf:"tmdb_timeout"`
	TMDBRequestsPerSecond float64       `koanf:"tmdb_requests_per_second"`
	PlexClientID          string        `koanf:"plex_client_id"`
	PlexProduct           string        `koanf:"plex_product"`
}

type CacheConfig struct {
	Dir      string        `koanf:"dir"`
	InMemory bool          `koanf:"in_memory"`
	TTL      time.Duration `koanf:"ttl"`
}

// Defaults returns the configuration used when nothing overrides a value.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:               ":8080",
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       30 * time.Second,
			IdleTimeout:        60 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			RateLimitPerMinute: 300,
		},
		Database: DatabaseConfig{
			Path:         "movienight.db",
			MaxOpenConns: 4,
			BusyTimeout:  5 * time.Second,
		},
		Session: SessionConfig{
			TTL:      30 * 24 * time.Hour,
			GuestTTL: 48 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Schedule: ScheduleConfig{
			Timezone:            "UTC",
			MaintenanceInterval: time.Hour,
		},
		Integrations: IntegrationsConfig{
			BreakerCooldown:       5 * time.Minute,
			RequestTimeout:        3 * time.Second,
			TMDBTimeout:           10 * time.Second,
			TMDBRequestsPerSecond: 4,
			PlexProduct:           "Movie Night",
		},
		Cache: CacheConfig{
			Dir: "cache/images",
			TTL: 7 * 24 * time.Hour,
		},
	}
}

// Load layers defaults, an optional YAML file and MOVIENIGHT_* environment
// variables, then validates the result.
//
// path overrides MOVIENIGHT_CONFIG. A missing file is only an error when a
// path was given explicitly.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	splitListField(k, "server.allowed_origins")

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps MOVIENIGHT_SERVER_RATE_LIMIT_PER_MINUTE to server.rate_limit_per_minute.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}

func splitListField(k *koanf.Koanf, key string) {
	raw, ok := k.Get(key).(string)
	if !ok {
		return
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	_ = k.Set(key, values)
}

// Validate reports missing and invalid settings using their environment names.
func (c Config) Validate() error {
	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if strings.TrimSpace(c.Server.Addr) == "" {
		missing = append(missing, EnvPrefix+"SERVER_ADDR")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		missing = append(missing, EnvPrefix+"DATABASE_PATH")
	}

	if c.Server.RateLimitPerMinute < 0 {
		invalid = append(invalid, EnvPrefix+"SERVER_RATE_LIMIT_PER_MINUTE")
	}
	if c.Database.MaxOpenConns < 0 {
		invalid = append(invalid, EnvPrefix+"DATABASE_MAX_OPEN_CONNS")
	}
	if c.Session.TTL <= 0 {
		invalid = append(invalid, EnvPrefix+"SESSION_TTL")
	}
	if c.Session.GuestTTL <= 0 {
		invalid = append(invalid, EnvPrefix+"SESSION_GUEST_TTL")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console", "auto":
	default:
		invalid = append(invalid, EnvPrefix+"LOG_FORMAT")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		invalid = append(invalid, EnvPrefix+"SCHEDULE_TIMEZONE")
	}
	if c.Schedule.MaintenanceInterval <= 0 {
		invalid = append(invalid, EnvPrefix+"SCHEDULE_MAINTENANCE_INTERVAL")
	}
	if c.Integrations.BreakerCooldown <= 0 {
		invalid = append(invalid, EnvPrefix+"INTEGRATIONS_BREAKER_COOLDOWN")
	}
	if c.Integrations.RequestTimeout <= 0 {
		invalid = append(invalid, EnvPrefix+"INTEGRATIONS_REQUEST_TIMEOUT")
	}
	if c.Integrations.TMDBTimeout <= 0 {
		invalid = append(invalid, EnvPrefix+"INTEGRATIONS_TMDB_TIMEOUT")
	}
	if c.Integrations.TMDBRequestsPerSecond <= 0 {
		invalid = append(invalid, EnvPrefix+"INTEGRATIONS_TMDB_REQUESTS_PER_SECOND")
	}
	if !c.Cache.InMemory && strings.TrimSpace(c.Cache.Dir) == "" {
		missing = append(missing, EnvPrefix+"CACHE_DIR")
	}

	if len(missing) > 0 {
		return fmt.Errorf("required settings are missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("settings have invalid values: %s", strings.Join(invalid, ", "))
	}
	return nil
}
