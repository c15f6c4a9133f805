package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseURIKey is the environment variable holding the main database
// connection URI.
const DatabaseURIKey = "MAIN_DB_URI"

// DefaultDatabaseURI is written into the environment when MAIN_DB_URI is
// unset. It is relative to the working directory.
const DefaultDatabaseURI = "sqlite:///rems.db"

const (
	defaultAppHost         = "127.0.0.1"
	defaultAppPort         = "5000"
	defaultAppEnv          = "local"
	defaultRateBurst       = "20"
	defaultCORSOrigins     = "*"
	defaultReadTimeout     = "15s"
	defaultWriteTimeout    = "15s"
	defaultShutdownTimeout = "10s"
)

const (
	appConfigPath = "config/app.json"
	dotEnvPath    = ".env"
)

var (
	loadOnce sync.Once
	loadErr  error

	mu     sync.RWMutex
	values = defaultValues()
)

// Config is the process configuration, resolved once at startup.
type Config struct {
	DatabaseURI string

	Host  string
	Port  int
	Debug bool
	Env   string

	LogLevel string

	RedisAddr     string
	RedisPassword string

	RateLimit  float64
	RateBurst  int
	TrustProxy bool

	CORSOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the host:port the HTTP listener binds to.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsProduction reports whether APP_ENV names a production environment.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "production", "prod":
		return true
	}
	return false
}

// Load reads .env and config/app.json from the working directory. It runs
// at most once per process. Missing files are ignored.
func Load() error {
	loadOnce.Do(func() {
		loadErr = loadFromFiles(appConfigPath, dotEnvPath)
	})
	return loadErr
}

// EnsureDatabaseURI makes sure MAIN_DB_URI is set in the process
// environment and returns the effective value. A value already in the
// environment is left untouched. Otherwise the value from config/app.json is
// exported, or DefaultDatabaseURI when neither layer has one. Whitespace-only
// values count as unset, as they do in Get.
func EnsureDatabaseURI() string {
	if v := strings.TrimSpace(os.Getenv(DatabaseURIKey)); v != "" {
		return v
	}
	v := Get(DatabaseURIKey, DefaultDatabaseURI)
	os.Setenv(DatabaseURIKey, v) //nolint:errcheck
	return v
}

// FromEnv resolves a Config from the process environment, falling back to
// config/app.json values and then built-in defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURI:   Get(DatabaseURIKey, DefaultDatabaseURI),
		Host:          Get("APP_HOST", defaultAppHost),
		Env:           Get("APP_ENV", defaultAppEnv),
		RedisAddr:     Get("REDIS_ADDR", ""),
		RedisPassword: Get("REDIS_PASSWORD", ""),
		CORSOrigins:   splitList(Get("CORS_ORIGINS", defaultCORSOrigins)),
	}

	var errs []error
	var err error

	if cfg.Port, err = strconv.Atoi(Get("APP_PORT", defaultAppPort)); err != nil || cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT: invalid port %q", Get("APP_PORT", defaultAppPort)))
	}
	if cfg.Debug, err = strconv.ParseBool(Get("APP_DEBUG", "false")); err != nil {
		errs = append(errs, fmt.Errorf("APP_DEBUG: %w", err))
	}
	if cfg.RateLimit, err = strconv.ParseFloat(Get("RATE_LIMIT_RPS", "0"), 64); err != nil || cfg.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: invalid rate %q", Get("RATE_LIMIT_RPS", "0")))
	}
	if cfg.TrustProxy, err = strconv.ParseBool(Get("TRUST_PROXY", "false")); err != nil {
		errs = append(errs, fmt.Errorf("TRUST_PROXY: %w", err))
	}
	if cfg.RateBurst, err = strconv.Atoi(Get("RATE_LIMIT_BURST", defaultRateBurst)); err != nil || cfg.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST: invalid burst %q", Get("RATE_LIMIT_BURST", defaultRateBurst)))
	}
	if cfg.ReadTimeout, err = time.ParseDuration(Get("HTTP_READ_TIMEOUT", defaultReadTimeout)); err != nil {
		errs = append(errs, fmt.Errorf("HTTP_READ_TIMEOUT: %w", err))
	}
	if cfg.WriteTimeout, err = time.ParseDuration(Get("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)); err != nil {
		errs = append(errs, fmt.Errorf("HTTP_WRITE_TIMEOUT: %w", err))
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(Get("HTTP_SHUTDOWN_TIMEOUT", defaultShutdownTimeout)); err != nil {
		errs = append(errs, fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT: %w", err))
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	cfg.LogLevel = strings.ToLower(Get("LOG_LEVEL", level))

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Get reads any config key by name with an optional fallback. The process
// environment wins over config/app.json.
func Get(key, fallback string) string {
	_ = Load()
	return get(key, fallback)
}

func defaultValues() map[string]string {
	return map[string]string{
		"APP_HOST": defaultAppHost,
		"APP_PORT": defaultAppPort,
		"APP_ENV":  defaultAppEnv,
	}
}

func loadFromFiles(configPath, envPath string) error {
	loaded := defaultValues()

	if err := mergeJSONConfig(configPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	// godotenv.Load never overrides variables already in the environment.
	if err := godotenv.Load(envPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	mu.Lock()
	values = loaded
	mu.Unlock()

	return nil
}

func mergeJSONConfig(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for key, val := range raw {
		s, ok := val.(string)
		if !ok {
			continue
		}

		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(s)
	}

	return nil
}

func get(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	mu.RLock()
	defer mu.RUnlock()

	if value := strings.TrimSpace(values[key]); value != "" {
		return value
	}

	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
