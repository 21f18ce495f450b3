package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Telegram update delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// PathEnv names the variable holding the optional TOML file path.
const PathEnv = "QUESTBOT_CONFIG"

// Duration is a time.Duration that reads "90s"-style strings from TOML.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all application configuration.
type Config struct {
	App           AppConfig           `toml:"app"`
	Database      DatabaseConfig      `toml:"database"`
	Redis         RedisConfig         `toml:"redis"`
	Telegram      TelegramConfig      `toml:"telegram"`
	Generator     GeneratorConfig     `toml:"generator"`
	Quest         QuestConfig         `toml:"quest"`
	Scheduler     SchedulerConfig     `toml:"scheduler"`
	HTTP          HTTPConfig          `toml:"http"`
	Observability ObservabilityConfig `toml:"observability"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `toml:"name"`
	Environment Environment `toml:"environment"`
	Debug       bool        `toml:"debug"`
	Version     string      `toml:"version"`

	// Timezone for broadcasts and displayed times.
	Timezone string         `toml:"timezone"`
	Location *time.Location `toml:"-"`

	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the quest store.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `toml:"driver"`

	// URL is the postgres connection string.
	URL string `toml:"url"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `toml:"sqlite_path"`

	MaxConns        int      `toml:"max_conns"`
	MinConns        int      `toml:"min_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `toml:"conn_max_idle_time"`
	ConnectAttempts int      `toml:"connect_attempts"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// URL overrides Host/Port/Password/DB when set.
	URL      string `toml:"url"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`

	// StatsTTL is how long admin statistics stay cached.
	StatsTTL Duration `toml:"stats_ttl"`

	// Disabled runs without Redis: no stats cache and no job locks.
	Disabled bool `toml:"disabled"`
}

// TelegramConfig holds Telegram Bot settings.
type TelegramConfig struct {
	// Token from @BotFather.
	Token string `toml:"token"`

	// Mode is "polling" or "webhook".
	Mode          string `toml:"mode"`
	WebhookURL    string `toml:"webhook_url"`
	WebhookSecret string `toml:"webhook_secret"`

	PollingTimeout Duration `toml:"polling_timeout"`

	// UserRateLimit is messages per minute per user.
	UserRateLimit int `toml:"user_rate_limit"`

	// MaxConcurrentUpdates bounds in-flight updates.
	MaxConcurrentUpdates int `toml:"max_concurrent_updates"`

	// AdminIDs may use /admin_stats.
	AdminIDs []int64 `toml:"admin_ids"`
}

// GeneratorConfig configures the chat completion client.
type GeneratorConfig struct {
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	Timeout     Duration `toml:"timeout"`
	Temperature float64  `toml:"temperature"`

	// Attempts is the total number of generator calls per issue request.
	Attempts   int      `toml:"attempts"`
	RetryDelay Duration `toml:"retry_delay"`

	// RequestsPerSecond throttles broadcasts.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// QuestConfig holds quest lifetime and leveling rules.
type QuestConfig struct {
	DailyTTL  Duration `toml:"daily_ttl"`
	WeeklyTTL Duration `toml:"weekly_ttl"`

	// AllowUncompletingFinishedTask lets a user clear a completion mark.
	AllowUncompletingFinishedTask bool `toml:"allow_uncompleting_finished_task"`

	// AutoFailExpired runs the expiry job that fails stale pending quests.
	AutoFailExpired bool `toml:"auto_fail_expired"`

	BaseExp       int `toml:"base_exp"`
	ExpStep       int `toml:"exp_step"`
	DailyTaskExp  int `toml:"daily_task_exp"`
	WeeklyTaskExp int `toml:"weekly_task_exp"`
	DailyBonus    int `toml:"daily_bonus"`
	WeeklyBonus   int `toml:"weekly_bonus"`
}

// SchedulerConfig holds background job settings.
type SchedulerConfig struct {
	Enabled bool `toml:"enabled"`

	// Cron expressions in the application timezone.
	DailyCron  string `toml:"daily_cron"`
	WeeklyCron string `toml:"weekly_cron"`

	// ExpireInterval is how often stale pending quests are failed.
	ExpireInterval Duration `toml:"expire_interval"`

	// BatchConcurrency is the number of users served in parallel.
	BatchConcurrency int      `toml:"batch_concurrency"`
	JobTimeout       Duration `toml:"job_timeout"`
}

// HTTPConfig configures the webhook and admin HTTP server.
type HTTPConfig struct {
	Enabled bool     `toml:"enabled"`
	Host    string   `toml:"host"`
	Port    int      `toml:"port"`
	APIKeys []string `toml:"api_keys"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `toml:"log_level"`  // debug, info, warn, error
	LogFormat string `toml:"log_format"` // json, text, pretty
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "questbot",
			Environment:     EnvDevelopment,
			Version:         "0.1.0",
			Timezone:        "UTC",
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			SQLitePath:      "questbot.db",
			MaxConns:        10,
			MinConns:        2,
			ConnMaxLifetime: Duration(time.Hour),
			ConnMaxIdleTime: Duration(30 * time.Minute),
			ConnectAttempts: 5,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			PoolSize: 10,
			StatsTTL: Duration(time.Minute),
			Disabled: true,
		},
		Telegram: TelegramConfig{
			Mode:                 ModePolling,
			PollingTimeout:       Duration(60 * time.Second),
			UserRateLimit:        30,
			MaxConcurrentUpdates: 32,
		},
		Generator: GeneratorConfig{
			Model:             "gpt-4o-mini",
			Timeout:           Duration(30 * time.Second),
			Temperature:       0.9,
			Attempts:          3,
			RetryDelay:        Duration(time.Second),
			RequestsPerSecond: 3,
			Burst:             5,
		},
		Quest: QuestConfig{
			DailyTTL:        Duration(24 * time.Hour),
			WeeklyTTL:       Duration(7 * 24 * time.Hour),
			AutoFailExpired: false,
			BaseExp:         10,
			ExpStep:         5,
			DailyTaskExp:    1,
			WeeklyTaskExp:   3,
			DailyBonus:      1,
			WeeklyBonus:     3,
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			DailyCron:        "0 9 * * *",
			WeeklyCron:       "0 9 * * 1",
			ExpireInterval:   Duration(15 * time.Minute),
			BatchConcurrency: 4,
			JobTimeout:       Duration(30 * time.Minute),
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load builds the configuration from defaults, the TOML file named by
// QUESTBOT_CONFIG (if any) and environment variables, in that order.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(PathEnv))
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("app timezone %q: %w", cfg.App.Timezone, err)
	}
	cfg.App.Location = loc
	if cfg.App.Environment == EnvDevelopment {
		cfg.App.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("config file %s:%d:%d: %w", path, row, col, err)
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables on top of the current values.
func (c *Config) applyEnv() {
	c.App.Name = getEnv("APP_NAME", c.App.Name)
	c.App.Environment = Environment(getEnv("APP_ENV", string(c.App.Environment)))
	c.App.Debug = getEnvBool("APP_DEBUG", c.App.Debug)
	c.App.Version = getEnv("APP_VERSION", c.App.Version)
	c.App.Timezone = getEnv("APP_TIMEZONE", c.App.Timezone)
	c.App.ShutdownTimeout = getEnvDuration("APP_SHUTDOWN_TIMEOUT", c.App.ShutdownTimeout)

	c.Database.Driver = getEnv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.SQLitePath = getEnv("SQLITE_PATH", c.Database.SQLitePath)
	c.Database.MaxConns = getEnvInt("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.ConnMaxIdleTime = getEnvDuration("DB_CONN_MAX_IDLE_TIME", c.Database.ConnMaxIdleTime)
	c.Database.ConnectAttempts = getEnvInt("DB_CONNECT_ATTEMPTS", c.Database.ConnectAttempts)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.StatsTTL = getEnvDuration("REDIS_STATS_TTL", c.Redis.StatsTTL)
	c.Redis.Disabled = getEnvBool("REDIS_DISABLED", c.Redis.Disabled)

	c.Telegram.Token = getEnv("TELEGRAM_BOT_TOKEN", c.Telegram.Token)
	c.Telegram.Mode = getEnv("TELEGRAM_MODE", c.Telegram.Mode)
	c.Telegram.WebhookURL = getEnv("TELEGRAM_WEBHOOK_URL", c.Telegram.WebhookURL)
	c.Telegram.WebhookSecret = getEnv("TELEGRAM_WEBHOOK_SECRET", c.Telegram.WebhookSecret)
	c.Telegram.PollingTimeout = getEnvDuration("TELEGRAM_POLLING_TIMEOUT", c.Telegram.PollingTimeout)
	c.Telegram.UserRateLimit = getEnvInt("TELEGRAM_USER_RATE_LIMIT", c.Telegram.UserRateLimit)
	c.Telegram.MaxConcurrentUpdates = getEnvInt("TELEGRAM_MAX_CONCURRENT_UPDATES", c.Telegram.MaxConcurrentUpdates)
	c.Telegram.AdminIDs = getEnvInt64Slice("TELEGRAM_ADMIN_IDS", c.Telegram.AdminIDs)

	c.Generator.APIKey = getEnv("OPENAI_API_KEY", c.Generator.APIKey)
	c.Generator.BaseURL = getEnv("OPENAI_BASE_URL", c.Generator.BaseURL)
	c.Generator.Model = getEnv("GENERATOR_MODEL", c.Generator.Model)
	c.Generator.Timeout = getEnvDuration("GENERATOR_TIMEOUT", c.Generator.Timeout)
	c.Generator.Temperature = getEnvFloat("GENERATOR_TEMPERATURE", c.Generator.Temperature)
	c.Generator.Attempts = getEnvInt("GENERATOR_ATTEMPTS", c.Generator.Attempts)
	c.Generator.RetryDelay = getEnvDuration("GENERATOR_RETRY_DELAY", c.Generator.RetryDelay)
	c.Generator.RequestsPerSecond = getEnvFloat("GENERATOR_RPS", c.Generator.RequestsPerSecond)
	c.Generator.Burst = getEnvInt("GENERATOR_BURST", c.Generator.Burst)

	c.Quest.DailyTTL = getEnvDuration("QUEST_DAILY_TTL", c.Quest.DailyTTL)
	c.Quest.WeeklyTTL = getEnvDuration("QUEST_WEEKLY_TTL", c.Quest.WeeklyTTL)
	c.Quest.AllowUncompletingFinishedTask = getEnvBool("QUEST_ALLOW_UNCOMPLETING_FINISHED_TASK", c.Quest.AllowUncompletingFinishedTask)
	c.Quest.AutoFailExpired = getEnvBool("QUEST_AUTO_FAIL_EXPIRED", c.Quest.AutoFailExpired)

	c.Scheduler.Enabled = getEnvBool("SCHEDULER_ENABLED", c.Scheduler.Enabled)
	c.Scheduler.DailyCron = getEnv("SCHEDULER_DAILY_CRON", c.Scheduler.DailyCron)
	c.Scheduler.WeeklyCron = getEnv("SCHEDULER_WEEKLY_CRON", c.Scheduler.WeeklyCron)
	c.Scheduler.ExpireInterval = getEnvDuration("SCHEDULER_EXPIRE_INTERVAL", c.Scheduler.ExpireInterval)
	c.Scheduler.BatchConcurrency = getEnvInt("SCHEDULER_BATCH_CONCURRENCY", c.Scheduler.BatchConcurrency)
	c.Scheduler.JobTimeout = getEnvDuration("SCHEDULER_JOB_TIMEOUT", c.Scheduler.JobTimeout)

	c.HTTP.Enabled = getEnvBool("HTTP_ENABLED", c.HTTP.Enabled)
	c.HTTP.Host = getEnv("HTTP_HOST", c.HTTP.Host)
	c.HTTP.Port = getEnvInt("HTTP_PORT", c.HTTP.Port)
	c.HTTP.APIKeys = getEnvStringSlice("HTTP_API_KEYS", c.HTTP.APIKeys)

	c.Observability.LogLevel = getEnv("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("LOG_FORMAT", c.Observability.LogFormat)
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Telegram.Token == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required")
	}

	switch c.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.Telegram.WebhookURL == "" {
			errs = append(errs, "TELEGRAM_WEBHOOK_URL is required in webhook mode")
		}
		if !c.HTTP.Enabled {
			errs = append(errs, "HTTP_ENABLED must be true in webhook mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("TELEGRAM_MODE must be %q or %q", ModePolling, ModeWebhook))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("DATABASE_DRIVER must be %q or %q", DriverPostgres, DriverSQLite))
	}

	if c.Generator.APIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required")
	}
	if c.Generator.Attempts < 1 {
		errs = append(errs, "GENERATOR_ATTEMPTS must be at least 1")
	}

	if c.Quest.DailyTTL <= 0 || c.Quest.WeeklyTTL <= 0 {
		errs = append(errs, "quest TTLs must be positive")
	}
	if c.Quest.BaseExp < 1 || c.Quest.ExpStep < 0 {
		errs = append(errs, "quest.base_exp must be at least 1 and quest.exp_step non-negative")
	}

	if c.Scheduler.Enabled && c.Scheduler.BatchConcurrency < 1 {
		errs = append(errs, "SCHEDULER_BATCH_CONCURRENCY must be at least 1")
	}

	if c.HTTP.Enabled && (c.HTTP.Port < 1 || c.HTTP.Port > 65535) {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal Duration) Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return Duration(d)
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var result []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

func getEnvInt64Slice(key string, defaultVal []int64) []int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	parts := strings.Split(val, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		i, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		result = append(result, i)
	}
	return result
}
