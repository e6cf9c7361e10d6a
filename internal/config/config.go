package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	NATSURL       string           `yaml:"nats_url"`
	GatewayPrefix string           `yaml:"gateway_prefix"`
	EventsSubject string           `yaml:"events_subject"`
	DataDir       string           `yaml:"data_dir"`
	DatabasePath  string           `yaml:"database_path"`
	LogLevel      string           `yaml:"log_level"`
	FFmpegPath    string           `yaml:"ffmpeg_path"`
	Health        HealthConfig     `yaml:"health"`
	Moderation    ModerationConfig `yaml:"moderation"`
	Cache         CacheConfig      `yaml:"cache"`
	Counters      CounterConfig    `yaml:"counters"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type ModerationConfig struct {
	MaxWarnings    int `yaml:"max_warnings"`
	UserCooldownMs int `yaml:"user_cooldown_ms"`
	SettleSeconds  int `yaml:"settle_seconds"`
}

type CacheConfig struct {
	FreshTTLMinutes      int `yaml:"fresh_ttl_minutes"`
	PurgeTTLMinutes      int `yaml:"purge_ttl_minutes"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
	InflightClearSeconds int `yaml:"inflight_clear_seconds"`
}

type CounterConfig struct {
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

func DefaultConfig() Config {
	return Config{
		NATSURL:       "nats://127.0.0.1:4222",
		GatewayPrefix: "gateway.cmd",
		EventsSubject: "gateway.events",
		DataDir:       "data",
		DatabasePath:  "data/groupwarden.db",
		LogLevel:      "info",
		FFmpegPath:    "ffmpeg",
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		Moderation: ModerationConfig{
			MaxWarnings:    2,
			UserCooldownMs: 800,
			SettleSeconds:  2,
		},
		Cache: CacheConfig{
			FreshTTLMinutes:      10,
			PurgeTTLMinutes:      20,
			SweepIntervalMinutes: 60,
			InflightClearSeconds: 2,
		},
		Counters: CounterConfig{FlushIntervalSeconds: 10},
	}
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.NATSURL = envString("NATS_URL", cfg.NATSURL)
	cfg.GatewayPrefix = envString("GATEWAY_PREFIX", cfg.GatewayPrefix)
	cfg.EventsSubject = envString("EVENTS_SUBJECT", cfg.EventsSubject)
	cfg.DataDir = envString("DATA_DIR", cfg.DataDir)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.FFmpegPath = envString("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Moderation.MaxWarnings = envInt("MAX_WARNINGS", cfg.Moderation.MaxWarnings)
	cfg.Moderation.UserCooldownMs = envInt("USER_COOLDOWN_MS", cfg.Moderation.UserCooldownMs)
	cfg.Moderation.SettleSeconds = envInt("SETTLE_SECONDS", cfg.Moderation.SettleSeconds)
	cfg.Cache.FreshTTLMinutes = envInt("CACHE_FRESH_TTL_MINUTES", cfg.Cache.FreshTTLMinutes)
	cfg.Cache.PurgeTTLMinutes = envInt("CACHE_PURGE_TTL_MINUTES", cfg.Cache.PurgeTTLMinutes)
	cfg.Cache.SweepIntervalMinutes = envInt("CACHE_SWEEP_INTERVAL_MINUTES", cfg.Cache.SweepIntervalMinutes)
	cfg.Cache.InflightClearSeconds = envInt("CACHE_INFLIGHT_CLEAR_SECONDS", cfg.Cache.InflightClearSeconds)
	cfg.Counters.FlushIntervalSeconds = envInt("COUNTER_FLUSH_INTERVAL_SECONDS", cfg.Counters.FlushIntervalSeconds)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
