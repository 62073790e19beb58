package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FARSIGHT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Pick up a .env file when present; missing is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FARSIGHT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Postgres.DSN, "FARSIGHT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FARSIGHT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FARSIGHT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FARSIGHT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FARSIGHT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FARSIGHT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FARSIGHT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FARSIGHT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FARSIGHT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FARSIGHT_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "FARSIGHT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FARSIGHT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FARSIGHT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FARSIGHT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FARSIGHT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FARSIGHT_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "FARSIGHT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FARSIGHT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FARSIGHT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FARSIGHT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FARSIGHT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FARSIGHT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FARSIGHT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FARSIGHT_S3_FORCE_PATH_STYLE")

	setDuration(&cfg.Engine.SweepInterval, "FARSIGHT_ENGINE_SWEEP_INTERVAL")

	setStr(&cfg.Notify.TelegramToken, "FARSIGHT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FARSIGHT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FARSIGHT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Channels, "FARSIGHT_NOTIFY_CHANNELS")

	setStr(&cfg.Mode, "FARSIGHT_MODE")
	setStr(&cfg.Storage, "FARSIGHT_STORAGE")
	setStr(&cfg.LogLevel, "FARSIGHT_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
