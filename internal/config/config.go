package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken     string
	DevelopersID string
	DMPerSecond  float64

	// Horizon
	HorizonURL string
	HorizonRPS float64

	// Payment submitter
	SubmitterURL   string
	SubmitterToken string
	SubmitTimeout  time.Duration

	// Robot
	OperatingAddress string
	SupportContact   string

	// Ledger
	LedgerDriver string
	DBPath       string
	DatabaseURL  string

	// Queue
	QueueDriver   string
	RedisURL      string
	RedisQueueKey string
	FlushInterval time.Duration
	FlushBatch    int

	// Deposits
	DepositPollInterval time.Duration

	// Ops
	OpsPort  int
	LogLevel slog.Level
}

func Load() *Config {
	return &Config{
		// Telegram
		BotToken:     getEnv("BOT_TOKEN", ""),
		DevelopersID: getEnv("DEVELOPERS_ID", ""),
		DMPerSecond:  getEnvFloat("DM_PER_SECOND", 25),

		// Horizon
		HorizonURL: strings.TrimSuffix(getEnv("HORIZON_URL", "https://horizon.stellar.org"), "/"),
		HorizonRPS: getEnvFloat("HORIZON_RPS", 4),

		// Payment submitter
		SubmitterURL:   strings.TrimSuffix(getEnv("SUBMITTER_URL", ""), "/"),
		SubmitterToken: getEnv("SUBMITTER_TOKEN", ""),
		SubmitTimeout:  getEnvDuration("SUBMIT_TIMEOUT", 30*time.Second),

		// Robot
		OperatingAddress: getEnv("OPERATING_ADDRESS", ""),
		SupportContact:   getEnv("SUPPORT_CONTACT", "@tipbot_support"),

		// Ledger
		LedgerDriver: getEnv("LEDGER_DRIVER", "sqlite"),
		DBPath:       getEnv("DB_PATH", "./tipbot.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		// Queue
		QueueDriver:   getEnv("QUEUE_DRIVER", "sqlite"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisQueueKey: getEnv("REDIS_QUEUE_KEY", "tipbot:commands"),
		FlushInterval: getEnvDuration("FLUSH_INTERVAL", time.Second),
		FlushBatch:    getEnvInt("FLUSH_BATCH", 100),

		// Deposits
		DepositPollInterval: getEnvDuration("DEPOSIT_POLL_INTERVAL", 10*time.Second),

		// Ops
		OpsPort:  getEnvInt("OPS_PORT", 9090),
		LogLevel: getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Validate reports the first setting that makes the bot unable to run
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if c.OperatingAddress == "" {
		return errors.New("OPERATING_ADDRESS is required")
	}
	if c.SubmitterURL == "" {
		return errors.New("SUBMITTER_URL is required")
	}

	switch c.LedgerDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when LEDGER_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown LEDGER_DRIVER %q", c.LedgerDriver)
	}

	switch c.QueueDriver {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unknown QUEUE_DRIVER %q", c.QueueDriver)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	if val := os.Getenv(key); val != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(val)); err == nil {
			return level
		}
	}
	return defaultVal
}
