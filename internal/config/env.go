package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ApplyEnvOverrides overlays environment variables on cfg.
//
//   - DB_HOST, DB_PORT, DB_NAME, DB_USERNAME, DB_PASSWORD, DB_SSLMODE
//   - ROSTER_CHANNEL_ID (chat id), ROSTER_THREAD_ID (forum topic)
//   - TELEGRAM_TOKEN
//   - LOG_LEVEL
func ApplyEnvOverrides(cfg *Config) error {
	setStringEnv("DB_HOST", &cfg.Database.Host)
	if err := setIntEnv("DB_PORT", &cfg.Database.Port); err != nil {
		return err
	}
	setStringEnv("DB_NAME", &cfg.Database.Name)
	setStringEnv("DB_USERNAME", &cfg.Database.User)
	setStringEnv("DB_PASSWORD", &cfg.Database.Password)
	setStringEnv("DB_SSLMODE", &cfg.Database.SSLMode)

	if v := strings.TrimSpace(os.Getenv("ROSTER_CHANNEL_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ROSTER_CHANNEL_ID: %w", err)
		}
		cfg.Relay.ChatID = id
	}
	if err := setIntEnv("ROSTER_THREAD_ID", &cfg.Relay.ThreadID); err != nil {
		return err
	}

	setStringEnv("TELEGRAM_TOKEN", &cfg.Telegram.Token)
	setStringEnv("LOG_LEVEL", &cfg.Logging.Level)
	return nil
}

func setStringEnv(env string, dst *string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setIntEnv(env string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = n
	return nil
}
