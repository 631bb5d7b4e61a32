package config

import (
	"strings"

	"rosterbot/internal/decorate"
)

const (
	DefaultDBHost        = "localhost"
	DefaultDBPort        = 5432
	DefaultDBName        = "postgres"
	DefaultDBSSLMode     = "disable"
	DefaultStatus        = "@every 30m"
	DefaultOpsAddr       = "127.0.0.1:6061"
	DefaultStoragePath   = "./rosterbot.db"
	defaultApplication   = "rosterbot"
	defaultUpdateBuffer  = 64
	defaultMaxReactions  = 1
	defaultLogLevel      = "info"
	defaultStorageDriver = "none"
)

// Default returns the config used when no file exists.
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: defaultLogLevel, Console: true},
		Status:   StatusConfig{Schedule: DefaultStatus},
		Decorate: decorate.DefaultRules(),
	}
}

// applyDefaults fills zero values. It runs after env overrides, so an
// explicit value from either source always wins.
func applyDefaults(cfg *Config) {
	db := &cfg.Database
	if strings.TrimSpace(db.Host) == "" {
		db.Host = DefaultDBHost
	}
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if strings.TrimSpace(db.Name) == "" {
		db.Name = DefaultDBName
	}
	if strings.TrimSpace(db.SSLMode) == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.ApplicationName == "" {
		db.ApplicationName = defaultApplication
	}

	if cfg.Telegram.UpdateBuffer == 0 {
		cfg.Telegram.UpdateBuffer = defaultUpdateBuffer
	}
	if cfg.Telegram.MaxReactions == 0 {
		cfg.Telegram.MaxReactions = defaultMaxReactions
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaultStorageDriver
	}
	if cfg.Storage.Driver == "sqlite" && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Ops.Enabled && strings.TrimSpace(cfg.Ops.Addr) == "" {
		cfg.Ops.Addr = DefaultOpsAddr
	}
}
