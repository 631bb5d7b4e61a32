package app

import (
	"strings"
	"time"

	"rosterbot/internal/config"
	"rosterbot/internal/notifier"
	"rosterbot/internal/observability/ops"
	"rosterbot/internal/relay"
	"rosterbot/internal/relay/pgrelay"
	"rosterbot/internal/runtime/backoff"
	"rosterbot/internal/storage"
	kit "rosterbot/internal/transport"
	telegram "rosterbot/internal/transport/telegram/adapter"
	logx "rosterbot/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapDatabase(cfg *config.Config) pgrelay.Config {
	db := cfg.Database
	return pgrelay.Config{
		Host:            db.Host,
		Port:            db.Port,
		Database:        db.Name,
		User:            db.User,
		Password:        db.Password,
		SSLMode:         db.SSLMode,
		ApplicationName: db.ApplicationName,
		ConnectTimeout:  config.ParseDurationOrDefault(db.ConnectTimeout, pgrelay.DefaultConnectTimeout),
		PollInterval:    config.ParseDurationOrDefault(db.PollInterval, pgrelay.DefaultPollInterval),
	}
}

func mapRelay(cfg *config.Config) relay.SupervisorConfig {
	r := cfg.Relay
	return relay.SupervisorConfig{
		Loop: relay.LoopConfig{
			Channel:     strings.TrimSpace(r.Channel),
			Table:       strings.TrimSpace(r.Table),
			Target:      kit.ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID},
			SendOptions: &kit.SendOptions{DisablePreview: true},
			PostTimeout: config.ParseDurationOrDefault(r.PostTimeout, 0),
		},
		Backoff: backoff.Constant(config.ParseDurationOrDefault(r.RetryDelay, relay.DefaultRetryDelay)),
	}
}

func mapTelegram(cfg *config.Config) telegram.Config {
	t := cfg.Telegram
	return telegram.Config{
		Token:        t.Token,
		PollTimeout:  config.ParseDurationOrDefault(t.PollTimeout, 10*time.Second),
		SendRate:     t.SendRate,
		SendBurst:    t.SendBurst,
		MaxReactions: t.MaxReactions,
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: config.ParseDurationOrDefault(cfg.Storage.BusyTimeout, 0),
		MaxRows:     10000,
	}
}

func mapOps(cfg *config.Config) ops.Config {
	return ops.Config{
		Addr:  cfg.Ops.Addr,
		Pprof: cfg.Ops.Pprof,
		Token: cfg.Ops.Token,
	}
}

func mapAlerts(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Target:      kit.ChatTarget{ChatID: cfg.Alerts.ChatID, ThreadID: cfg.Alerts.ThreadID},
		DedupWindow: config.ParseDurationOrDefault(cfg.Alerts.DedupWindow, notifier.DefaultDedupWindow),
	}
}
