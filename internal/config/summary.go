package config

import (
	"reflect"
	"sort"

	logx "rosterbot/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ between two
// configs, plus log fields describing the new values. Secrets are never
// included; only whether they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Database != newCfg.Database {
		changed = append(changed, "database")
		attrs = append(attrs,
			logx.String("database.host", newCfg.Database.Host),
			logx.String("database.name", newCfg.Database.Name),
			logx.Bool("database.password_changed", oldCfg.Database.Password != newCfg.Database.Password),
		)
	}
	if oldCfg.Relay != newCfg.Relay {
		changed = append(changed, "relay")
		attrs = append(attrs,
			logx.String("relay.channel", newCfg.Relay.Channel),
			logx.Int64("relay.chat_id", newCfg.Relay.ChatID),
		)
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs, logx.String("status.schedule", newCfg.Status.Schedule))
	}
	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs, logx.Bool("ops.enabled", newCfg.Ops.Enabled))
	}
	if oldCfg.Alerts != newCfg.Alerts {
		changed = append(changed, "alerts")
		attrs = append(attrs, logx.Int64("alerts.chat_id", newCfg.Alerts.ChatID))
	}
	if !reflect.DeepEqual(oldCfg.Decorate, newCfg.Decorate) {
		changed = append(changed, "decorate")
		attrs = append(attrs,
			logx.Bool("decorate.enabled", newCfg.Decorate.Enabled),
			logx.Int("decorate.sequences", len(newCfg.Decorate.Sequences)),
			logx.Int("decorate.random", len(newCfg.Decorate.Random)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports the changed sections that only take effect after
// a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "database", "relay", "telegram", "storage", "status", "ops", "alerts":
			out = append(out, s)
		}
	}
	return out
}
