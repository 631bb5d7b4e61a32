package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var validate = validator.New()

// Validate checks struct tags and the fields tags cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	durations := []struct{ path, raw string }{
		{"database.connect_timeout", cfg.Database.ConnectTimeout},
		{"database.poll_interval", cfg.Database.PollInterval},
		{"relay.retry_delay", cfg.Relay.RetryDelay},
		{"relay.post_timeout", cfg.Relay.PostTimeout},
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"alerts.dedup_window", cfg.Alerts.DedupWindow},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	if s := strings.TrimSpace(cfg.Status.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("invalid config: status.schedule: %w", err)
		}
	}
	if a := cfg.Decorate.Activated; a != "" && cfg.Decorate.Enabled {
		found := false
		for _, s := range cfg.Decorate.Sequences {
			found = found || s.Name == a
		}
		if !found {
			return fmt.Errorf("invalid config: decorate.activated %q names no sequence", a)
		}
	}
	return nil
}
