package config

import (
	"rosterbot/internal/decorate"
)

// Config is the whole process configuration. File values come first, then
// environment overrides (see ApplyEnvOverrides), then defaults.
type Config struct {
	Database DatabaseConfig `json:"database"`
	Relay    RelayConfig    `json:"relay"`
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Status   StatusConfig   `json:"status"`
	Ops      OpsConfig      `json:"ops"`
	Alerts   AlertsConfig   `json:"alerts"`
	Decorate decorate.Rules `json:"decorate"`
}

type DatabaseConfig struct {
	Host            string `json:"host" validate:"required"`
	Port            int    `json:"port" validate:"min=1,max=65535"`
	Name            string `json:"name" validate:"required"`
	User            string `json:"user" validate:"required"`
	Password        string `json:"password" validate:"required"`
	SSLMode         string `json:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	ApplicationName string `json:"application_name,omitempty"`
	ConnectTimeout  string `json:"connect_timeout,omitempty"`
	PollInterval    string `json:"poll_interval,omitempty"`
}

type RelayConfig struct {
	Channel string `json:"channel"`
	Table   string `json:"table"`
	// ChatID is where roster changes are posted.
	ChatID      int64  `json:"chat_id" validate:"required"`
	ThreadID    int    `json:"thread_id,omitempty" validate:"gte=0"`
	RetryDelay  string `json:"retry_delay,omitempty"`
	PostTimeout string `json:"post_timeout,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token" validate:"required"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
	SendRate     float64 `json:"send_rate,omitempty" validate:"gte=0"`
	SendBurst    int     `json:"send_burst,omitempty" validate:"gte=0"`
	MaxReactions int     `json:"max_reactions,omitempty" validate:"gte=0"`
	UpdateBuffer int     `json:"update_buffer,omitempty" validate:"gte=0"`
}

type LoggingConfig struct {
	Level   string        `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "none". Empty means none.
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite none"`
	Path        string `json:"path,omitempty" validate:"required_if=Driver sqlite"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type StatusConfig struct {
	// Schedule is a cron spec for the periodic status log. Empty disables it.
	Schedule string `json:"schedule"`
}

type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr" validate:"required_if=Enabled true"`
	Pprof   bool   `json:"pprof"`
	Token   string `json:"token,omitempty"`
}

// AlertsConfig routes relay failure alerts to an operator chat. A zero
// ChatID disables them.
type AlertsConfig struct {
	ChatID      int64  `json:"chat_id,omitempty"`
	ThreadID    int    `json:"thread_id,omitempty" validate:"gte=0"`
	DedupWindow string `json:"dedup_window,omitempty"`
}
