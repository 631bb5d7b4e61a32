package storage

import (
	"context"
	"errors"
	"strings"

	logx "rosterbot/pkg/logx"
)

type Store interface {
	AppendDelivery(ctx context.Context, d Delivery) error
	// Recent returns up to limit deliveries, newest first.
	Recent(ctx context.Context, limit int) ([]Delivery, error)
	Close() error
}

// Open returns the configured store, or (nil, nil) when storage is off.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
