// Package pgrelay binds relay.Conn to a single pgx connection.
package pgrelay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"rosterbot/internal/relay"
	logx "rosterbot/pkg/logx"
)

const (
	DefaultPollInterval   = time.Second
	DefaultConnectTimeout = 10 * time.Second
)

type Config struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	ApplicationName string
	ConnectTimeout  time.Duration
	// PollInterval bounds one wait for a notification. Queries interrupt
	// the wait anyway; this only limits how long the bridge holds the
	// connection in one go.
	PollInterval time.Duration
}

// ConnString renders cfg as a postgres:// URL.
func (c Config) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ApplicationName != "" {
		q.Set("application_name", c.ApplicationName)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Dialer opens one pgx connection per relay session.
type Dialer struct {
	cfg Config
	log logx.Logger
}

func NewDialer(cfg Config, log logx.Logger) *Dialer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dialer{cfg: cfg, log: log}
}

func (d *Dialer) Dial(ctx context.Context) (relay.Conn, error) {
	pc, err := pgx.ParseConfig(d.cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pc.ConnectTimeout = d.cfg.ConnectTimeout
	pc.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		d.log.Debug("postgres notice", logx.String("severity", n.Severity), logx.String("message", n.Message))
	}

	conn, err := pgx.ConnectConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres %s: %w", net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port)), err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	d.log.Info("postgres connected",
		logx.String("host", d.cfg.Host),
		logx.Int("port", d.cfg.Port),
		logx.String("database", d.cfg.Database),
		logx.Uint64("backend_pid", uint64(conn.PgConn().PID())),
	)
	return newConn(conn, d.cfg.PollInterval), nil
}

// Conn lets the bridge wait for notifications while the loop runs queries
// on the same pgx.Conn, which is not safe for concurrent use. mu serializes
// every driver call; a query cancels the bridge's current wait so it gets
// the connection right away. Waits end by deadline, which pgx treats as a
// recoverable timeout, and notifications read during a query are buffered
// by pgx for the next wait.
type Conn struct {
	conn *pgx.Conn
	poll time.Duration
	wait func(context.Context) (*pgconn.Notification, error)

	mu sync.Mutex

	waitMu     sync.Mutex
	waitCancel context.CancelFunc
	pending    atomic.Int32
}

func newConn(c *pgx.Conn, poll time.Duration) *Conn {
	return &Conn{conn: c, poll: poll, wait: c.WaitForNotification}
}

func (c *Conn) NextFrame(ctx context.Context) (relay.Frame, error) {
	if err := c.yield(ctx); err != nil {
		return relay.Frame{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.poll)
	defer cancel()
	if !c.beginWait(cancel) {
		// A query queued up after yield; let it have the connection.
		return relay.Frame{Kind: relay.FrameIdle}, nil
	}

	c.mu.Lock()
	n, err := c.wait(waitCtx)
	c.mu.Unlock()

	c.waitMu.Lock()
	c.waitCancel = nil
	c.waitMu.Unlock()

	if n != nil {
		return relay.Frame{
			Kind: relay.FrameNotification,
			Notification: relay.Notification{
				Channel:    n.Channel,
				Payload:    n.Payload,
				PID:        n.PID,
				ReceivedAt: time.Now(),
			},
		}, nil
	}
	if err == nil {
		return relay.Frame{Kind: relay.FrameIdle}, nil
	}
	if ctx.Err() != nil {
		return relay.Frame{}, ctx.Err()
	}
	if waitCtx.Err() != nil && (pgconn.Timeout(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return relay.Frame{Kind: relay.FrameIdle}, nil
	}
	return relay.Frame{}, err
}

// beginWait publishes cancel for acquire. It reports false when a caller is
// already queued, since that caller checked waitCancel before it was set.
func (c *Conn) beginWait(cancel context.CancelFunc) bool {
	c.waitMu.Lock()
	defer c.waitMu.Unlock()
	if c.pending.Load() > 0 {
		return false
	}
	c.waitCancel = cancel
	return true
}

// yield lets queued Exec/QueryRow callers take the connection first.
func (c *Conn) yield(ctx context.Context) error {
	for c.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

func (c *Conn) acquire() {
	c.pending.Add(1)
	c.waitMu.Lock()
	if c.waitCancel != nil {
		c.waitCancel()
	}
	c.waitMu.Unlock()
	c.mu.Lock()
	c.pending.Add(-1)
}

func (c *Conn) Exec(ctx context.Context, sql string) error {
	c.acquire()
	defer c.mu.Unlock()
	_, err := c.conn.Exec(ctx, sql)
	return err
}

func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) relay.Row {
	c.acquire()
	return &lockedRow{row: c.conn.QueryRow(ctx, sql, args...), unlock: c.mu.Unlock}
}

func (c *Conn) Close(ctx context.Context) error {
	c.acquire()
	defer c.mu.Unlock()
	return c.conn.Close(ctx)
}

// lockedRow holds the connection until Scan returns.
type lockedRow struct {
	row    pgx.Row
	unlock func()
	once   sync.Once
}

func (r *lockedRow) Scan(dest ...any) error {
	defer r.once.Do(r.unlock)
	return r.row.Scan(dest...)
}
