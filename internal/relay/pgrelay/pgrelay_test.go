package pgrelay

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterbot/internal/relay"
	logx "rosterbot/pkg/logx"
)

func TestConnString(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Host:            "db.internal",
		Port:            5433,
		Database:        "roster",
		User:            "relay",
		Password:        "p@ss word/1",
		SSLMode:         "require",
		ApplicationName: "rosterbot",
	}
	pc, err := pgx.ParseConfig(cfg.ConnString())
	require.NoError(t, err)
	assert.Equal(t, "db.internal", pc.Host)
	assert.EqualValues(t, 5433, pc.Port)
	assert.Equal(t, "roster", pc.Database)
	assert.Equal(t, "relay", pc.User)
	assert.Equal(t, "p@ss word/1", pc.Password)
	assert.Equal(t, "rosterbot", pc.RuntimeParams["application_name"])
	assert.NotNil(t, pc.TLSConfig)
}

func TestConnStringDisableSSL(t *testing.T) {
	t.Parallel()
	pc, err := pgx.ParseConfig(Config{Host: "localhost", Port: 5432, Database: "postgres", User: "u", SSLMode: "disable"}.ConnString())
	require.NoError(t, err)
	assert.Nil(t, pc.TLSConfig)
	assert.Empty(t, pc.Fallbacks)
}

func TestNewDialerDefaults(t *testing.T) {
	t.Parallel()
	d := NewDialer(Config{}, logx.Logger{})
	assert.Equal(t, DefaultPollInterval, d.cfg.PollInterval)
	assert.Equal(t, DefaultConnectTimeout, d.cfg.ConnectTimeout)
	assert.False(t, d.log.IsZero())
}

func TestBeginWaitDefersToQueuedCaller(t *testing.T) {
	t.Parallel()
	c := &Conn{}
	c.pending.Add(1)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.False(t, c.beginWait(cancel), "wait must not start over a queued query")
	assert.Nil(t, c.waitCancel)

	c.pending.Add(-1)
	assert.True(t, c.beginWait(cancel))
	assert.NotNil(t, c.waitCancel)
}

func TestQueryInterruptsWait(t *testing.T) {
	t.Parallel()
	started := make(chan struct{}, 1)
	c := &Conn{poll: 10 * time.Second}
	c.wait = func(ctx context.Context) (*pgconn.Notification, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	type result struct {
		f   relay.Frame
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := c.NextFrame(context.Background())
		done <- result{f, err}
	}()
	<-started

	begin := time.Now()
	c.acquire()
	assert.Less(t, time.Since(begin), 2*time.Second, "acquire waited out the poll window")
	c.mu.Unlock()

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, relay.FrameIdle, r.f.Kind)
}

// testDialer connects to the database named by ROSTERBOT_TEST_PG_HOST and
// friends; the integration tests skip without it.
func testDialer(t *testing.T) *Dialer {
	t.Helper()
	host := os.Getenv("ROSTERBOT_TEST_PG_HOST")
	if host == "" {
		t.Skip("ROSTERBOT_TEST_PG_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("ROSTERBOT_TEST_PG_PORT"))
	if port == 0 {
		port = 5432
	}
	return NewDialer(Config{
		Host:         host,
		Port:         port,
		Database:     os.Getenv("ROSTERBOT_TEST_PG_DB"),
		User:         os.Getenv("ROSTERBOT_TEST_PG_USER"),
		Password:     os.Getenv("ROSTERBOT_TEST_PG_PASSWORD"),
		SSLMode:      "disable",
		PollInterval: 100 * time.Millisecond,
	}, logx.Nop())
}

func TestConnNotificationWhileQuerying(t *testing.T) {
	d := testDialer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	listener, err := d.Dial(ctx)
	require.NoError(t, err)
	defer listener.Close(context.Background())
	notifier, err := d.Dial(ctx)
	require.NoError(t, err)
	defer notifier.Close(context.Background())

	require.NoError(t, listener.Exec(ctx, relay.ListenSQL("rosterbot_test")))

	frames := make(chan relay.Frame, 4)
	go func() {
		for ctx.Err() == nil {
			f, err := listener.NextFrame(ctx)
			if err != nil {
				return
			}
			if f.Kind == relay.FrameNotification {
				frames <- f
			}
		}
	}()

	// The bridge is parked in a wait; a query must still get through.
	var one int
	require.NoError(t, listener.QueryRow(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)

	require.NoError(t, notifier.Exec(ctx, "NOTIFY rosterbot_test, 'hello'"))
	select {
	case f := <-frames:
		assert.Equal(t, "rosterbot_test", f.Notification.Channel)
		assert.Equal(t, "hello", f.Notification.Payload)
	case <-ctx.Done():
		t.Fatal("notification not received")
	}
}
