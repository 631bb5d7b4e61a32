package app

import (
	"github.com/robfig/cron/v3"

	"rosterbot/internal/relay"
	logx "rosterbot/pkg/logx"
)

type relaySnapshotter interface {
	Snapshot() relay.Snapshot
}

// statusJob logs the relay counters; scheduled by status.schedule.
func statusJob(rs relaySnapshotter, dropped func() uint64, log logx.Logger) cron.Job {
	return cron.FuncJob(func() {
		s := rs.Snapshot()
		fields := []logx.Field{
			logx.String("state", s.State),
			logx.Uint64("sessions", s.Sessions),
			logx.Uint64("notifications", s.Notifications),
			logx.Uint64("posted", s.Posted),
			logx.Uint64("post_failed", s.PostFailed),
			logx.Uint64("empty_fetches", s.EmptyFetches),
		}
		if !s.Since.IsZero() {
			fields = append(fields, logx.Time("since", s.Since))
		}
		if s.LastError != "" {
			fields = append(fields, logx.String("last_error", s.LastError), logx.Time("last_error_at", s.LastErrorAt))
		}
		if dropped != nil {
			fields = append(fields, logx.Uint64("bus_dropped", dropped()))
		}
		log.Info("relay status", fields...)
	})
}

func newStatusCron(spec string, job cron.Job, log logx.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithLogger(cronLogger{log: log}), cron.WithChain(cron.Recover(cronLogger{log: log})))
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, err
	}
	return c, nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
