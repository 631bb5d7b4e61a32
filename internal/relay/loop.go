package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"rosterbot/internal/eventbus"
	kit "rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"
)

const DefaultChannel = "roster_changes"

// LoopConfig is the static part of a relay loop.
type LoopConfig struct {
	Channel     string
	Table       string
	Target      kit.ChatTarget
	SendOptions *kit.SendOptions
	PostTimeout time.Duration // 0 = no timeout
}

// Loop subscribes and then turns every queued notification into at most one
// chat message.
type Loop struct {
	cfg     LoopConfig
	conn    Conn
	queue   *Queue
	fetcher *Fetcher
	sender  kit.Sender
	log     logx.Logger
	bus     eventbus.Bus
	stats   *Stats

	sessionID   string
	onListening func()
}

func NewLoop(cfg LoopConfig, conn Conn, queue *Queue, sender kit.Sender, log logx.Logger) *Loop {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		cfg:     cfg,
		conn:    conn,
		queue:   queue,
		fetcher: NewFetcher(conn, cfg.Table),
		sender:  sender,
		log:     log,
		stats:   &Stats{},
	}
}

// ListenSQL is the subscribe command for channel.
func ListenSQL(channel string) string {
	return "LISTEN " + pgx.Identifier{channel}.Sanitize()
}

// Run returns only on a fatal error (or ctx end). Send failures are
// logged and skipped.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.conn.Exec(ctx, ListenSQL(l.cfg.Channel)); err != nil {
		return newError(KindSubscribe, "listen "+l.cfg.Channel, err)
	}
	l.log.Info("listening for roster changes", logx.String("channel", l.cfg.Channel))
	if l.onListening != nil {
		l.onListening()
	}

	for {
		n, err := l.queue.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return newError(KindConnection, "receive", err)
		}
		if err := l.handle(ctx, n); err != nil {
			return err
		}
	}
}

func (l *Loop) handle(ctx context.Context, n Notification) error {
	l.stats.Notifications.Add(1)
	l.log.Debug("change notification received",
		logx.String("channel", n.Channel),
		logx.String("payload", n.Payload),
	)

	ev, ok, err := l.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	if !ok {
		l.stats.EmptyFetches.Add(1)
		l.log.Debug("roster change log is empty; nothing to post")
		return nil
	}
	l.stats.Fetched.Add(1)
	l.log.Info("roster change",
		logx.String("type", ev.Type.String()),
		logx.Int64("number", ev.Number),
		logx.String("name", ev.Name),
		logx.Time("event_time", ev.ChangedAt),
	)

	msg := Message(l.cfg.Target, ev)
	ref, err := l.post(ctx, msg)
	if err != nil {
		perr := newError(KindPost, "send", err)
		l.stats.PostFailed.Add(1)
		l.log.Warn("roster message not delivered", logx.Err(perr), logx.Int64("chat_id", msg.Target.ChatID))
		l.publish(EventPostFailed, ev, msg, ref, perr)
		return nil
	}
	l.stats.Posted.Add(1)
	l.log.Debug("roster message posted", logx.Int64("chat_id", ref.ChatID), logx.Int("message_id", ref.MessageID))
	l.publish(EventDelivered, ev, msg, ref, nil)
	return nil
}

func (l *Loop) post(ctx context.Context, msg OutboundMessage) (kit.MessageRef, error) {
	if l.sender == nil {
		return kit.MessageRef{}, ErrNoSender
	}
	if l.cfg.PostTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.PostTimeout)
		defer cancel()
	}
	ref, err := l.sender.SendText(ctx, msg.Target, msg.Text, l.cfg.SendOptions)
	if err != nil {
		return ref, fmt.Errorf("chat %d: %w", msg.Target.ChatID, err)
	}
	return ref, nil
}

func (l *Loop) publish(typ string, ev RosterEvent, msg OutboundMessage, ref kit.MessageRef, err error) {
	if l.bus == nil {
		return
	}
	d := Delivery{
		SessionID: l.sessionID,
		EventType: ev.Type.String(),
		Number:    ev.Number,
		Name:      ev.Name,
		ChangedAt: ev.ChangedAt,
		ChatID:    msg.Target.ChatID,
		ThreadID:  msg.Target.ThreadID,
		MessageID: ref.MessageID,
		Text:      msg.Text,
	}
	if err != nil {
		d.Error = err.Error()
	}
	l.bus.Publish(eventbus.Event{Type: typ, Data: d})
}
