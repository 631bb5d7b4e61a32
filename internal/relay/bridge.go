package relay

import (
	"context"
	"errors"
	"sync/atomic"

	logx "rosterbot/pkg/logx"
)

// Bridge pumps notification frames from a FrameSource into a Queue.
type Bridge struct {
	src   FrameSource
	queue *Queue
	log   logx.Logger

	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

func NewBridge(src FrameSource, queue *Queue, log logx.Logger) *Bridge {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bridge{src: src, queue: queue, log: log}
}

// Run forwards notifications until the source fails or ctx ends. Either
// way the queue is closed on return. Source errors are returned as
// KindConnection errors and never retried here.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		f, err := b.src.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				b.queue.Close(ctx.Err())
				return ctx.Err()
			}
			err = newError(KindConnection, "poll", err)
			b.log.Warn("notification bridge stopped", logx.Err(err))
			b.queue.Close(err)
			return err
		}

		if f.Kind != FrameNotification {
			b.dropped.Add(1)
			continue
		}
		if !b.queue.Push(f.Notification) {
			return ErrQueueClosed
		}
		b.forwarded.Add(1)
		b.log.Trace("notification forwarded",
			logx.String("channel", f.Notification.Channel),
			logx.Int("queued", b.queue.Len()),
		)
	}
}

// Forwarded counts notifications pushed to the queue.
func (b *Bridge) Forwarded() uint64 { return b.forwarded.Load() }
