package app

import (
	"context"
	"time"

	"rosterbot/internal/eventbus"
	"rosterbot/internal/relay"
	"rosterbot/internal/storage"
	logx "rosterbot/pkg/logx"
)

// recordDeliveries appends every relay delivery event to the store until
// ctx ends or events closes.
func recordDeliveries(ctx context.Context, events <-chan eventbus.Event, st storage.Store, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			d, ok := e.Data.(relay.Delivery)
			if !ok {
				continue
			}
			rec := storage.Delivery{
				At:        e.Time,
				SessionID: d.SessionID,
				EventType: d.EventType,
				Number:    d.Number,
				Name:      d.Name,
				ChangedAt: d.ChangedAt,
				ChatID:    d.ChatID,
				ThreadID:  d.ThreadID,
				MessageID: d.MessageID,
				OK:        e.Type == relay.EventDelivered,
				Error:     d.Error,
			}
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := st.AppendDelivery(wctx, rec); err != nil {
				log.Warn("delivery audit write failed", logx.Err(err))
			}
			cancel()
		}
	}
}
