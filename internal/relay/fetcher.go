package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const DefaultTable = "roster_events"

// Fetcher reads the newest row of the roster change log.
type Fetcher struct {
	q   rowQuerier
	sql string
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

func NewFetcher(conn rowQuerier, table string) *Fetcher {
	return &Fetcher{q: conn, sql: LatestEventSQL(table)}
}

// LatestEventSQL builds the newest-row query for table. The name may be
// schema-qualified ("audit.roster_events").
func LatestEventSQL(table string) string {
	if table == "" {
		table = DefaultTable
	}
	ident := pgx.Identifier(strings.Split(table, ".")).Sanitize()
	return fmt.Sprintf(
		"SELECT event_type, number, name, ao_datetime, event_time FROM %s ORDER BY event_time DESC LIMIT 1",
		ident,
	)
}

// Fetch returns the newest event. ok is false when the table is empty.
func (f *Fetcher) Fetch(ctx context.Context) (ev RosterEvent, ok bool, err error) {
	var (
		rawType string
		number  int64
		name    string
	)
	err = f.q.QueryRow(ctx, f.sql).Scan(&rawType, &number, &name, &ev.CreatedAt, &ev.ChangedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RosterEvent{}, false, nil
	}
	if err != nil {
		return RosterEvent{}, false, newError(KindQuery, "fetch latest event", err)
	}
	ev.Type = ParseEventType(rawType)
	ev.RawType = rawType
	ev.Number = number
	ev.Name = name
	return ev, true, nil
}
