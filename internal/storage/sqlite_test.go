package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "rosterbot/pkg/logx"
)

func openTemp(t *testing.T, maxRows int) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "audit", "rosterbot.db"), MaxRows: maxRows}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		assert.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	assert.Error(t, err)
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()
	st := openTemp(t, 0)
	ctx := context.Background()
	changed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendDelivery(ctx, Delivery{
		SessionID: "01HX", EventType: "added", Number: 42, Name: "Jane",
		ChangedAt: changed, ChatID: -100, ThreadID: 3, MessageID: 555, OK: true,
	}))
	require.NoError(t, st.AppendDelivery(ctx, Delivery{
		SessionID: "01HX", EventType: "removed", Number: 7, Name: "Sam",
		ChatID: -100, Error: "Forbidden",
	}))

	got, err := st.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "removed", got[0].EventType)
	assert.False(t, got[0].OK)
	assert.Equal(t, "Forbidden", got[0].Error)
	assert.Zero(t, got[0].MessageID)
	assert.True(t, got[0].ChangedAt.IsZero())

	assert.Equal(t, "Jane", got[1].Name)
	assert.True(t, got[1].OK)
	assert.Equal(t, 555, got[1].MessageID)
	assert.True(t, changed.Equal(got[1].ChangedAt))
	assert.False(t, got[1].At.IsZero())
}

func TestPruneKeepsNewest(t *testing.T) {
	t.Parallel()
	st := openTemp(t, 10)
	ctx := context.Background()
	for i := range 100 {
		require.NoError(t, st.AppendDelivery(ctx, Delivery{EventType: "added", Number: int64(i), ChatID: 1, OK: true}))
	}
	got, err := st.Recent(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.EqualValues(t, 99, got[0].Number)
	assert.EqualValues(t, 90, got[9].Number)
}
