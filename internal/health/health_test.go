package health

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

var at = time.Date(2024, 2, 2, 2, 0, 0, 0, time.UTC)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestProbesRecordHeartbeats(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	m := NewMonitor(NewSQLRecorder(conn), conn, func() time.Time { return at }, nil)

	assert.Equal(t, StatusUp, m.Server(ctx).Status)
	assert.Equal(t, StatusUp, m.Database(ctx).Status)
	hb := m.Client(ctx, "10.1.1.1")
	assert.Equal(t, "Client 10.1.1.1 last seen", hb.Message)

	for _, c := range []string{ComponentServer, ComponentDatabase, ComponentClient} {
		got, err := m.Latest(ctx, c)
		require.NoError(t, err, c)
		assert.Equal(t, StatusUp, got.Status)
		assert.Equal(t, at, got.CreatedAt)
	}
}

func TestLatestWithoutHeartbeat(t *testing.T) {
	conn := openDB(t)
	_, err := NewSQLRecorder(conn).Latest(context.Background(), ComponentServer)
	require.ErrorIs(t, err, ErrNoHeartbeat)
}

type memRecorder struct {
	fail error
	got  []Heartbeat
}

func (m *memRecorder) Record(_ context.Context, hb Heartbeat) error {
	if m.fail != nil {
		return m.fail
	}
	m.got = append(m.got, hb)
	return nil
}

func (m *memRecorder) Latest(context.Context, string) (Heartbeat, error) {
	return Heartbeat{}, ErrNoHeartbeat
}

func TestDatabaseDown(t *testing.T) {
	conn := openDB(t)
	rec := &memRecorder{}
	m := NewMonitor(rec, conn, nil, nil)
	require.NoError(t, conn.Close())

	hb := m.Database(context.Background())
	assert.Equal(t, StatusDown, hb.Status)
	require.Len(t, rec.got, 1)
	assert.Equal(t, StatusDown, rec.got[0].Status)
}

func TestServerDownWhenRecordingFails(t *testing.T) {
	rec := &memRecorder{fail: errors.New("read-only")}
	hb := NewMonitor(rec, nil, nil, nil).Server(context.Background())
	assert.Equal(t, StatusDown, hb.Status)
	assert.Contains(t, hb.Message, "read-only")
}
