package downtime

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorcore/config"
	"floorcore/store"
)

type recordingEmitter struct {
	opened []*store.DowntimeEvent
	closed []*store.DowntimeEvent
}

func (r *recordingEmitter) EmitDowntimeOpened(d *store.DowntimeEvent) { r.opened = append(r.opened, d) }
func (r *recordingEmitter) EmitDowntimeClosed(d *store.DowntimeEvent) { r.closed = append(r.closed, d) }

func newDetector(t *testing.T) (*Detector, *store.DB, *recordingEmitter, int64) {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	wc := &store.Workcenter{Code: "SAW-1", Enabled: true}
	require.NoError(t, db.CreateWorkcenter(wc))

	emitter := &recordingEmitter{}
	return NewDetector(db, 5*time.Minute, emitter), db, emitter, wc.ID
}

func TestMicroStopClassification(t *testing.T) {
	d, _, emitter, wc := newDetector(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	require.NoError(t, d.OnStop(wc, base, "jam"))
	require.NoError(t, d.OnStart(wc, base.Add(3*time.Minute)))

	require.Len(t, emitter.closed, 1)
	assert.True(t, emitter.closed[0].IsMicroStop, "3 min is below the 5 min threshold")
	assert.Equal(t, "jam", emitter.closed[0].ReasonCode)
}

func TestLongStopIsNotMicro(t *testing.T) {
	d, db, emitter, wc := newDetector(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	require.NoError(t, d.OnStop(wc, base, ""))
	require.NoError(t, d.OnStart(wc, base.Add(10*time.Minute)))

	require.Len(t, emitter.closed, 1)
	assert.False(t, emitter.closed[0].IsMicroStop)

	events, err := db.ListDowntimeByWorkcenter(wc, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].EndTS)
	assert.Equal(t, 10*time.Minute, events[0].Duration(time.Now()))
}

func TestRepeatedStopKeepsOneInterval(t *testing.T) {
	d, db, emitter, wc := newDetector(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	require.NoError(t, d.OnStop(wc, base, ""))
	require.NoError(t, d.OnStop(wc, base.Add(time.Minute), ""))

	events, err := db.ListDowntimeByWorkcenter(wc, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "a second STOP must not open a second interval")
	assert.Len(t, emitter.opened, 1)
}

func TestStartWithoutStopIsNoOp(t *testing.T) {
	d, db, emitter, wc := newDetector(t)

	require.NoError(t, d.OnStart(wc, time.Now()))

	events, err := db.ListDowntimeByWorkcenter(wc, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, emitter.closed)
}

func TestContendedWorkcenterReturnsBusy(t *testing.T) {
	d, _, _, wc := newDetector(t)

	require.True(t, d.locks.TryLock(wc))
	defer d.locks.Unlock(wc)

	require.ErrorIs(t, d.OnStop(wc, time.Now(), ""), ErrBusy)
	require.ErrorIs(t, d.OnStart(wc, time.Now()), ErrBusy)
}

func TestOpenIntervalSurvivesRestart(t *testing.T) {
	d, db, _, wc := newDetector(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	require.NoError(t, d.OnStop(wc, base, ""))

	// A fresh detector over the same store picks up the open interval.
	d2 := NewDetector(db, 5*time.Minute, &recordingEmitter{})
	open, err := d2.Open(wc)
	require.NoError(t, err)
	require.NotNil(t, open)

	require.NoError(t, d2.OnStart(wc, base.Add(time.Hour)))
	open, err = d2.Open(wc)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestOutOfOrderStartClampsToZero(t *testing.T) {
	d, _, emitter, wc := newDetector(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	require.NoError(t, d.OnStop(wc, base, ""))
	require.NoError(t, d.OnStart(wc, base.Add(-time.Minute)))

	require.Len(t, emitter.closed, 1)
	closed := emitter.closed[0]
	require.NotNil(t, closed.EndTS)
	assert.Equal(t, time.Duration(0), closed.Duration(time.Now()))
	assert.True(t, closed.IsMicroStop)
}
