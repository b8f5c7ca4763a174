package oee

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorcore/config"
	"floorcore/execution"
	"floorcore/store"
)

var testShifts = []config.ShiftConfig{
	{Number: 1, Start: "06:00", End: "14:00"},
	{Number: 2, Start: "14:00", End: "22:00"},
	{Number: 3, Start: "22:00", End: "06:00"},
}

type recordingEmitter struct {
	snapshots []*store.OEESnapshot
}

func (r *recordingEmitter) EmitOEESnapshot(s *store.OEESnapshot) {
	r.snapshots = append(r.snapshots, s)
}

type fixture struct {
	db      *store.DB
	agg     *Aggregator
	emitter *recordingEmitter
	wcID    int64
	stepID  int64
	orderID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	wc := &store.Workcenter{Code: "SAW-1", Enabled: true}
	require.NoError(t, db.CreateWorkcenter(wc))
	step := &store.ProcessStep{Code: "CUT", Sequence: 1, StandardCycleTime: 0.8}
	require.NoError(t, db.CreateProcessStep(step))
	order := &store.ProductionOrder{ERPOrderCode: "PO-1001", Status: "IN_PROGRESS"}
	require.NoError(t, db.CreateProductionOrder(order))

	emitter := &recordingEmitter{}
	return &fixture{
		db:      db,
		agg:     NewAggregator(db, testShifts, emitter),
		emitter: emitter,
		wcID:    wc.ID,
		stepID:  step.ID,
		orderID: order.ID,
	}
}

func (f *fixture) appendCount(t *testing.T, id string, ts time.Time, delta int64) {
	t.Helper()
	require.NoError(t, f.db.AppendExecutionEvent(&store.ExecutionEvent{
		ID:           id,
		EventType:    execution.EventCount,
		OrderID:      f.orderID,
		StepID:       f.stepID,
		WorkcenterID: f.wcID,
		TS:           ts,
		CountDelta:   delta,
	}))
}

func TestResolveWindow(t *testing.T) {
	f := newFixture(t)

	w, err := f.agg.ResolveWindow("2026-03-05", 1, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC), w.End)

	// Night shift crosses midnight into the next day.
	w, err = f.agg.ResolveWindow("2026-03-05", 3, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 5, 22, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 3, 6, 6, 0, 0, 0, time.UTC), w.End)

	_, err = f.agg.ResolveWindow("2026-03-05", 9, time.UTC)
	require.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestCurrentWindowNightShift(t *testing.T) {
	f := newFixture(t)

	w, err := f.agg.CurrentWindow(time.Date(2026, 3, 5, 23, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, w.ShiftNumber)
	assert.Equal(t, "2026-03-05", w.Date)

	// Early morning still belongs to the shift that started yesterday evening.
	w, err = f.agg.CurrentWindow(time.Date(2026, 3, 6, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, w.ShiftNumber)
	assert.Equal(t, "2026-03-05", w.Date)

	empty := NewAggregator(f.db, nil, nil)
	_, err = empty.CurrentWindow(time.Now())
	require.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestComputeFactors(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)

	// One 48-minute stoppage.
	dt := &store.DowntimeEvent{WorkcenterID: f.wcID, StartTS: start.Add(time.Hour)}
	require.NoError(t, f.db.CreateDowntimeEvent(dt))
	require.NoError(t, f.db.CloseDowntimeEvent(dt.ID, start.Add(time.Hour+48*time.Minute), false))

	// 500 pieces at 0.8 min ideal cycle, 10 of them scrapped.
	for i := 0; i < 5; i++ {
		f.appendCount(t, string(rune('a'+i)), start.Add(time.Duration(2+i)*time.Hour), 100)
	}
	require.NoError(t, f.db.AppendExecutionEvent(&store.ExecutionEvent{
		ID:           "scrap",
		EventType:    execution.EventQuality,
		OrderID:      f.orderID,
		StepID:       f.stepID,
		WorkcenterID: f.wcID,
		TS:           start.Add(7 * time.Hour),
		Disposition:  "SCRAP_NO_REUSE",
		Qty:          10,
	}))

	w, err := f.agg.ResolveWindow("2026-03-05", 1, time.UTC)
	require.NoError(t, err)
	s, err := f.agg.Compute(f.wcID, w, time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.InDelta(t, 480.0, s.PlannedTime, 1e-9)
	assert.InDelta(t, 48.0, s.Downtime, 1e-9)
	assert.InDelta(t, 432.0, s.OperatingTime, 1e-9)
	assert.InDelta(t, 0.90, s.Availability, 1e-9)
	assert.InDelta(t, 400.0/432.0, s.Performance, 1e-9)
	assert.InDelta(t, 0.98, s.Quality, 1e-9)
	assert.InDelta(t, s.Availability*s.Performance*s.Quality, s.OEE, 1e-12)
	assert.InDelta(t, 0.817, s.OEE, 0.001)
	assert.Equal(t, int64(500), s.TotalPieces)
	assert.Equal(t, int64(490), s.GoodPieces)
}

func TestComputeFailsOnMissingCycleTime(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)
	w, err := f.agg.ResolveWindow("2026-03-05", 1, time.UTC)
	require.NoError(t, err)

	// Counts against a step nobody ever configured.
	require.NoError(t, f.db.AppendExecutionEvent(&store.ExecutionEvent{
		ID:           "ghost",
		EventType:    execution.EventCount,
		OrderID:      f.orderID,
		StepID:       9999,
		WorkcenterID: f.wcID,
		TS:           start.Add(time.Hour),
		CountDelta:   100,
	}))
	_, err = f.agg.Compute(f.wcID, w, w.End.Add(time.Hour))
	require.ErrorIs(t, err, ErrConfigurationMissing)

	// A configured step with a zero cycle time is just as unusable.
	wc2 := &store.Workcenter{Code: "SAW-2", Enabled: true}
	require.NoError(t, f.db.CreateWorkcenter(wc2))
	zero := &store.ProcessStep{Code: "PACK", Sequence: 2}
	require.NoError(t, f.db.CreateProcessStep(zero))
	require.NoError(t, f.db.AppendExecutionEvent(&store.ExecutionEvent{
		ID:           "zero-ct",
		EventType:    execution.EventCount,
		OrderID:      f.orderID,
		StepID:       zero.ID,
		WorkcenterID: wc2.ID,
		TS:           start.Add(time.Hour),
		CountDelta:   10,
	}))
	_, err = f.agg.Compute(wc2.ID, w, w.End.Add(time.Hour))
	require.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestOEEIsProductOfFactors(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(1))
	w, err := f.agg.ResolveWindow("2026-03-05", 1, time.UTC)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		wc := &store.Workcenter{Code: fmt.Sprintf("WC-%02d", i), Enabled: true}
		require.NoError(t, f.db.CreateWorkcenter(wc))

		if downMin := rng.Intn(480); downMin > 0 {
			dt := &store.DowntimeEvent{WorkcenterID: wc.ID, StartTS: w.Start}
			require.NoError(t, f.db.CreateDowntimeEvent(dt))
			require.NoError(t, f.db.CloseDowntimeEvent(dt.ID, w.Start.Add(time.Duration(downMin)*time.Minute), false))
		}
		if pieces := int64(rng.Intn(700)); pieces > 0 {
			require.NoError(t, f.db.AppendExecutionEvent(&store.ExecutionEvent{
				ID:           fmt.Sprintf("c-%02d", i),
				EventType:    execution.EventCount,
				OrderID:      f.orderID,
				StepID:       f.stepID,
				WorkcenterID: wc.ID,
				TS:           w.Start.Add(time.Minute),
				CountDelta:   pieces,
			}))
			require.NoError(t, f.db.AppendExecutionEvent(&store.ExecutionEvent{
				ID:           fmt.Sprintf("q-%02d", i),
				EventType:    execution.EventQuality,
				OrderID:      f.orderID,
				StepID:       f.stepID,
				WorkcenterID: wc.ID,
				TS:           w.Start.Add(2 * time.Minute),
				Disposition:  "SCRAP_NO_REUSE",
				Qty:          int64(rng.Intn(int(pieces) + 1)),
			}))
		}

		s, err := f.agg.Compute(wc.ID, w, w.End.Add(time.Hour))
		require.NoError(t, err)
		for name, v := range map[string]float64{
			"availability": s.Availability, "performance": s.Performance, "quality": s.Quality,
		} {
			assert.GreaterOrEqual(t, v, 0.0, name)
			assert.LessOrEqual(t, v, 1.0, name)
		}
		assert.InDelta(t, s.Availability*s.Performance*s.Quality, s.OEE, 1e-12)
	}
}

func TestComputeEmptyWindow(t *testing.T) {
	f := newFixture(t)

	w, err := f.agg.ResolveWindow("2026-03-05", 1, time.UTC)
	require.NoError(t, err)
	s, err := f.agg.Compute(f.wcID, w, w.End.Add(time.Hour))
	require.NoError(t, err)

	assert.InDelta(t, 1.0, s.Availability, 1e-9)
	assert.InDelta(t, 0.0, s.Performance, 1e-9)
	assert.InDelta(t, 1.0, s.Quality, 1e-9, "no production means no quality loss")
	assert.Zero(t, s.TotalPieces)
}

func TestComputeClipsOpenDowntimeToWindow(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)

	// Stoppage still open at the window end.
	dt := &store.DowntimeEvent{WorkcenterID: f.wcID, StartTS: start.Add(7 * time.Hour)}
	require.NoError(t, f.db.CreateDowntimeEvent(dt))

	w, err := f.agg.ResolveWindow("2026-03-05", 1, time.UTC)
	require.NoError(t, err)
	s, err := f.agg.Compute(f.wcID, w, w.End.Add(24*time.Hour))
	require.NoError(t, err)

	assert.InDelta(t, 60.0, s.Downtime, 1e-9, "open interval clipped at window end")
}

func TestSnapshotIsIdempotent(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)
	f.appendCount(t, "a", start.Add(time.Hour), 50)
	asOf := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)

	first, err := f.agg.Snapshot(f.wcID, "2026-03-05", 1, asOf)
	require.NoError(t, err)
	second, err := f.agg.Snapshot(f.wcID, "2026-03-05", 1, asOf)
	require.NoError(t, err)

	assert.Equal(t, first.OEE, second.OEE)
	assert.Equal(t, first.TotalPieces, second.TotalPieces)

	rows, err := f.db.ListOEESnapshots(f.wcID, "", "")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "recompute replaces the window's row")
	assert.Len(t, f.emitter.snapshots, 2)
}

func TestInFlightWindowUsesElapsedTime(t *testing.T) {
	f := newFixture(t)

	w, err := f.agg.ResolveWindow("2026-03-05", 1, time.UTC)
	require.NoError(t, err)
	asOf := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	s, err := f.agg.Compute(f.wcID, w, asOf)
	require.NoError(t, err)

	assert.InDelta(t, 240.0, s.PlannedTime, 1e-9, "mid-shift planned time covers elapsed portion only")
}
