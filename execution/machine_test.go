package execution

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorcore/config"
	"floorcore/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type recordingEmitter struct {
	transitions []string
	orderChange []string
	quality     []int64
}

func (r *recordingEmitter) EmitStepTransition(_ Key, _ int64, oldStatus, newStatus string, _ int64) {
	r.transitions = append(r.transitions, oldStatus+">"+newStatus)
}

func (r *recordingEmitter) EmitOrderStatusChanged(_ int64, oldStatus, newStatus string) {
	r.orderChange = append(r.orderChange, oldStatus+">"+newStatus)
}

func (r *recordingEmitter) EmitQualityRecorded(recordID int64, _ Key, _, _ string, _ int64) {
	r.quality = append(r.quality, recordID)
}

type fixture struct {
	db      *store.DB
	machine *Machine
	emitter *recordingEmitter
	orderID int64
	stepID  int64
	lotID   int64
	wcID    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	wc := &store.Workcenter{Code: "SAW-1", Name: "Saw line 1", Enabled: true}
	require.NoError(t, db.CreateWorkcenter(wc))
	step := &store.ProcessStep{Code: "CUT", Name: "Cutting", Sequence: 1, StandardCycleTime: 0.8}
	require.NoError(t, db.CreateProcessStep(step))
	lot := &store.Lot{Code: "LOT-1", ItemCode: "PLK-90", Origin: "RAW"}
	require.NoError(t, db.CreateLot(lot))
	order := &store.ProductionOrder{ERPOrderCode: "PO-1001", OrderType: "PRODUCTION", Status: OrderOpenNotStarted, ItemCode: "PLK-90", PlannedQty: 100}
	require.NoError(t, db.CreateProductionOrder(order))

	emitter := &recordingEmitter{}
	return &fixture{
		db:      db,
		machine: NewMachine(db, emitter),
		emitter: emitter,
		orderID: order.ID,
		stepID:  step.ID,
		lotID:   lot.ID,
		wcID:    wc.ID,
	}
}

func (f *fixture) event(id, eventType string, ts time.Time) *store.ExecutionEvent {
	return &store.ExecutionEvent{
		ID:           id,
		EventType:    eventType,
		OrderID:      f.orderID,
		LotID:        f.lotID,
		StepID:       f.stepID,
		WorkcenterID: f.wcID,
		OperatorID:   "op-7",
		TS:           ts,
	}
}

func TestStartCountComplete(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	se, err := f.machine.Apply(f.event("e1", EventStart, base))
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, se.Status)
	require.NotNil(t, se.StartedAt)

	se, err = f.machine.Apply(f.event("e2", EventCount, base.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), se.ExecutedCount) // delta defaults to 1

	ev := f.event("e3", EventCount, base.Add(2*time.Minute))
	ev.CountDelta = 4
	se, err = f.machine.Apply(ev)
	require.NoError(t, err)
	assert.Equal(t, int64(5), se.ExecutedCount)
	assert.Equal(t, int64(5), se.GoodCount)

	se, err = f.machine.Apply(f.event("e4", EventComplete, base.Add(3*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, se.Status)
	require.NotNil(t, se.CompletedAt)

	order, err := f.db.GetProductionOrder(f.orderID)
	require.NoError(t, err)
	assert.Equal(t, OrderClosed, order.Status)
	assert.Equal(t, int64(5), order.ExecutedTotalQty)
	assert.Equal(t, int64(5), order.ExecutedGoodQty)

	assert.Contains(t, f.emitter.orderChange, OrderOpenNotStarted+">"+OrderInProgress)
	assert.Contains(t, f.emitter.orderChange, OrderInProgress+">"+OrderClosed)
}

func TestCountBeforeStartRejected(t *testing.T) {
	f := newFixture(t)
	ts := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	_, err := f.machine.Apply(f.event("e1", EventCount, ts))
	require.ErrorIs(t, err, ErrInvalidTransition)

	se, err := f.db.GetStepExecution(f.orderID, f.stepID, f.lotID)
	require.NoError(t, err)
	assert.Nil(t, se, "rejected event must leave no derived state")
}

func TestCountAfterCompleteRejected(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	_, err := f.machine.Apply(f.event("e1", EventStart, base))
	require.NoError(t, err)
	_, err = f.machine.Apply(f.event("e2", EventComplete, base.Add(time.Minute)))
	require.NoError(t, err)

	_, err = f.machine.Apply(f.event("e3", EventCount, base.Add(2*time.Minute)))
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.machine.Apply(f.event("e4", EventStart, base.Add(3*time.Minute)))
	require.ErrorIs(t, err, ErrInvalidTransition)

	se, err := f.db.GetStepExecution(f.orderID, f.stepID, f.lotID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, se.Status)
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	first, err := f.machine.Apply(f.event("e1", EventStart, base))
	require.NoError(t, err)

	second, err := f.machine.Apply(f.event("e2", EventStart, base.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, second.Status)
	assert.Equal(t, first.StartedAt.Unix(), second.StartedAt.Unix(), "re-start must not move the start time")
}

func TestStopDoesNotTransition(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	_, err := f.machine.Apply(f.event("e1", EventStart, base))
	require.NoError(t, err)
	_, err = f.machine.Apply(f.event("e2", EventStop, base.Add(time.Minute)))
	require.NoError(t, err)

	se, err := f.db.GetStepExecution(f.orderID, f.stepID, f.lotID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, se.Status)
}

func TestScrapDecrementsGoodOnly(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	_, err := f.machine.Apply(f.event("e1", EventStart, base))
	require.NoError(t, err)
	count := f.event("e2", EventCount, base.Add(time.Minute))
	count.CountDelta = 5
	_, err = f.machine.Apply(count)
	require.NoError(t, err)

	q := f.event("e3", EventQuality, base.Add(2*time.Minute))
	q.Disposition = DispositionScrapNoReuse
	q.QualityCode = "CRACK"
	q.Qty = 2
	se, err := f.machine.Apply(q)
	require.NoError(t, err)

	assert.Equal(t, int64(5), se.ExecutedCount, "scrap does not undo physical production")
	assert.Equal(t, int64(3), se.GoodCount)
	assert.Equal(t, int64(2), se.ScrapCount)

	records, err := f.db.ListQualityRecordsByOrder(f.orderID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CRACK", records[0].ReasonCode)
	require.Len(t, f.emitter.quality, 1)
}

func TestReuseDispositionKeepsCounts(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	_, err := f.machine.Apply(f.event("e1", EventStart, base))
	require.NoError(t, err)
	count := f.event("e2", EventCount, base.Add(time.Minute))
	count.CountDelta = 3
	_, err = f.machine.Apply(count)
	require.NoError(t, err)

	q := f.event("e3", EventQuality, base.Add(2*time.Minute))
	q.Disposition = DispositionReuse
	q.Qty = 1
	se, err := f.machine.Apply(q)
	require.NoError(t, err)
	assert.Equal(t, int64(3), se.GoodCount)
	assert.Equal(t, int64(0), se.ScrapCount)
}

func TestAlertBeforeStartIsRecorded(t *testing.T) {
	f := newFixture(t)
	ts := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	// A telemetry threshold alert has no disposition and no precondition.
	q := f.event("e1", EventQuality, ts)
	q.QualityCode = "HIGH_TEMP"
	q.Reason = "temperature 92.0 exceeds 80.0"
	se, err := f.machine.Apply(q)
	require.NoError(t, err)
	assert.Nil(t, se, "an alert does not start the step")

	records, err := f.db.ListQualityRecordsByOrder(f.orderID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "HIGH_TEMP", records[0].ReasonCode)
	require.Len(t, f.emitter.quality, 1)

	derived, err := f.db.GetStepExecution(f.orderID, f.stepID, f.lotID)
	require.NoError(t, err)
	assert.Nil(t, derived, "alerts must not create derived state")
}

func TestDispositionQualityBeforeStartRejected(t *testing.T) {
	f := newFixture(t)

	q := f.event("e1", EventQuality, time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC))
	q.Disposition = DispositionScrapNoReuse
	q.Qty = 1
	_, err := f.machine.Apply(q)
	require.ErrorIs(t, err, ErrInvalidTransition)

	records, err := f.db.ListQualityRecordsByOrder(f.orderID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestApplyReturnsBusyWhenKeyContended(t *testing.T) {
	f := newFixture(t)
	key := Key{OrderID: f.orderID, StepID: f.stepID, LotID: f.lotID}

	require.True(t, f.machine.locks.TryLock(key))
	defer f.machine.locks.Unlock(key)

	_, err := f.machine.Apply(f.event("e1", EventStart, time.Now()))
	require.ErrorIs(t, err, ErrBusy)
}

func TestFoldIsDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	mk := func(id, eventType string, offset time.Duration, delta int64) *store.ExecutionEvent {
		return &store.ExecutionEvent{
			ID: id, EventType: eventType,
			OrderID: 1, StepID: 2, LotID: 3, WorkcenterID: 4,
			TS: base.Add(offset), CountDelta: delta,
		}
	}
	events := []*store.ExecutionEvent{
		mk("a", EventStart, 0, 0),
		mk("b", EventCount, time.Minute, 2),
		mk("c", EventCount, 2*time.Minute, 3),
		mk("d", EventComplete, 3*time.Minute, 0),
	}
	shuffled := []*store.ExecutionEvent{events[2], events[0], events[3], events[1]}

	first := Fold(events)
	second := Fold(shuffled)
	require.Equal(t, first, second, "fold order depends on (ts, id), not input order")

	key := Key{OrderID: 1, StepID: 2, LotID: 3}
	se := first[key]
	require.NotNil(t, se)
	assert.Equal(t, StatusCompleted, se.Status)
	assert.Equal(t, int64(5), se.ExecutedCount)
}

func TestFoldSkipsRejectedEvents(t *testing.T) {
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	events := []*store.ExecutionEvent{
		{ID: "a", EventType: EventCount, OrderID: 1, StepID: 1, LotID: 1, TS: base, CountDelta: 7},
		{ID: "b", EventType: EventStart, OrderID: 1, StepID: 1, LotID: 1, TS: base.Add(time.Minute)},
		{ID: "c", EventType: EventCount, OrderID: 1, StepID: 1, LotID: 1, TS: base.Add(2 * time.Minute), CountDelta: 2},
	}
	states := Fold(events)
	se := states[Key{OrderID: 1, StepID: 1, LotID: 1}]
	require.NotNil(t, se)
	assert.Equal(t, int64(2), se.ExecutedCount, "count before start must not fold in")
}

func TestRebuildMatchesHistory(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	for _, ev := range []*store.ExecutionEvent{
		f.event("e1", EventStart, base),
		func() *store.ExecutionEvent {
			e := f.event("e2", EventCount, base.Add(time.Minute))
			e.CountDelta = 10
			return e
		}(),
		f.event("e3", EventComplete, base.Add(2*time.Minute)),
	} {
		require.NoError(t, f.db.AppendExecutionEvent(ev))
		_, err := f.machine.Apply(ev)
		require.NoError(t, err)
	}
	before, err := f.db.GetStepExecution(f.orderID, f.stepID, f.lotID)
	require.NoError(t, err)

	// Corrupt the derived row, then refold from history.
	corrupt := *before
	corrupt.ExecutedCount = 999
	corrupt.Status = StatusInProgress
	require.NoError(t, f.db.UpsertStepExecution(&corrupt))

	require.NoError(t, f.machine.Rebuild(f.orderID))

	after, err := f.db.GetStepExecution(f.orderID, f.stepID, f.lotID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.ExecutedCount, after.ExecutedCount)
	assert.Equal(t, before.GoodCount, after.GoodCount)

	order, err := f.db.GetProductionOrder(f.orderID)
	require.NoError(t, err)
	assert.Equal(t, OrderClosed, order.Status)
}

func TestDeriveOrderStatus(t *testing.T) {
	cases := []struct {
		name  string
		execs []*store.StepExecution
		want  string
	}{
		{"no steps", nil, OrderOpenNotStarted},
		{"all untouched", []*store.StepExecution{{Status: StatusNotStarted}}, OrderOpenNotStarted},
		{"one running", []*store.StepExecution{{Status: StatusInProgress}, {Status: StatusNotStarted}}, OrderInProgress},
		{"all completed", []*store.StepExecution{{Status: StatusCompleted}, {Status: StatusCompleted}}, OrderClosed},
		{"partial", []*store.StepExecution{{Status: StatusCompleted}, {Status: StatusNotStarted}}, OrderOpenPartial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _, _ := deriveOrderStatus(tc.execs)
			assert.Equal(t, tc.want, got)
		})
	}
}
