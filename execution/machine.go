package execution

import (
	"fmt"
	"sort"

	"github.com/EagleChen/mapmutex"

	"floorcore/store"
)

// Emitter is the interface adapters must satisfy to bridge execution events
// to the engine.
type Emitter interface {
	EmitStepTransition(key Key, workcenterID int64, oldStatus, newStatus string, executedCount int64)
	EmitOrderStatusChanged(orderID int64, oldStatus, newStatus string)
	EmitQualityRecorded(recordID int64, key Key, disposition, reasonCode string, qty int64)
}

// Machine derives step and order execution state from accepted events.
// Updates are serialized per (order, step, lot) key; events for different
// keys proceed in parallel. There is no global lock.
type Machine struct {
	db      *store.DB
	locks   *mapmutex.Mutex
	emitter Emitter
}

func NewMachine(db *store.DB, emitter Emitter) *Machine {
	return &Machine{
		db:      db,
		locks:   mapmutex.NewMapMutex(),
		emitter: emitter,
	}
}

// Apply folds one accepted event into the derived state for its key.
// The caller has already appended the event to the store.
func (m *Machine) Apply(ev *store.ExecutionEvent) (*store.StepExecution, error) {
	key := Key{OrderID: ev.OrderID, StepID: ev.StepID, LotID: ev.LotID}

	// TryLock backs off and retries internally before giving up.
	if !m.locks.TryLock(key) {
		return nil, fmt.Errorf("apply %s: %w", key, ErrBusy)
	}
	defer m.locks.Unlock(key)

	se, err := m.db.GetStepExecution(key.OrderID, key.StepID, key.LotID)
	if err != nil {
		return nil, fmt.Errorf("load step execution %s: %w", key, err)
	}
	oldStatus := StatusNotStarted
	if se != nil {
		oldStatus = se.Status
	}

	se, err = applyEvent(se, ev)
	if err != nil {
		return nil, err
	}

	if se != nil {
		if err := m.db.UpsertStepExecution(se); err != nil {
			return nil, fmt.Errorf("persist step execution %s: %w", key, err)
		}
	}

	if ev.EventType == EventQuality {
		rec := &store.QualityRecord{
			OrderID:     ev.OrderID,
			LotID:       ev.LotID,
			StepID:      ev.StepID,
			Disposition: ev.Disposition,
			ReasonCode:  ev.QualityCode,
			Qty:         ev.Qty,
			TS:          ev.TS,
		}
		if err := m.db.CreateQualityRecord(rec); err != nil {
			return nil, fmt.Errorf("persist quality record %s: %w", key, err)
		}
		m.emitter.EmitQualityRecorded(rec.ID, key, rec.Disposition, rec.ReasonCode, rec.Qty)
	}

	if se == nil {
		// SCAN, STOP and threshold alerts are recorded facts with no
		// derived state of their own.
		return nil, nil
	}

	if se.Status != oldStatus || ev.EventType == EventCount {
		m.emitter.EmitStepTransition(key, se.WorkcenterID, oldStatus, se.Status, se.ExecutedCount)
	}

	if err := m.recomputeOrderStatus(ev.OrderID); err != nil {
		return nil, err
	}
	return se, nil
}

// applyEvent is the pure transition function. A nil state means NOT_STARTED
// with zero counts. Returning (nil, nil) records the event without touching
// derived state.
func applyEvent(se *store.StepExecution, ev *store.ExecutionEvent) (*store.StepExecution, error) {
	key := Key{OrderID: ev.OrderID, StepID: ev.StepID, LotID: ev.LotID}
	status := StatusNotStarted
	if se != nil {
		status = se.Status
	}

	switch ev.EventType {
	case EventScan, EventStop:
		// No transition. STOP only closes an equipment-run interval for
		// downtime accounting; it never moves IN_PROGRESS back.
		return se, nil

	case EventStart:
		switch status {
		case StatusCompleted:
			return nil, invalidTransition(key, ev.ID, ev.EventType, status)
		case StatusInProgress:
			return se, nil // idempotent re-start, recorded but non-transitioning
		}
		ts := ev.TS
		return &store.StepExecution{
			OrderID:      key.OrderID,
			StepID:       key.StepID,
			LotID:        key.LotID,
			WorkcenterID: ev.WorkcenterID,
			Status:       StatusInProgress,
			OperatorID:   ev.OperatorID,
			StartedAt:    &ts,
		}, nil

	case EventCount:
		if status != StatusInProgress {
			return nil, invalidTransition(key, ev.ID, ev.EventType, status)
		}
		delta := ev.CountDelta
		if delta <= 0 {
			delta = 1
		}
		se.ExecutedCount += delta
		se.GoodCount += delta // good until a quality event says otherwise
		return se, nil

	case EventQuality:
		if ev.Disposition == "" {
			// A threshold alert carries no disposition and may arrive
			// before the step ever starts. It is recorded either way;
			// the counts do not move.
			return se, nil
		}
		if se == nil {
			return nil, invalidTransition(key, ev.ID, ev.EventType, status)
		}
		if ev.Disposition == DispositionScrapNoReuse {
			// The piece was still physically produced: total stands,
			// only the good tally drops.
			se.GoodCount -= ev.Qty
			se.ScrapCount += ev.Qty
		}
		return se, nil

	case EventComplete:
		if status != StatusInProgress {
			return nil, invalidTransition(key, ev.ID, ev.EventType, status)
		}
		ts := ev.TS
		se.Status = StatusCompleted
		se.CompletedAt = &ts
		return se, nil

	default:
		return nil, fmt.Errorf("unknown event type %q (event %s)", ev.EventType, ev.ID)
	}
}

// recomputeOrderStatus scans all step executions under an order and derives
// order status and executed quantities.
func (m *Machine) recomputeOrderStatus(orderID int64) error {
	order, err := m.db.GetProductionOrder(orderID)
	if err != nil {
		return fmt.Errorf("load order %d: %w", orderID, err)
	}

	execs, err := m.db.ListStepExecutionsByOrder(orderID)
	if err != nil {
		return fmt.Errorf("list step executions for order %d: %w", orderID, err)
	}

	status, goodQty, totalQty := deriveOrderStatus(execs)
	if status == order.Status && goodQty == order.ExecutedGoodQty && totalQty == order.ExecutedTotalQty {
		return nil
	}

	if err := m.db.UpdateOrderExecution(orderID, status, goodQty, totalQty); err != nil {
		return fmt.Errorf("update order %d: %w", orderID, err)
	}
	if status != order.Status {
		m.emitter.EmitOrderStatusChanged(orderID, order.Status, status)
	}
	return nil
}

func deriveOrderStatus(execs []*store.StepExecution) (status string, goodQty, totalQty int64) {
	if len(execs) == 0 {
		return OrderOpenNotStarted, 0, 0
	}

	completed := 0
	running := false
	touched := false
	for _, se := range execs {
		totalQty += se.ExecutedCount
		goodQty += se.GoodCount
		switch se.Status {
		case StatusCompleted:
			completed++
			touched = true
		case StatusInProgress:
			running = true
		}
		if se.ExecutedCount > 0 {
			touched = true
		}
	}

	switch {
	case completed == len(execs):
		return OrderClosed, goodQty, totalQty
	case running:
		return OrderInProgress, goodQty, totalQty
	case touched:
		return OrderOpenPartial, goodQty, totalQty
	default:
		return OrderOpenNotStarted, goodQty, totalQty
	}
}

// Fold replays an event list into derived state, ordered by timestamp and
// tie-broken by event id. The result depends only on the input events, so
// replaying the same list always yields the same state.
func Fold(events []*store.ExecutionEvent) map[Key]*store.StepExecution {
	sorted := make([]*store.ExecutionEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].TS.Equal(sorted[j].TS) {
			return sorted[i].TS.Before(sorted[j].TS)
		}
		return sorted[i].ID < sorted[j].ID
	})

	states := make(map[Key]*store.StepExecution)
	for _, ev := range sorted {
		key := Key{OrderID: ev.OrderID, StepID: ev.StepID, LotID: ev.LotID}
		next, err := applyEvent(states[key], ev)
		if err != nil || next == nil {
			continue // rejected and stateless events leave the fold unchanged
		}
		states[key] = next
	}
	return states
}

// Rebuild discards derived rows for an order and refolds its event history.
// Because derived state is a pure function of the store, this is always safe.
func (m *Machine) Rebuild(orderID int64) error {
	events, err := m.db.ListExecutionEventsByOrder(orderID)
	if err != nil {
		return fmt.Errorf("list events for order %d: %w", orderID, err)
	}
	if err := m.db.DeleteStepExecutionsByOrder(orderID); err != nil {
		return fmt.Errorf("clear step executions for order %d: %w", orderID, err)
	}
	for _, se := range Fold(events) {
		if err := m.db.UpsertStepExecution(se); err != nil {
			return fmt.Errorf("rebuild step execution order %d: %w", orderID, err)
		}
	}
	return m.recomputeOrderStatus(orderID)
}
