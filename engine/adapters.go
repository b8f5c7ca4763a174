package engine

import (
	"floorcore/execution"
	"floorcore/store"
)

// machineEmitter bridges the state machine's emitter interface to the EventBus.
type machineEmitter struct {
	bus *EventBus
}

func (e *machineEmitter) EmitStepTransition(key execution.Key, workcenterID int64, oldStatus, newStatus string, executedCount int64) {
	e.bus.Emit(Event{Type: EventStepTransition, Payload: StepTransitionEvent{
		OrderID:       key.OrderID,
		StepID:        key.StepID,
		LotID:         key.LotID,
		WorkcenterID:  workcenterID,
		OldStatus:     oldStatus,
		NewStatus:     newStatus,
		ExecutedCount: executedCount,
	}})
}

func (e *machineEmitter) EmitOrderStatusChanged(orderID int64, oldStatus, newStatus string) {
	e.bus.Emit(Event{Type: EventOrderStatusChanged, Payload: OrderStatusChangedEvent{
		OrderID:   orderID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}})
}

func (e *machineEmitter) EmitQualityRecorded(recordID int64, key execution.Key, disposition, reasonCode string, qty int64) {
	e.bus.Emit(Event{Type: EventQualityRecorded, Payload: QualityRecordedEvent{
		RecordID:    recordID,
		OrderID:     key.OrderID,
		StepID:      key.StepID,
		LotID:       key.LotID,
		Disposition: disposition,
		ReasonCode:  reasonCode,
		Qty:         qty,
	}})
}

// downtimeEmitter bridges the downtime detector to the EventBus.
type downtimeEmitter struct {
	bus *EventBus
}

func (e *downtimeEmitter) EmitDowntimeOpened(d *store.DowntimeEvent) {
	e.bus.Emit(Event{Type: EventDowntimeOpened, Payload: DowntimeOpenedEvent{Downtime: d}})
}

func (e *downtimeEmitter) EmitDowntimeClosed(d *store.DowntimeEvent) {
	e.bus.Emit(Event{Type: EventDowntimeClosed, Payload: DowntimeClosedEvent{Downtime: d}})
}

// oeeEmitter bridges the aggregator to the EventBus.
type oeeEmitter struct {
	bus *EventBus
}

func (e *oeeEmitter) EmitOEESnapshot(s *store.OEESnapshot) {
	e.bus.Emit(Event{Type: EventOEESnapshot, Payload: OEESnapshotEvent{Snapshot: s}})
}
