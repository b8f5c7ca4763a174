package engine

import "floorcore/store"

const (
	EventAccepted EventType = iota + 1
	EventStepTransition
	EventOrderStatusChanged
	EventQualityRecorded
	EventDowntimeOpened
	EventDowntimeClosed
	EventOEESnapshot
	EventERPConnected
	EventERPDisconnected
	EventMessagingConnected
	EventMessagingDisconnected
)

// --- Event payloads ---

// AcceptedEvent fans out every event that passed the guard and was appended.
type AcceptedEvent struct {
	Event *store.ExecutionEvent
}

type StepTransitionEvent struct {
	OrderID       int64
	StepID        int64
	LotID         int64
	WorkcenterID  int64
	OldStatus     string
	NewStatus     string
	ExecutedCount int64
}

type OrderStatusChangedEvent struct {
	OrderID   int64
	OldStatus string
	NewStatus string
}

type QualityRecordedEvent struct {
	RecordID    int64
	OrderID     int64
	StepID      int64
	LotID       int64
	Disposition string
	ReasonCode  string
	Qty         int64
}

type DowntimeOpenedEvent struct {
	Downtime *store.DowntimeEvent
}

type DowntimeClosedEvent struct {
	Downtime *store.DowntimeEvent
}

type OEESnapshotEvent struct {
	Snapshot *store.OEESnapshot
}

type ConnectionEvent struct {
	Detail string
}
