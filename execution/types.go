package execution

import (
	"errors"
	"fmt"
)

// Event types accepted by the engine. Operator actions and translated
// equipment telemetry share this vocabulary.
const (
	EventScan     = "SCAN"
	EventStart    = "START"
	EventStop     = "STOP"
	EventCount    = "COUNT"
	EventQuality  = "QUALITY"
	EventComplete = "COMPLETE"
)

// Step execution statuses.
const (
	StatusNotStarted = "NOT_STARTED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

// Production order statuses.
const (
	OrderOpenNotStarted = "OPEN_NOT_STARTED"
	OrderInProgress     = "IN_PROGRESS"
	OrderOpenPartial    = "OPEN_PARTIAL"
	OrderClosed         = "CLOSED"
)

// Quality dispositions.
const (
	DispositionScrapNoReuse = "SCRAP_NO_REUSE"
	DispositionReuse        = "REUSE"
)

// Key identifies one step execution: the (order, step, lot) triple.
type Key struct {
	OrderID int64
	StepID  int64
	LotID   int64
}

func (k Key) String() string {
	return fmt.Sprintf("order=%d step=%d lot=%d", k.OrderID, k.StepID, k.LotID)
}

// ErrBusy means the per-key lock stayed contended through the bounded
// backoff. The event is already appended, so the caller may retry the fold.
var ErrBusy = errors.New("execution key busy")

// ErrInvalidTransition marks events that cannot apply to the current state.
// These are never retried automatically; retrying cannot resolve the conflict.
var ErrInvalidTransition = errors.New("invalid transition")

// InvalidTransitionError carries enough context for operator-facing diagnosis.
type InvalidTransitionError struct {
	Key       Key
	EventID   string
	EventType string
	Status    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s not allowed while %s (%s, event %s)",
		e.EventType, e.Status, e.Key, e.EventID)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

func invalidTransition(key Key, eventID, eventType, status string) error {
	return &InvalidTransitionError{Key: key, EventID: eventID, EventType: eventType, Status: status}
}
