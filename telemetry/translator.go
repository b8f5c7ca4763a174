package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"floorcore/config"
	"floorcore/execution"
	"floorcore/store"
)

// Equipment statuses reported in telemetry payloads.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusError   = "error"
)

// Quality alert codes synthesized from threshold breaches.
const (
	CodeHighTemp      = "HIGH_TEMP"
	CodeHighVibration = "HIGH_VIBRATION"
)

// Payload is one raw telemetry tick from a piece of equipment.
type Payload struct {
	Temperature  float64 `json:"temperature"`
	BeltSpeed    float64 `json:"beltSpeed"`
	Vibration    float64 `json:"vibration"`
	WoodCount    int64   `json:"woodCount"`
	Status       string  `json:"status"`
	SawRPM       float64 `json:"sawRpm"`
	MotorCurrent float64 `json:"motorCurrent"`
}

// Context is the equipment's currently assigned work, resolved upstream.
type Context struct {
	WorkcenterID int64
	OrderID      int64
	LotID        int64
	StepID       int64
}

// TranslationError reports a payload that could not be mapped. The caller
// decides whether to retry; nothing is dropped silently.
type TranslationError struct {
	WorkcenterID int64
	Reason       string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("telemetry: wc=%d: %s", e.WorkcenterID, e.Reason)
}

type equipmentState struct {
	status     string
	woodCount  int64
	lastAlert  map[string]time.Time
	seenStatus bool
	seenCount  bool
}

// Translator maps equipment telemetry into the execution event vocabulary.
// It keeps one small state per workcenter: the previous status and wood
// count, plus per-code alert timestamps for debouncing.
type Translator struct {
	cfg config.TelemetryConfig

	mu    sync.Mutex
	state map[int64]*equipmentState
}

func NewTranslator(cfg config.TelemetryConfig) *Translator {
	if cfg.TemperatureThreshold <= 0 {
		cfg.TemperatureThreshold = 80
	}
	if cfg.VibrationThreshold <= 0 {
		cfg.VibrationThreshold = 10
	}
	if cfg.AlertDebounce <= 0 {
		cfg.AlertDebounce = 30 * time.Second
	}
	return &Translator{cfg: cfg, state: make(map[int64]*equipmentState)}
}

// Translate folds one tick into zero or more execution events.
//
// Status transitions drive the step lifecycle: idle/error to running is a
// START, running to idle is a COMPLETE (a stopping saw has finished its
// piece, not paused), running to error is a STOP so the downtime detector
// opens an interval. A wood count increase while running becomes one COUNT
// carrying the delta; an unchanged count emits nothing. Threshold breaches
// become QUALITY alerts, rate-limited per workcenter and code.
func (t *Translator) Translate(ctx Context, p *Payload, ts time.Time) ([]*store.ExecutionEvent, error) {
	if ctx.WorkcenterID == 0 {
		return nil, &TranslationError{Reason: "no workcenter context for equipment"}
	}
	if ctx.OrderID == 0 {
		return nil, &TranslationError{WorkcenterID: ctx.WorkcenterID, Reason: "no order assigned"}
	}
	switch p.Status {
	case StatusIdle, StatusRunning, StatusError:
	default:
		return nil, &TranslationError{WorkcenterID: ctx.WorkcenterID, Reason: fmt.Sprintf("unknown status %q", p.Status)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state[ctx.WorkcenterID]
	if !ok {
		st = &equipmentState{lastAlert: make(map[string]time.Time)}
		t.state[ctx.WorkcenterID] = st
	}

	var events []*store.ExecutionEvent
	emit := func(eventType string, mutate func(*store.ExecutionEvent)) {
		ev := &store.ExecutionEvent{
			ID:           uuid.NewString(),
			EventType:    eventType,
			OrderID:      ctx.OrderID,
			LotID:        ctx.LotID,
			StepID:       ctx.StepID,
			WorkcenterID: ctx.WorkcenterID,
			TS:           ts,
			Source:       "telemetry",
		}
		if mutate != nil {
			mutate(ev)
		}
		events = append(events, ev)
	}

	if st.seenStatus && st.status != p.Status {
		switch {
		case p.Status == StatusRunning:
			emit(execution.EventStart, nil)
		case st.status == StatusRunning && p.Status == StatusIdle:
			emit(execution.EventComplete, nil)
		case st.status == StatusRunning && p.Status == StatusError:
			emit(execution.EventStop, func(ev *store.ExecutionEvent) {
				ev.Reason = "equipment fault"
			})
		}
	}
	st.status = p.Status
	st.seenStatus = true

	if st.seenCount {
		if delta := p.WoodCount - st.woodCount; delta >= 1 {
			emit(execution.EventCount, func(ev *store.ExecutionEvent) {
				ev.CountDelta = delta
			})
		}
	}
	st.woodCount = p.WoodCount
	st.seenCount = true

	if p.Temperature > t.cfg.TemperatureThreshold && t.debounce(st, CodeHighTemp, ts) {
		emit(execution.EventQuality, func(ev *store.ExecutionEvent) {
			ev.QualityCode = CodeHighTemp
			ev.Reason = fmt.Sprintf("temperature %.1f exceeds %.1f", p.Temperature, t.cfg.TemperatureThreshold)
		})
	}
	if p.Vibration > t.cfg.VibrationThreshold && t.debounce(st, CodeHighVibration, ts) {
		emit(execution.EventQuality, func(ev *store.ExecutionEvent) {
			ev.QualityCode = CodeHighVibration
			ev.Reason = fmt.Sprintf("vibration %.1f exceeds %.1f", p.Vibration, t.cfg.VibrationThreshold)
		})
	}

	return events, nil
}

// debounce reports whether an alert for this code may fire now. Repeated
// breaches inside the window are a domain rate limit, not duplicates, so
// this is enforced here rather than in the idempotency guard.
func (t *Translator) debounce(st *equipmentState, code string, ts time.Time) bool {
	if last, ok := st.lastAlert[code]; ok && ts.Sub(last) < t.cfg.AlertDebounce {
		return false
	}
	st.lastAlert[code] = ts
	return true
}

// Reset drops tracked state for a workcenter, e.g. when its assignment changes.
func (t *Translator) Reset(workcenterID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, workcenterID)
}
