package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorcore/config"
	"floorcore/execution"
	"floorcore/store"
)

var testCtx = Context{WorkcenterID: 1, OrderID: 10, LotID: 20, StepID: 30}

func newTranslator() *Translator {
	return NewTranslator(config.TelemetryConfig{
		TemperatureThreshold: 80,
		VibrationThreshold:   10,
		AlertDebounce:        30 * time.Second,
	})
}

func tick(tr *Translator, t *testing.T, p Payload, ts time.Time) []*store.ExecutionEvent {
	t.Helper()
	events, err := tr.Translate(testCtx, &p, ts)
	require.NoError(t, err)
	return events
}

func eventTypes(events []*store.ExecutionEvent) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.EventType)
	}
	return types
}

func TestStatusLifecycle(t *testing.T) {
	tr := newTranslator()
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	var all []*store.ExecutionEvent
	ticks := []Payload{
		{Status: StatusIdle},
		{Status: StatusRunning},
		{Status: StatusRunning, WoodCount: 1},
		{Status: StatusRunning, WoodCount: 2},
		{Status: StatusRunning, WoodCount: 2},
		{Status: StatusIdle, WoodCount: 2},
	}
	for i, p := range ticks {
		all = append(all, tick(tr, t, p, base.Add(time.Duration(i)*time.Second))...)
	}

	require.Equal(t, []string{
		execution.EventStart,
		execution.EventCount,
		execution.EventCount,
		execution.EventComplete,
	}, eventTypes(all))
	assert.Equal(t, int64(1), all[1].CountDelta)
	assert.Equal(t, int64(1), all[2].CountDelta)
	for _, ev := range all {
		assert.Equal(t, "telemetry", ev.Source)
		assert.Equal(t, testCtx.OrderID, ev.OrderID)
		assert.NotEmpty(t, ev.ID)
	}
}

func TestFirstTickEmitsNothing(t *testing.T) {
	tr := newTranslator()

	events := tick(tr, t, Payload{Status: StatusRunning, WoodCount: 42}, time.Now())

	assert.Empty(t, events, "no baseline yet, nothing to compare against")
}

func TestCountDeltaAboveOne(t *testing.T) {
	tr := newTranslator()
	base := time.Now()

	tick(tr, t, Payload{Status: StatusRunning, WoodCount: 10}, base)
	events := tick(tr, t, Payload{Status: StatusRunning, WoodCount: 13}, base.Add(time.Second))

	require.Len(t, events, 1)
	assert.Equal(t, execution.EventCount, events[0].EventType)
	assert.Equal(t, int64(3), events[0].CountDelta, "a burst of pieces is one event carrying the delta")
}

func TestErrorWhileRunningEmitsStop(t *testing.T) {
	tr := newTranslator()
	base := time.Now()

	tick(tr, t, Payload{Status: StatusRunning}, base)
	events := tick(tr, t, Payload{Status: StatusError}, base.Add(time.Second))

	require.Len(t, events, 1)
	assert.Equal(t, execution.EventStop, events[0].EventType)
	assert.Equal(t, "equipment fault", events[0].Reason)

	// Recovery back to running restarts the step.
	events = tick(tr, t, Payload{Status: StatusRunning}, base.Add(2*time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, execution.EventStart, events[0].EventType)
}

func TestTemperatureAlertDebounce(t *testing.T) {
	tr := newTranslator()
	base := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)

	tick(tr, t, Payload{Status: StatusRunning}, base)
	first := tick(tr, t, Payload{Status: StatusRunning, Temperature: 85}, base.Add(time.Second))
	second := tick(tr, t, Payload{Status: StatusRunning, Temperature: 90}, base.Add(6*time.Second))
	third := tick(tr, t, Payload{Status: StatusRunning, Temperature: 90}, base.Add(40*time.Second))

	require.Len(t, first, 1)
	assert.Equal(t, execution.EventQuality, first[0].EventType)
	assert.Equal(t, CodeHighTemp, first[0].QualityCode)
	assert.Empty(t, second, "second breach 5s later falls inside the debounce window")
	require.Len(t, third, 1, "window expired, alert fires again")
}

func TestAlertCodesDebounceIndependently(t *testing.T) {
	tr := newTranslator()
	base := time.Now()

	tick(tr, t, Payload{Status: StatusRunning}, base)
	tick(tr, t, Payload{Status: StatusRunning, Temperature: 85}, base.Add(time.Second))
	events := tick(tr, t, Payload{Status: StatusRunning, Temperature: 85, Vibration: 12}, base.Add(2*time.Second))

	require.Len(t, events, 1, "temperature is debounced but vibration is a distinct code")
	assert.Equal(t, CodeHighVibration, events[0].QualityCode)
}

func TestMissingContextRejected(t *testing.T) {
	tr := newTranslator()

	_, err := tr.Translate(Context{}, &Payload{Status: StatusRunning}, time.Now())
	var terr *TranslationError
	require.ErrorAs(t, err, &terr)

	_, err = tr.Translate(Context{WorkcenterID: 1}, &Payload{Status: StatusRunning}, time.Now())
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, int64(1), terr.WorkcenterID)

	_, err = tr.Translate(testCtx, &Payload{Status: "warp"}, time.Now())
	assert.True(t, errors.As(err, &terr))
}

func TestResetDropsBaseline(t *testing.T) {
	tr := newTranslator()
	base := time.Now()

	tick(tr, t, Payload{Status: StatusRunning, WoodCount: 5}, base)
	tr.Reset(testCtx.WorkcenterID)

	events := tick(tr, t, Payload{Status: StatusIdle, WoodCount: 9}, base.Add(time.Second))
	assert.Empty(t, events, "after a reset the next tick only re-establishes the baseline")
}
