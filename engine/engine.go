package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"floorcore/config"
	"floorcore/downtime"
	"floorcore/erp"
	"floorcore/execution"
	"floorcore/messaging"
	"floorcore/oee"
	"floorcore/statecache"
	"floorcore/store"
	"floorcore/telemetry"
)

type LogFunc func(format string, args ...any)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Guard      *execution.Guard
	StateCache *statecache.Manager
	ERPClient  *erp.Client
	MsgClient  *messaging.Client
	LogFunc    LogFunc
	Debug      bool
}

// Engine owns the event path: guard, append, state machine, downtime
// detector, OEE aggregation and fan-out wiring all hang off it.
type Engine struct {
	cfg          *config.Config
	configPath   string
	db           *store.DB
	guard        *execution.Guard
	stateCache   *statecache.Manager
	erpClient    *erp.Client
	msgClient    *messaging.Client
	machine      *execution.Machine
	detector     *downtime.Detector
	aggregator   *oee.Aggregator
	translator   *telemetry.Translator
	poller       *erp.Poller
	Events       *EventBus
	logFn        LogFunc
	stopChan     chan struct{}
	erpConnected bool
	msgConnected bool
	lastWindow   *oee.Window
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		guard:      c.Guard,
		stateCache: c.StateCache,
		erpClient:  c.ERPClient,
		msgClient:  c.MsgClient,
		Events:     NewEventBus(),
		logFn:      logFn,
		stopChan:   make(chan struct{}),
	}
}

func (e *Engine) Start() {
	// Create emitter adapters
	me := &machineEmitter{bus: e.Events}
	de := &downtimeEmitter{bus: e.Events}
	oe := &oeeEmitter{bus: e.Events}

	e.machine = execution.NewMachine(e.db, me)
	e.detector = downtime.NewDetector(e.db, e.cfg.Downtime.MicroStopThreshold, de)
	e.aggregator = oee.NewAggregator(e.db, e.cfg.Shifts, oe)
	e.translator = telemetry.NewTranslator(e.cfg.Telemetry)

	// Create ERP order poller
	e.poller = erp.NewPoller(e.erpClient, e.db, e.cfg.ERP.PollInterval)

	// Wire event handlers
	e.wireEventHandlers()

	// Start poller
	e.poller.Start()

	// Emit initial connection status
	e.checkConnectionStatus()

	// Start periodic connection health check and OEE recomputation
	go e.connectionHealthLoop()
	go e.snapshotLoop()

	e.logFn("engine: started")
}

func (e *Engine) Stop() {
	close(e.stopChan)
	if e.poller != nil {
		e.poller.Stop()
	}
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                   { return e.db }
func (e *Engine) AppConfig() *config.Config       { return e.cfg }
func (e *Engine) ConfigPath() string              { return e.configPath }
func (e *Engine) Machine() *execution.Machine     { return e.machine }
func (e *Engine) Detector() *downtime.Detector    { return e.detector }
func (e *Engine) Aggregator() *oee.Aggregator     { return e.aggregator }
func (e *Engine) StateCache() *statecache.Manager { return e.stateCache }
func (e *Engine) Poller() *erp.Poller             { return e.poller }
func (e *Engine) ERPClient() *erp.Client          { return e.erpClient }
func (e *Engine) MsgClient() *messaging.Client    { return e.msgClient }

// Ingest runs one candidate event through the full path: dedup, append,
// downtime hooks, state machine, fan-out. It returns the id of the stored
// event. A duplicate delivery returns the originally accepted id with no
// state change. An invalid transition leaves the event recorded but derived
// state untouched.
func (e *Engine) Ingest(ctx context.Context, ev *store.ExecutionEvent) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now()
	}
	if ev.Source == "" {
		ev.Source = "operator"
	}
	switch ev.EventType {
	case execution.EventScan, execution.EventStart, execution.EventStop,
		execution.EventCount, execution.EventQuality, execution.EventComplete:
	default:
		return "", fmt.Errorf("engine: unknown event type %q", ev.EventType)
	}
	if ev.OrderID == 0 {
		return "", fmt.Errorf("engine: event missing order id")
	}

	fresh, originalID := e.guard.Check(ctx, ev)
	if !fresh {
		e.logFn("engine: duplicate event dropped (original %s)", originalID)
		return originalID, nil
	}

	if err := e.db.AppendExecutionEvent(ev); err != nil {
		return "", fmt.Errorf("engine: append event: %w", err)
	}

	// A busy key means pure lock contention, not a conflict; the event is
	// already appended, and a re-submit would be swallowed by the guard,
	// so retry the fold here.
	var applyErr error
	for attempt := 0; attempt < 3; attempt++ {
		if _, applyErr = e.machine.Apply(ev); !errors.Is(applyErr, execution.ErrBusy) {
			break
		}
	}
	if applyErr != nil {
		return ev.ID, applyErr
	}

	// Downtime hooks run only for events the machine accepted.
	switch ev.EventType {
	case execution.EventStop:
		if err := e.detector.OnStop(ev.WorkcenterID, ev.TS, ev.Reason); err != nil {
			e.logFn("engine: %v", err)
		}
	case execution.EventStart:
		if err := e.detector.OnStart(ev.WorkcenterID, ev.TS); err != nil {
			e.logFn("engine: %v", err)
		}
	}

	e.Events.Emit(Event{Type: EventAccepted, Payload: AcceptedEvent{Event: ev}})
	return ev.ID, nil
}

// IngestTelemetry translates one equipment tick and runs the resulting
// events through Ingest. Returns the stored event ids.
func (e *Engine) IngestTelemetry(ctx context.Context, tctx telemetry.Context, p *telemetry.Payload, ts time.Time) ([]string, error) {
	if ts.IsZero() {
		ts = time.Now()
	}
	events, err := e.translator.Translate(tctx, p, ts)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		id, err := e.Ingest(ctx, ev)
		if err != nil {
			e.logFn("engine: telemetry event %s rejected: %v", ev.EventType, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) checkConnectionStatus() {
	// ERP
	if err := e.erpClient.Ping(); err == nil {
		if !e.erpConnected {
			e.erpConnected = true
			e.Events.Emit(Event{Type: EventERPConnected, Payload: ConnectionEvent{Detail: "ERP connected"}})
		}
	} else {
		if e.erpConnected {
			e.erpConnected = false
			e.Events.Emit(Event{Type: EventERPDisconnected, Payload: ConnectionEvent{Detail: err.Error()}})
		}
	}

	// Messaging
	if e.msgClient.IsConnected() {
		if !e.msgConnected {
			e.msgConnected = true
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
		}
	} else {
		if e.msgConnected {
			e.msgConnected = false
			e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
		}
	}
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}

// snapshotLoop recomputes the in-flight shift every minute and finalizes a
// shift's snapshot once its boundary passes.
func (e *Engine) snapshotLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			now := time.Now()
			w, err := e.aggregator.CurrentWindow(now)
			if err != nil {
				e.logFn("engine: oee window: %v", err)
				continue
			}
			if e.lastWindow != nil && (e.lastWindow.Date != w.Date || e.lastWindow.ShiftNumber != w.ShiftNumber) {
				// Previous shift just closed; write its final numbers.
				e.finalizeWindow(*e.lastWindow, now)
			}
			e.lastWindow = &w
			if err := e.aggregator.SnapshotCurrent(now); err != nil {
				e.logFn("engine: oee snapshot: %v", err)
			}
		}
	}
}

func (e *Engine) finalizeWindow(w oee.Window, now time.Time) {
	wcs, err := e.db.ListWorkcenters()
	if err != nil {
		e.logFn("engine: finalize shift: %v", err)
		return
	}
	for _, wc := range wcs {
		if !wc.Enabled {
			continue
		}
		if _, err := e.aggregator.Snapshot(wc.ID, w.Date, w.ShiftNumber, now); err != nil {
			e.logFn("engine: finalize wc=%d: %v", wc.ID, err)
		}
	}
	e.logFn("engine: finalized shift %d on %s", w.ShiftNumber, w.Date)
}

// ReconfigureERP applies ERP config changes live.
func (e *Engine) ReconfigureERP() {
	e.erpClient = erp.NewClient(e.cfg.ERP.BaseURL, e.cfg.ERP.Timeout)
	e.logFn("engine: ERP reconfigured (%s)", e.cfg.ERP.BaseURL)
	e.checkConnectionStatus()
}

// ReconfigureMessaging reconnects messaging with current config.
func (e *Engine) ReconfigureMessaging() {
	if err := e.msgClient.Reconfigure(&e.cfg.Messaging); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
	} else {
		e.logFn("engine: messaging reconfigured (%s)", e.cfg.Messaging.Backend)
	}
	e.checkConnectionStatus()
}
