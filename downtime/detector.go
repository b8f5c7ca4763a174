package downtime

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/EagleChen/mapmutex"

	"floorcore/store"
)

// ErrBusy means the workcenter's lock stayed contended through the bounded
// backoff. The caller may retry; the store holds whatever interval is open.
var ErrBusy = errors.New("downtime: workcenter busy")

// Emitter receives downtime lifecycle notifications.
type Emitter interface {
	EmitDowntimeOpened(d *store.DowntimeEvent)
	EmitDowntimeClosed(d *store.DowntimeEvent)
}

// Detector turns the gap between a workcenter's STOP and its next START into
// a persisted downtime interval. The open/closed state lives entirely in the
// store, so a restart picks up in-flight intervals without replay.
type Detector struct {
	db        *store.DB
	threshold time.Duration // below this a closed interval is a micro-stop
	locks     *mapmutex.Mutex
	emitter   Emitter
}

func NewDetector(db *store.DB, microStopThreshold time.Duration, emitter Emitter) *Detector {
	if microStopThreshold <= 0 {
		microStopThreshold = 5 * time.Minute
	}
	return &Detector{
		db:        db,
		threshold: microStopThreshold,
		locks:     mapmutex.NewMapMutex(),
		emitter:   emitter,
	}
}

// OnStop opens a downtime interval at the stop timestamp. If one is already
// open for the workcenter (a repeated STOP, or a crash mid-interval) the
// existing interval stands.
func (d *Detector) OnStop(workcenterID int64, ts time.Time, reason string) error {
	if workcenterID == 0 {
		return nil
	}
	if !d.locks.TryLock(workcenterID) {
		return fmt.Errorf("wc=%d: %w", workcenterID, ErrBusy)
	}
	defer d.locks.Unlock(workcenterID)

	open, err := d.db.GetOpenDowntimeEvent(workcenterID)
	if err != nil {
		return fmt.Errorf("downtime: load open interval wc=%d: %w", workcenterID, err)
	}
	if open != nil {
		return nil
	}

	ev := &store.DowntimeEvent{
		WorkcenterID: workcenterID,
		ReasonCode:   reason,
		StartTS:      ts,
	}
	if err := d.db.CreateDowntimeEvent(ev); err != nil {
		return fmt.Errorf("downtime: open interval wc=%d: %w", workcenterID, err)
	}
	log.Printf("downtime: wc=%d stopped at %s", workcenterID, ts.Format(time.RFC3339))
	d.emitter.EmitDowntimeOpened(ev)
	return nil
}

// OnStart closes the open interval at the start timestamp, classifying it as
// a micro-stop when it ran shorter than the threshold. A START with no open
// interval is the normal case (machine was never down) and is a no-op.
func (d *Detector) OnStart(workcenterID int64, ts time.Time) error {
	if workcenterID == 0 {
		return nil
	}
	if !d.locks.TryLock(workcenterID) {
		return fmt.Errorf("wc=%d: %w", workcenterID, ErrBusy)
	}
	defer d.locks.Unlock(workcenterID)

	open, err := d.db.GetOpenDowntimeEvent(workcenterID)
	if err != nil {
		return fmt.Errorf("downtime: load open interval wc=%d: %w", workcenterID, err)
	}
	if open == nil {
		return nil
	}
	if ts.Before(open.StartTS) {
		// Out-of-order delivery; a zero-length interval is the least wrong answer.
		ts = open.StartTS
	}

	dur := ts.Sub(open.StartTS)
	micro := dur < d.threshold
	if err := d.db.CloseDowntimeEvent(open.ID, ts, micro); err != nil {
		return fmt.Errorf("downtime: close interval %d: %w", open.ID, err)
	}
	open.EndTS = &ts
	open.IsMicroStop = micro
	log.Printf("downtime: wc=%d resumed after %s (micro=%v)", workcenterID, dur.Round(time.Second), micro)
	d.emitter.EmitDowntimeClosed(open)
	return nil
}

// Open returns the in-flight interval for a workcenter, if any.
func (d *Detector) Open(workcenterID int64) (*store.DowntimeEvent, error) {
	return d.db.GetOpenDowntimeEvent(workcenterID)
}
