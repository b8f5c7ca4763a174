package oee

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"floorcore/config"
	"floorcore/execution"
	"floorcore/store"
)

// ErrConfigurationMissing means reference data the aggregation needs, a
// shift window or a counted step's standard cycle time, is not configured.
// Factors computed without it would be misleading, so nothing is computed.
var ErrConfigurationMissing = errors.New("oee: configuration missing")

// Emitter receives newly written snapshots.
type Emitter interface {
	EmitOEESnapshot(s *store.OEESnapshot)
}

// Aggregator computes OEE factors over shift windows. Everything it reads is
// already persisted (events, downtime intervals, step cycle times), so a
// snapshot can be recomputed for any past window and always lands on the
// same numbers.
type Aggregator struct {
	db      *store.DB
	shifts  []config.ShiftConfig
	emitter Emitter
}

func NewAggregator(db *store.DB, shifts []config.ShiftConfig, emitter Emitter) *Aggregator {
	return &Aggregator{db: db, shifts: shifts, emitter: emitter}
}

// Window is one resolved shift interval [Start, End) on a specific date.
type Window struct {
	Date        string // YYYY-MM-DD, the date the shift starts on
	ShiftNumber int
	Start       time.Time
	End         time.Time
}

// ResolveWindow builds the concrete interval for a shift on a date. A shift
// whose end clock time is not after its start crosses midnight and ends the
// next day.
func (a *Aggregator) ResolveWindow(date string, shiftNumber int, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return Window{}, fmt.Errorf("oee: bad date %q: %w", date, err)
	}
	for _, s := range a.shifts {
		if s.Number != shiftNumber {
			continue
		}
		start, err1 := clockOn(day, s.Start)
		end, err2 := clockOn(day, s.End)
		if err1 != nil || err2 != nil {
			return Window{}, fmt.Errorf("oee: shift %d has malformed times %q-%q", s.Number, s.Start, s.End)
		}
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
		return Window{Date: date, ShiftNumber: shiftNumber, Start: start, End: end}, nil
	}
	return Window{}, ErrConfigurationMissing
}

// CurrentWindow finds the shift that contains t. For a midnight-crossing
// shift the containing window may have started the previous day.
func (a *Aggregator) CurrentWindow(t time.Time) (Window, error) {
	if len(a.shifts) == 0 {
		return Window{}, ErrConfigurationMissing
	}
	for _, dayOffset := range []int{0, -1} {
		date := t.AddDate(0, 0, dayOffset).Format("2006-01-02")
		for _, s := range a.shifts {
			w, err := a.ResolveWindow(date, s.Number, t.Location())
			if err != nil {
				continue
			}
			if !t.Before(w.Start) && t.Before(w.End) {
				return w, nil
			}
		}
	}
	return Window{}, ErrConfigurationMissing
}

// Compute derives the OEE factors for one workcenter over a window, as of
// asOf. For an in-flight shift the planned time only covers the elapsed
// portion; a completed shift ignores asOf.
func (a *Aggregator) Compute(workcenterID int64, w Window, asOf time.Time) (*store.OEESnapshot, error) {
	end := w.End
	if asOf.After(w.Start) && asOf.Before(w.End) {
		end = asOf
	}
	if !end.After(w.Start) {
		return nil, fmt.Errorf("oee: window for shift %d has not started", w.ShiftNumber)
	}

	plannedMin := end.Sub(w.Start).Minutes()

	downMin, err := a.downtimeMinutes(workcenterID, w.Start, end)
	if err != nil {
		return nil, err
	}
	if downMin > plannedMin {
		downMin = plannedMin
	}
	operatingMin := plannedMin - downMin

	total, good, idealMin, err := a.pieceCounts(workcenterID, w.Start, end)
	if err != nil {
		return nil, err
	}

	availability := clamp(operatingMin / plannedMin)

	performance := 0.0
	if operatingMin > 0 && idealMin > 0 {
		performance = clamp(idealMin / operatingMin)
	}

	quality := 1.0 // no output means nothing was defective
	if total > 0 {
		quality = clamp(float64(good) / float64(total))
	}

	idealCycle := 0.0
	if total > 0 {
		idealCycle = idealMin / float64(total)
	}

	return &store.OEESnapshot{
		WorkcenterID:   workcenterID,
		Date:           w.Date,
		ShiftNumber:    w.ShiftNumber,
		Availability:   availability,
		Performance:    performance,
		Quality:        quality,
		OEE:            availability * performance * quality,
		PlannedTime:    plannedMin,
		Downtime:       downMin,
		OperatingTime:  operatingMin,
		IdealCycleTime: idealCycle,
		TotalPieces:    total,
		GoodPieces:     good,
	}, nil
}

// Snapshot computes and persists the window, replacing any earlier snapshot
// for the same (workcenter, date, shift).
func (a *Aggregator) Snapshot(workcenterID int64, date string, shiftNumber int, asOf time.Time) (*store.OEESnapshot, error) {
	w, err := a.ResolveWindow(date, shiftNumber, asOf.Location())
	if err != nil {
		return nil, err
	}
	s, err := a.Compute(workcenterID, w, asOf)
	if err != nil {
		return nil, err
	}
	if err := a.db.UpsertOEESnapshot(s); err != nil {
		return nil, fmt.Errorf("oee: persist snapshot wc=%d %s/%d: %w", workcenterID, date, shiftNumber, err)
	}
	log.Printf("oee: wc=%d %s shift %d oee=%.3f (a=%.3f p=%.3f q=%.3f)",
		workcenterID, date, shiftNumber, s.OEE, s.Availability, s.Performance, s.Quality)
	if a.emitter != nil {
		a.emitter.EmitOEESnapshot(s)
	}
	return s, nil
}

// SnapshotCurrent recomputes the in-flight shift for every enabled workcenter.
func (a *Aggregator) SnapshotCurrent(now time.Time) error {
	w, err := a.CurrentWindow(now)
	if err != nil {
		return err
	}
	wcs, err := a.db.ListWorkcenters()
	if err != nil {
		return fmt.Errorf("oee: list workcenters: %w", err)
	}
	for _, wc := range wcs {
		if !wc.Enabled {
			continue
		}
		if _, err := a.Snapshot(wc.ID, w.Date, w.ShiftNumber, now); err != nil {
			log.Printf("oee: snapshot wc=%d failed: %v", wc.ID, err)
		}
	}
	return nil
}

// downtimeMinutes sums downtime intervals clipped to [from, to). Micro-stops
// count like any other stoppage; the flag only affects reporting.
func (a *Aggregator) downtimeMinutes(workcenterID int64, from, to time.Time) (float64, error) {
	events, err := a.db.ListDowntimeOverlapping(workcenterID, from, to)
	if err != nil {
		return 0, fmt.Errorf("oee: list downtime wc=%d: %w", workcenterID, err)
	}
	var total float64
	for _, d := range events {
		start := d.StartTS
		if start.Before(from) {
			start = from
		}
		end := to
		if d.EndTS != nil && d.EndTS.Before(to) {
			end = *d.EndTS
		}
		if end.After(start) {
			total += end.Sub(start).Minutes()
		}
	}
	return total, nil
}

// pieceCounts folds the window's events into total output, good output and
// ideal production time. Ideal time weighs each count by the standard cycle
// time of the step it was produced on.
func (a *Aggregator) pieceCounts(workcenterID int64, from, to time.Time) (total, good int64, idealMin float64, err error) {
	events, err := a.db.ListExecutionEventsByWorkcenter(workcenterID, from, to)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("oee: list events wc=%d: %w", workcenterID, err)
	}

	cycles := make(map[int64]float64)
	for _, ev := range events {
		switch ev.EventType {
		case execution.EventCount:
			delta := ev.CountDelta
			if delta <= 0 {
				delta = 1
			}
			total += delta
			good += delta
			ct, ok := cycles[ev.StepID]
			if !ok {
				step, err := a.db.GetProcessStep(ev.StepID)
				if err != nil && !errors.Is(err, sql.ErrNoRows) {
					return 0, 0, 0, fmt.Errorf("oee: load step %d: %w", ev.StepID, err)
				}
				if step != nil {
					ct = step.StandardCycleTime
				}
				if ct <= 0 {
					return 0, 0, 0, fmt.Errorf("oee: step %d has no standard cycle time: %w", ev.StepID, ErrConfigurationMissing)
				}
				cycles[ev.StepID] = ct
			}
			idealMin += float64(delta) * ct
		case execution.EventQuality:
			if ev.Disposition == execution.DispositionScrapNoReuse {
				good -= ev.Qty
			}
		}
	}
	if good < 0 {
		good = 0
	}
	return total, good, idealMin, nil
}

// clockOn places an "HH:MM" clock time on day's date, in day's location.
func clockOn(day time.Time, hhmm string) (time.Time, error) {
	c, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, day.Location()), nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
