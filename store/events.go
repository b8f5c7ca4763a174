package store

import (
	"time"
)

// TimeFormat is the canonical encoding for domain timestamps. Both dialects
// store these columns as text written by Go. The width is fixed and the zone
// is always UTC, so lexicographic order on the column equals time order and
// range predicates in SQL stay correct.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// ExecutionEvent is an immutable execution fact. Rows are append-only.
type ExecutionEvent struct {
	ID           string
	EventType    string
	OrderID      int64
	LotID        int64
	StepID       int64
	WorkcenterID int64
	OperatorID   string
	TS           time.Time
	CountDelta   int64
	QualityCode  string
	Reason       string
	Disposition  string
	Qty          int64
	ScanRaw      string
	Source       string
}

func (db *DB) AppendExecutionEvent(ev *ExecutionEvent) error {
	_, err := db.Exec(db.Q(`INSERT INTO execution_events
		(id, event_type, order_id, lot_id, step_id, workcenter_id, operator_id, ts, count_delta, quality_code, reason, disposition, qty, scan_raw, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.EventType, ev.OrderID, ev.LotID, ev.StepID, ev.WorkcenterID,
		ev.OperatorID, FormatTime(ev.TS), ev.CountDelta, ev.QualityCode,
		ev.Reason, ev.Disposition, ev.Qty, ev.ScanRaw, ev.Source)
	return err
}

// ListExecutionEventsByKey returns all events for one (order, step, lot)
// triple, ordered by timestamp and tie-broken by event id.
func (db *DB) ListExecutionEventsByKey(orderID, stepID, lotID int64) ([]*ExecutionEvent, error) {
	rows, err := db.Query(db.Q(`SELECT id, event_type, order_id, lot_id, step_id, workcenter_id, operator_id, ts, count_delta, quality_code, reason, disposition, qty, scan_raw, source
		FROM execution_events WHERE order_id=? AND step_id=? AND lot_id=? ORDER BY ts ASC, id ASC`),
		orderID, stepID, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListExecutionEventsByOrder returns all events for an order in fold order.
func (db *DB) ListExecutionEventsByOrder(orderID int64) ([]*ExecutionEvent, error) {
	rows, err := db.Query(db.Q(`SELECT id, event_type, order_id, lot_id, step_id, workcenter_id, operator_id, ts, count_delta, quality_code, reason, disposition, qty, scan_raw, source
		FROM execution_events WHERE order_id=? ORDER BY ts ASC, id ASC`), orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListExecutionEventsByWorkcenter returns events for one workcenter in
// [from, to), ordered by timestamp. Used by the OEE aggregator.
func (db *DB) ListExecutionEventsByWorkcenter(workcenterID int64, from, to time.Time) ([]*ExecutionEvent, error) {
	rows, err := db.Query(db.Q(`SELECT id, event_type, order_id, lot_id, step_id, workcenter_id, operator_id, ts, count_delta, quality_code, reason, disposition, qty, scan_raw, source
		FROM execution_events WHERE workcenter_id=? AND ts>=? AND ts<? ORDER BY ts ASC, id ASC`),
		workcenterID, FormatTime(from), FormatTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows rowScanner) ([]*ExecutionEvent, error) {
	var events []*ExecutionEvent
	for rows.Next() {
		var ev ExecutionEvent
		var ts string
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.OrderID, &ev.LotID, &ev.StepID,
			&ev.WorkcenterID, &ev.OperatorID, &ts, &ev.CountDelta, &ev.QualityCode,
			&ev.Reason, &ev.Disposition, &ev.Qty, &ev.ScanRaw, &ev.Source); err != nil {
			return nil, err
		}
		ev.TS, _ = ParseTime(ts)
		events = append(events, &ev)
	}
	return events, rows.Err()
}
