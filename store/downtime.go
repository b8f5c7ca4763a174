package store

import (
	"database/sql"
	"time"
)

type DowntimeEvent struct {
	ID           int64
	WorkcenterID int64
	ReasonCode   string
	StartTS      time.Time
	EndTS        *time.Time
	IsMicroStop  bool
}

// Duration reports the interval length; open intervals are measured to now.
func (d *DowntimeEvent) Duration(now time.Time) time.Duration {
	end := now
	if d.EndTS != nil {
		end = *d.EndTS
	}
	if end.Before(d.StartTS) {
		return 0
	}
	return end.Sub(d.StartTS)
}

func (db *DB) CreateDowntimeEvent(d *DowntimeEvent) error {
	if db.driver == "postgres" {
		return db.QueryRow(db.Q(`INSERT INTO downtime_events (workcenter_id, reason_code, start_ts) VALUES (?, ?, ?) RETURNING id`),
			d.WorkcenterID, d.ReasonCode, FormatTime(d.StartTS)).Scan(&d.ID)
	}
	result, err := db.Exec(db.Q(`INSERT INTO downtime_events (workcenter_id, reason_code, start_ts) VALUES (?, ?, ?)`),
		d.WorkcenterID, d.ReasonCode, FormatTime(d.StartTS))
	if err != nil {
		return err
	}
	d.ID, _ = result.LastInsertId()
	return nil
}

// CloseDowntimeEvent sets the end timestamp and the micro-stop flag.
func (db *DB) CloseDowntimeEvent(id int64, endTS time.Time, isMicroStop bool) error {
	_, err := db.Exec(db.Q(`UPDATE downtime_events SET end_ts=?, is_micro_stop=? WHERE id=?`),
		FormatTime(endTS), isMicroStop, id)
	return err
}

// UpdateDowntimeReason lets an operator classify an interval after the fact.
func (db *DB) UpdateDowntimeReason(id int64, reason string) error {
	_, err := db.Exec(db.Q(`UPDATE downtime_events SET reason_code=? WHERE id=?`), reason, id)
	return err
}

// GetOpenDowntimeEvent returns the open interval for a workcenter, or nil.
func (db *DB) GetOpenDowntimeEvent(workcenterID int64) (*DowntimeEvent, error) {
	row := db.QueryRow(db.Q(`SELECT id, workcenter_id, reason_code, start_ts, end_ts, is_micro_stop
		FROM downtime_events WHERE workcenter_id=? AND end_ts IS NULL ORDER BY start_ts DESC LIMIT 1`), workcenterID)
	d, err := scanDowntime(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// ListDowntimeOverlapping returns intervals for a workcenter that overlap
// [from, to). Open intervals that started before the window end are included.
func (db *DB) ListDowntimeOverlapping(workcenterID int64, from, to time.Time) ([]*DowntimeEvent, error) {
	rows, err := db.Query(db.Q(`SELECT id, workcenter_id, reason_code, start_ts, end_ts, is_micro_stop
		FROM downtime_events WHERE workcenter_id=? AND start_ts<? AND (end_ts IS NULL OR end_ts>?)
		ORDER BY start_ts ASC`),
		workcenterID, FormatTime(to), FormatTime(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*DowntimeEvent
	for rows.Next() {
		d, err := scanDowntime(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, d)
	}
	return events, rows.Err()
}

func (db *DB) ListDowntimeByWorkcenter(workcenterID int64, limit int) ([]*DowntimeEvent, error) {
	rows, err := db.Query(db.Q(`SELECT id, workcenter_id, reason_code, start_ts, end_ts, is_micro_stop
		FROM downtime_events WHERE workcenter_id=? ORDER BY start_ts DESC LIMIT ?`), workcenterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*DowntimeEvent
	for rows.Next() {
		d, err := scanDowntime(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, d)
	}
	return events, rows.Err()
}

func scanDowntime(row stepExecScanner) (*DowntimeEvent, error) {
	var d DowntimeEvent
	var start string
	var end sql.NullString
	if err := row.Scan(&d.ID, &d.WorkcenterID, &d.ReasonCode, &start, &end, &d.IsMicroStop); err != nil {
		return nil, err
	}
	d.StartTS, _ = ParseTime(start)
	if end.Valid {
		if t, err := ParseTime(end.String); err == nil {
			d.EndTS = &t
		}
	}
	return &d, nil
}
