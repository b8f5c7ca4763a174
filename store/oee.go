package store

import (
	"database/sql"
	"time"
)

// OEESnapshot holds one computed OEE window. Times are minutes, factors in [0,1].
type OEESnapshot struct {
	ID             int64
	WorkcenterID   int64
	Date           string // YYYY-MM-DD
	ShiftNumber    int
	Availability   float64
	Performance    float64
	Quality        float64
	OEE            float64
	PlannedTime    float64
	Downtime       float64
	OperatingTime  float64
	IdealCycleTime float64
	TotalPieces    int64
	GoodPieces     int64
	CreatedAt      time.Time
}

// UpsertOEESnapshot writes a snapshot, replacing any prior row for the same
// (workcenter, date, shift) window so recomputation stays idempotent.
func (db *DB) UpsertOEESnapshot(s *OEESnapshot) error {
	_, err := db.Exec(db.Q(`INSERT INTO oee_snapshots
		(workcenter_id, date, shift_number, availability, performance, quality, oee, planned_time, downtime, operating_time, ideal_cycle_time, total_pieces, good_pieces)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (workcenter_id, date, shift_number) DO UPDATE SET
		availability=excluded.availability, performance=excluded.performance,
		quality=excluded.quality, oee=excluded.oee, planned_time=excluded.planned_time,
		downtime=excluded.downtime, operating_time=excluded.operating_time,
		ideal_cycle_time=excluded.ideal_cycle_time, total_pieces=excluded.total_pieces,
		good_pieces=excluded.good_pieces`),
		s.WorkcenterID, s.Date, s.ShiftNumber, s.Availability, s.Performance,
		s.Quality, s.OEE, s.PlannedTime, s.Downtime, s.OperatingTime,
		s.IdealCycleTime, s.TotalPieces, s.GoodPieces)
	return err
}

func (db *DB) GetOEESnapshot(workcenterID int64, date string, shiftNumber int) (*OEESnapshot, error) {
	row := db.QueryRow(db.Q(`SELECT id, workcenter_id, date, shift_number, availability, performance, quality, oee, planned_time, downtime, operating_time, ideal_cycle_time, total_pieces, good_pieces
		FROM oee_snapshots WHERE workcenter_id=? AND date=? AND shift_number=?`),
		workcenterID, date, shiftNumber)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (db *DB) ListOEESnapshots(workcenterID int64, dateFrom, dateTo string) ([]*OEESnapshot, error) {
	query := `SELECT id, workcenter_id, date, shift_number, availability, performance, quality, oee, planned_time, downtime, operating_time, ideal_cycle_time, total_pieces, good_pieces FROM oee_snapshots WHERE 1=1`
	args := []any{}
	if workcenterID != 0 {
		query += ` AND workcenter_id=?`
		args = append(args, workcenterID)
	}
	if dateFrom != "" {
		query += ` AND date>=?`
		args = append(args, dateFrom)
	}
	if dateTo != "" {
		query += ` AND date<=?`
		args = append(args, dateTo)
	}
	query += ` ORDER BY date DESC, shift_number DESC`

	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*OEESnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func scanSnapshot(row stepExecScanner) (*OEESnapshot, error) {
	var s OEESnapshot
	if err := row.Scan(&s.ID, &s.WorkcenterID, &s.Date, &s.ShiftNumber,
		&s.Availability, &s.Performance, &s.Quality, &s.OEE, &s.PlannedTime,
		&s.Downtime, &s.OperatingTime, &s.IdealCycleTime, &s.TotalPieces, &s.GoodPieces); err != nil {
		return nil, err
	}
	return &s, nil
}
