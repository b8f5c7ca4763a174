package store

import "time"

type QualityRecord struct {
	ID          int64
	OrderID     int64
	LotID       int64
	StepID      int64
	Disposition string
	ReasonCode  string
	Qty         int64
	TS          time.Time
}

func (db *DB) CreateQualityRecord(q *QualityRecord) error {
	if db.driver == "postgres" {
		return db.QueryRow(db.Q(`INSERT INTO quality_records (order_id, lot_id, step_id, disposition, reason_code, qty, ts) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			q.OrderID, q.LotID, q.StepID, q.Disposition, q.ReasonCode, q.Qty, FormatTime(q.TS)).Scan(&q.ID)
	}
	result, err := db.Exec(db.Q(`INSERT INTO quality_records (order_id, lot_id, step_id, disposition, reason_code, qty, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		q.OrderID, q.LotID, q.StepID, q.Disposition, q.ReasonCode, q.Qty, FormatTime(q.TS))
	if err != nil {
		return err
	}
	q.ID, _ = result.LastInsertId()
	return nil
}

func (db *DB) ListQualityRecordsByOrder(orderID int64) ([]*QualityRecord, error) {
	rows, err := db.Query(db.Q(`SELECT id, order_id, lot_id, step_id, disposition, reason_code, qty, ts
		FROM quality_records WHERE order_id=? ORDER BY ts DESC`), orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*QualityRecord
	for rows.Next() {
		var q QualityRecord
		var ts string
		if err := rows.Scan(&q.ID, &q.OrderID, &q.LotID, &q.StepID, &q.Disposition, &q.ReasonCode, &q.Qty, &ts); err != nil {
			return nil, err
		}
		q.TS, _ = ParseTime(ts)
		records = append(records, &q)
	}
	return records, rows.Err()
}
