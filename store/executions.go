package store

import (
	"database/sql"
	"time"
)

// StepExecution is the derived state of one (order, step, lot) triple.
// It is owned by the execution state machine and recomputable from events.
type StepExecution struct {
	OrderID       int64
	StepID        int64
	LotID         int64
	WorkcenterID  int64
	Status        string
	ExecutedCount int64
	GoodCount     int64
	ScrapCount    int64
	OperatorID    string
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

func (db *DB) GetStepExecution(orderID, stepID, lotID int64) (*StepExecution, error) {
	row := db.QueryRow(db.Q(`SELECT order_id, step_id, lot_id, workcenter_id, status, executed_count, good_count, scrap_count, operator_id, started_at, completed_at
		FROM step_executions WHERE order_id=? AND step_id=? AND lot_id=?`), orderID, stepID, lotID)
	se, err := scanStepExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return se, err
}

func (db *DB) ListStepExecutionsByOrder(orderID int64) ([]*StepExecution, error) {
	rows, err := db.Query(db.Q(`SELECT order_id, step_id, lot_id, workcenter_id, status, executed_count, good_count, scrap_count, operator_id, started_at, completed_at
		FROM step_executions WHERE order_id=?`), orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStepExecutions(rows)
}

func (db *DB) ListStepExecutionsByWorkcenter(workcenterID int64) ([]*StepExecution, error) {
	rows, err := db.Query(db.Q(`SELECT order_id, step_id, lot_id, workcenter_id, status, executed_count, good_count, scrap_count, operator_id, started_at, completed_at
		FROM step_executions WHERE workcenter_id=?`), workcenterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStepExecutions(rows)
}

// UpsertStepExecution writes the full derived row for a key.
func (db *DB) UpsertStepExecution(se *StepExecution) error {
	var started, completed any
	if se.StartedAt != nil {
		started = FormatTime(*se.StartedAt)
	}
	if se.CompletedAt != nil {
		completed = FormatTime(*se.CompletedAt)
	}
	_, err := db.Exec(db.Q(`INSERT INTO step_executions
		(order_id, step_id, lot_id, workcenter_id, status, executed_count, good_count, scrap_count, operator_id, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id, step_id, lot_id) DO UPDATE SET
		workcenter_id=excluded.workcenter_id, status=excluded.status,
		executed_count=excluded.executed_count, good_count=excluded.good_count,
		scrap_count=excluded.scrap_count, operator_id=excluded.operator_id,
		started_at=excluded.started_at, completed_at=excluded.completed_at,
		updated_at=datetime('now','localtime')`),
		se.OrderID, se.StepID, se.LotID, se.WorkcenterID, se.Status,
		se.ExecutedCount, se.GoodCount, se.ScrapCount, se.OperatorID, started, completed)
	return err
}

// DeleteStepExecutionsByOrder removes derived rows before a rebuild from history.
func (db *DB) DeleteStepExecutionsByOrder(orderID int64) error {
	_, err := db.Exec(db.Q(`DELETE FROM step_executions WHERE order_id=?`), orderID)
	return err
}

type stepExecScanner interface {
	Scan(dest ...any) error
}

func scanStepExecution(row stepExecScanner) (*StepExecution, error) {
	var se StepExecution
	var started, completed sql.NullString
	if err := row.Scan(&se.OrderID, &se.StepID, &se.LotID, &se.WorkcenterID, &se.Status,
		&se.ExecutedCount, &se.GoodCount, &se.ScrapCount, &se.OperatorID, &started, &completed); err != nil {
		return nil, err
	}
	if started.Valid {
		if t, err := ParseTime(started.String); err == nil {
			se.StartedAt = &t
		}
	}
	if completed.Valid {
		if t, err := ParseTime(completed.String); err == nil {
			se.CompletedAt = &t
		}
	}
	return &se, nil
}

func collectStepExecutions(rows *sql.Rows) ([]*StepExecution, error) {
	var execs []*StepExecution
	for rows.Next() {
		se, err := scanStepExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, se)
	}
	return execs, rows.Err()
}
