package store

import (
	"database/sql"
	"time"
)

type ProductionOrder struct {
	ID               int64
	ERPOrderCode     string
	OrderType        string
	Status           string
	ItemCode         string
	PlannedQty       int64
	ExecutedGoodQty  int64
	ExecutedTotalQty int64
	DueDate          *time.Time
	Priority         int
}

type Lot struct {
	ID       int64
	Code     string
	ItemCode string
	Origin   string
}

type ProcessStep struct {
	ID                int64
	Code              string
	Name              string
	Sequence          int
	StandardCycleTime float64 // minutes per piece
}

type Workcenter struct {
	ID       int64
	Code     string
	Name     string
	Enabled  bool
	Capacity int
}

func (db *DB) CreateProductionOrder(o *ProductionOrder) error {
	var due any
	if o.DueDate != nil {
		due = FormatTime(*o.DueDate)
	}
	if db.driver == "postgres" {
		return db.QueryRow(db.Q(`INSERT INTO production_orders (erp_order_code, order_type, status, item_code, planned_qty, due_date, priority) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			o.ERPOrderCode, o.OrderType, o.Status, o.ItemCode, o.PlannedQty, due, o.Priority).Scan(&o.ID)
	}
	result, err := db.Exec(db.Q(`INSERT INTO production_orders (erp_order_code, order_type, status, item_code, planned_qty, due_date, priority) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		o.ERPOrderCode, o.OrderType, o.Status, o.ItemCode, o.PlannedQty, due, o.Priority)
	if err != nil {
		return err
	}
	o.ID, _ = result.LastInsertId()
	return nil
}

func (db *DB) GetProductionOrder(id int64) (*ProductionOrder, error) {
	row := db.QueryRow(db.Q(`SELECT id, erp_order_code, order_type, status, item_code, planned_qty, executed_good_qty, executed_total_qty, due_date, priority FROM production_orders WHERE id=?`), id)
	return scanOrder(row)
}

// GetProductionOrderByCode returns nil when no order carries the code.
func (db *DB) GetProductionOrderByCode(erpOrderCode string) (*ProductionOrder, error) {
	row := db.QueryRow(db.Q(`SELECT id, erp_order_code, order_type, status, item_code, planned_qty, executed_good_qty, executed_total_qty, due_date, priority FROM production_orders WHERE erp_order_code=?`), erpOrderCode)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

func scanOrder(row *sql.Row) (*ProductionOrder, error) {
	var o ProductionOrder
	var due sql.NullString
	if err := row.Scan(&o.ID, &o.ERPOrderCode, &o.OrderType, &o.Status, &o.ItemCode,
		&o.PlannedQty, &o.ExecutedGoodQty, &o.ExecutedTotalQty, &due, &o.Priority); err != nil {
		return nil, err
	}
	if due.Valid {
		if t, err := ParseTime(due.String); err == nil {
			o.DueDate = &t
		}
	}
	return &o, nil
}

func (db *DB) ListProductionOrders(status string, limit int) ([]*ProductionOrder, error) {
	query := `SELECT id, erp_order_code, order_type, status, item_code, planned_qty, executed_good_qty, executed_total_qty, due_date, priority FROM production_orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY priority DESC, due_date ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*ProductionOrder
	for rows.Next() {
		var o ProductionOrder
		var due sql.NullString
		if err := rows.Scan(&o.ID, &o.ERPOrderCode, &o.OrderType, &o.Status, &o.ItemCode,
			&o.PlannedQty, &o.ExecutedGoodQty, &o.ExecutedTotalQty, &due, &o.Priority); err != nil {
			return nil, err
		}
		if due.Valid {
			if t, err := ParseTime(due.String); err == nil {
				o.DueDate = &t
			}
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// UpdateOrderExecution writes the recomputed status and executed quantities.
func (db *DB) UpdateOrderExecution(id int64, status string, goodQty, totalQty int64) error {
	_, err := db.Exec(db.Q(`UPDATE production_orders SET status=?, executed_good_qty=?, executed_total_qty=?, updated_at=datetime('now','localtime') WHERE id=?`),
		status, goodQty, totalQty, id)
	return err
}

func (db *DB) CreateLot(l *Lot) error {
	if db.driver == "postgres" {
		return db.QueryRow(db.Q(`INSERT INTO lots (code, item_code, origin) VALUES (?, ?, ?) RETURNING id`),
			l.Code, l.ItemCode, l.Origin).Scan(&l.ID)
	}
	result, err := db.Exec(db.Q(`INSERT INTO lots (code, item_code, origin) VALUES (?, ?, ?)`),
		l.Code, l.ItemCode, l.Origin)
	if err != nil {
		return err
	}
	l.ID, _ = result.LastInsertId()
	return nil
}

func (db *DB) GetLot(id int64) (*Lot, error) {
	var l Lot
	err := db.QueryRow(db.Q(`SELECT id, code, item_code, origin FROM lots WHERE id=?`), id).
		Scan(&l.ID, &l.Code, &l.ItemCode, &l.Origin)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetLotByCode returns nil when the lot does not exist.
func (db *DB) GetLotByCode(code string) (*Lot, error) {
	var l Lot
	err := db.QueryRow(db.Q(`SELECT id, code, item_code, origin FROM lots WHERE code=?`), code).
		Scan(&l.ID, &l.Code, &l.ItemCode, &l.Origin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (db *DB) CreateProcessStep(s *ProcessStep) error {
	if db.driver == "postgres" {
		return db.QueryRow(db.Q(`INSERT INTO process_steps (code, name, sequence, standard_cycle_time) VALUES (?, ?, ?, ?) RETURNING id`),
			s.Code, s.Name, s.Sequence, s.StandardCycleTime).Scan(&s.ID)
	}
	result, err := db.Exec(db.Q(`INSERT INTO process_steps (code, name, sequence, standard_cycle_time) VALUES (?, ?, ?, ?)`),
		s.Code, s.Name, s.Sequence, s.StandardCycleTime)
	if err != nil {
		return err
	}
	s.ID, _ = result.LastInsertId()
	return nil
}

func (db *DB) GetProcessStep(id int64) (*ProcessStep, error) {
	var s ProcessStep
	err := db.QueryRow(db.Q(`SELECT id, code, name, sequence, standard_cycle_time FROM process_steps WHERE id=?`), id).
		Scan(&s.ID, &s.Code, &s.Name, &s.Sequence, &s.StandardCycleTime)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetProcessStepByCode returns nil when the step does not exist.
func (db *DB) GetProcessStepByCode(code string) (*ProcessStep, error) {
	var s ProcessStep
	err := db.QueryRow(db.Q(`SELECT id, code, name, sequence, standard_cycle_time FROM process_steps WHERE code=?`), code).
		Scan(&s.ID, &s.Code, &s.Name, &s.Sequence, &s.StandardCycleTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) ListProcessSteps() ([]*ProcessStep, error) {
	rows, err := db.Query(`SELECT id, code, name, sequence, standard_cycle_time FROM process_steps ORDER BY sequence ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var steps []*ProcessStep
	for rows.Next() {
		var s ProcessStep
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Sequence, &s.StandardCycleTime); err != nil {
			return nil, err
		}
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}

func (db *DB) CreateWorkcenter(wc *Workcenter) error {
	if db.driver == "postgres" {
		return db.QueryRow(db.Q(`INSERT INTO workcenters (code, name, enabled, capacity) VALUES (?, ?, ?, ?) RETURNING id`),
			wc.Code, wc.Name, wc.Enabled, wc.Capacity).Scan(&wc.ID)
	}
	result, err := db.Exec(db.Q(`INSERT INTO workcenters (code, name, enabled, capacity) VALUES (?, ?, ?, ?)`),
		wc.Code, wc.Name, wc.Enabled, wc.Capacity)
	if err != nil {
		return err
	}
	wc.ID, _ = result.LastInsertId()
	return nil
}

func (db *DB) GetWorkcenter(id int64) (*Workcenter, error) {
	var wc Workcenter
	err := db.QueryRow(db.Q(`SELECT id, code, name, enabled, capacity FROM workcenters WHERE id=?`), id).
		Scan(&wc.ID, &wc.Code, &wc.Name, &wc.Enabled, &wc.Capacity)
	if err != nil {
		return nil, err
	}
	return &wc, nil
}

func (db *DB) ListWorkcenters() ([]*Workcenter, error) {
	rows, err := db.Query(`SELECT id, code, name, enabled, capacity FROM workcenters ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var wcs []*Workcenter
	for rows.Next() {
		var wc Workcenter
		if err := rows.Scan(&wc.ID, &wc.Code, &wc.Name, &wc.Enabled, &wc.Capacity); err != nil {
			return nil, err
		}
		wcs = append(wcs, &wc)
	}
	return wcs, rows.Err()
}
