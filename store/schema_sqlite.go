package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS workcenters (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    code        TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL DEFAULT '',
    enabled     INTEGER NOT NULL DEFAULT 1,
    capacity    INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS process_steps (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    code                TEXT NOT NULL UNIQUE,
    name                TEXT NOT NULL DEFAULT '',
    sequence            INTEGER NOT NULL DEFAULT 0,
    standard_cycle_time REAL NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS lots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    code        TEXT NOT NULL UNIQUE,
    item_code   TEXT NOT NULL DEFAULT '',
    origin      TEXT NOT NULL DEFAULT 'RAW',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS production_orders (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    erp_order_code     TEXT NOT NULL UNIQUE,
    order_type         TEXT NOT NULL DEFAULT 'PRODUCTION',
    status             TEXT NOT NULL DEFAULT 'OPEN_NOT_STARTED',
    item_code          TEXT NOT NULL DEFAULT '',
    planned_qty        INTEGER NOT NULL DEFAULT 0,
    executed_good_qty  INTEGER NOT NULL DEFAULT 0,
    executed_total_qty INTEGER NOT NULL DEFAULT 0,
    due_date           TEXT,
    priority           INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON production_orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_erp ON production_orders(erp_order_code);

CREATE TABLE IF NOT EXISTS execution_events (
    id            TEXT PRIMARY KEY,
    event_type    TEXT NOT NULL,
    order_id      INTEGER NOT NULL REFERENCES production_orders(id),
    lot_id        INTEGER NOT NULL DEFAULT 0,
    step_id       INTEGER NOT NULL DEFAULT 0,
    workcenter_id INTEGER NOT NULL DEFAULT 0,
    operator_id   TEXT NOT NULL DEFAULT '',
    ts            TEXT NOT NULL,
    count_delta   INTEGER NOT NULL DEFAULT 0,
    quality_code  TEXT NOT NULL DEFAULT '',
    reason        TEXT NOT NULL DEFAULT '',
    disposition   TEXT NOT NULL DEFAULT '',
    qty           INTEGER NOT NULL DEFAULT 0,
    scan_raw      TEXT NOT NULL DEFAULT '',
    source        TEXT NOT NULL DEFAULT 'operator',
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_events_key ON execution_events(order_id, step_id, lot_id, ts);
CREATE INDEX IF NOT EXISTS idx_events_workcenter ON execution_events(workcenter_id, ts);

CREATE TABLE IF NOT EXISTS step_executions (
    order_id       INTEGER NOT NULL REFERENCES production_orders(id),
    step_id        INTEGER NOT NULL REFERENCES process_steps(id),
    lot_id         INTEGER NOT NULL DEFAULT 0,
    workcenter_id  INTEGER NOT NULL DEFAULT 0,
    status         TEXT NOT NULL DEFAULT 'NOT_STARTED',
    executed_count INTEGER NOT NULL DEFAULT 0,
    good_count     INTEGER NOT NULL DEFAULT 0,
    scrap_count    INTEGER NOT NULL DEFAULT 0,
    operator_id    TEXT NOT NULL DEFAULT '',
    started_at     TEXT,
    completed_at   TEXT,
    updated_at     TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    PRIMARY KEY (order_id, step_id, lot_id)
);
CREATE INDEX IF NOT EXISTS idx_step_exec_workcenter ON step_executions(workcenter_id);

CREATE TABLE IF NOT EXISTS downtime_events (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    workcenter_id INTEGER NOT NULL REFERENCES workcenters(id),
    reason_code   TEXT NOT NULL DEFAULT '',
    start_ts      TEXT NOT NULL,
    end_ts        TEXT,
    is_micro_stop INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_downtime_workcenter ON downtime_events(workcenter_id, start_ts);
CREATE INDEX IF NOT EXISTS idx_downtime_open ON downtime_events(workcenter_id) WHERE end_ts IS NULL;

CREATE TABLE IF NOT EXISTS quality_records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    INTEGER NOT NULL REFERENCES production_orders(id),
    lot_id      INTEGER NOT NULL DEFAULT 0,
    step_id     INTEGER NOT NULL DEFAULT 0,
    disposition TEXT NOT NULL,
    reason_code TEXT NOT NULL DEFAULT '',
    qty         INTEGER NOT NULL DEFAULT 0,
    ts          TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_quality_order ON quality_records(order_id);

CREATE TABLE IF NOT EXISTS oee_snapshots (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    workcenter_id    INTEGER NOT NULL REFERENCES workcenters(id),
    date             TEXT NOT NULL,
    shift_number     INTEGER NOT NULL,
    availability     REAL NOT NULL DEFAULT 0,
    performance      REAL NOT NULL DEFAULT 0,
    quality          REAL NOT NULL DEFAULT 0,
    oee              REAL NOT NULL DEFAULT 0,
    planned_time     REAL NOT NULL DEFAULT 0,
    downtime         REAL NOT NULL DEFAULT 0,
    operating_time   REAL NOT NULL DEFAULT 0,
    ideal_cycle_time REAL NOT NULL DEFAULT 0,
    total_pieces     INTEGER NOT NULL DEFAULT 0,
    good_pieces      INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    UNIQUE(workcenter_id, date, shift_number)
);

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    payload     BLOB NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
