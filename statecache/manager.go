package statecache

import (
	"context"
	"log"

	"floorcore/store"
)

// Manager provides write-through workcenter state: SQL is authoritative,
// Redis carries a warm copy for dashboards. Cache misses fall back to SQL,
// so a cold or flushed Redis only costs latency, never correctness.
type Manager struct {
	db    *store.DB
	redis *RedisStore
}

func NewManager(db *store.DB, redis *RedisStore) *Manager {
	return &Manager{db: db, redis: redis}
}

// RefreshWorkcenter rebuilds the cached view for one workcenter from SQL.
// Called after every accepted event that touches it.
func (m *Manager) RefreshWorkcenter(workcenterID int64) {
	if workcenterID == 0 {
		return
	}
	ctx := context.Background()

	execs, err := m.db.ListStepExecutionsByWorkcenter(workcenterID)
	if err != nil {
		log.Printf("statecache: refresh wc %d: %v", workcenterID, err)
		return
	}
	steps := make([]ActiveStep, 0, len(execs))
	for _, se := range execs {
		if se.Status != "IN_PROGRESS" {
			continue
		}
		s := ActiveStep{
			OrderID:       se.OrderID,
			StepID:        se.StepID,
			LotID:         se.LotID,
			Status:        se.Status,
			ExecutedCount: se.ExecutedCount,
			GoodCount:     se.GoodCount,
			ScrapCount:    se.ScrapCount,
			OperatorID:    se.OperatorID,
		}
		if se.StartedAt != nil {
			s.StartedAt = store.FormatTime(*se.StartedAt)
		}
		steps = append(steps, s)
	}
	if err := m.redis.SetActiveSteps(ctx, workcenterID, steps); err != nil {
		log.Printf("statecache: set steps wc %d: %v", workcenterID, err)
	}
}

// SetDown flips the cached downtime flag without a full refresh.
func (m *Manager) SetDown(workcenterID int64, down bool) {
	ctx := context.Background()
	meta, err := m.redis.GetMeta(ctx, workcenterID)
	if err != nil || meta == nil {
		m.RefreshMeta(workcenterID, down)
		return
	}
	meta.Down = down
	m.redis.UpdateMeta(ctx, workcenterID, meta)
}

// RefreshMeta updates the cached identity record from SQL.
func (m *Manager) RefreshMeta(workcenterID int64, down bool) {
	wc, err := m.db.GetWorkcenter(workcenterID)
	if err != nil {
		return
	}
	meta := &WorkcenterMeta{
		WorkcenterID: wc.ID,
		Code:         wc.Code,
		Name:         wc.Name,
		Enabled:      wc.Enabled,
		Down:         down,
	}
	m.redis.UpdateMeta(context.Background(), workcenterID, meta)
}

// GetWorkcenterState reads the live view, preferring Redis.
func (m *Manager) GetWorkcenterState(workcenterID int64) (*WorkcenterState, error) {
	ctx := context.Background()

	meta, err := m.redis.GetMeta(ctx, workcenterID)
	if err == nil && meta != nil {
		steps, _ := m.redis.GetActiveSteps(ctx, workcenterID)
		count, _ := m.redis.GetCount(ctx, workcenterID)
		return &WorkcenterState{
			WorkcenterID: meta.WorkcenterID,
			Code:         meta.Code,
			Name:         meta.Name,
			Enabled:      meta.Enabled,
			Down:         meta.Down,
			ActiveSteps:  steps,
			StepCount:    count,
		}, nil
	}

	return m.getStateFromSQL(workcenterID)
}

// GetAllWorkcenterStates reads all live views, preferring Redis.
func (m *Manager) GetAllWorkcenterStates() (map[int64]*WorkcenterState, error) {
	ctx := context.Background()
	states := make(map[int64]*WorkcenterState)

	ids, err := m.redis.GetAllWorkcenterIDs(ctx)
	if err == nil && len(ids) > 0 {
		for _, id := range ids {
			state, err := m.GetWorkcenterState(id)
			if err == nil {
				states[id] = state
			}
		}
		return states, nil
	}

	wcs, err := m.db.ListWorkcenters()
	if err != nil {
		return nil, err
	}
	for _, wc := range wcs {
		state, err := m.getStateFromSQL(wc.ID)
		if err != nil {
			continue
		}
		states[wc.ID] = state
	}
	return states, nil
}

// SyncRedisFromSQL rebuilds all Redis state from SQL. Called on startup.
func (m *Manager) SyncRedisFromSQL() error {
	ctx := context.Background()
	m.redis.FlushAll(ctx)

	wcs, err := m.db.ListWorkcenters()
	if err != nil {
		return err
	}
	for _, wc := range wcs {
		open, _ := m.db.GetOpenDowntimeEvent(wc.ID)
		meta := &WorkcenterMeta{
			WorkcenterID: wc.ID,
			Code:         wc.Code,
			Name:         wc.Name,
			Enabled:      wc.Enabled,
			Down:         open != nil,
		}
		if err := m.redis.UpdateMeta(ctx, wc.ID, meta); err != nil {
			log.Printf("statecache: sync meta wc %d: %v", wc.ID, err)
			continue
		}
		m.RefreshWorkcenter(wc.ID)
	}

	log.Printf("statecache: synced %d workcenters to redis", len(wcs))
	return nil
}

func (m *Manager) getStateFromSQL(workcenterID int64) (*WorkcenterState, error) {
	wc, err := m.db.GetWorkcenter(workcenterID)
	if err != nil {
		return nil, err
	}
	execs, err := m.db.ListStepExecutionsByWorkcenter(workcenterID)
	if err != nil {
		return nil, err
	}
	open, _ := m.db.GetOpenDowntimeEvent(workcenterID)

	state := &WorkcenterState{
		WorkcenterID: wc.ID,
		Code:         wc.Code,
		Name:         wc.Name,
		Enabled:      wc.Enabled,
		Down:         open != nil,
	}
	for _, se := range execs {
		if se.Status != "IN_PROGRESS" {
			continue
		}
		s := ActiveStep{
			OrderID:       se.OrderID,
			StepID:        se.StepID,
			LotID:         se.LotID,
			Status:        se.Status,
			ExecutedCount: se.ExecutedCount,
			GoodCount:     se.GoodCount,
			ScrapCount:    se.ScrapCount,
			OperatorID:    se.OperatorID,
		}
		if se.StartedAt != nil {
			s.StartedAt = store.FormatTime(*se.StartedAt)
		}
		state.ActiveSteps = append(state.ActiveSteps, s)
	}
	state.StepCount = len(state.ActiveSteps)
	return state, nil
}
