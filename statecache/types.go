package statecache

// WorkcenterState is the live view of one workcenter served to dashboards.
type WorkcenterState struct {
	WorkcenterID int64
	Code         string
	Name         string
	Enabled      bool
	Down         bool
	ActiveSteps  []ActiveStep
	StepCount    int
}

// ActiveStep is one in-progress step execution at a workcenter.
type ActiveStep struct {
	OrderID       int64  `json:"order_id"`
	StepID        int64  `json:"step_id"`
	LotID         int64  `json:"lot_id"`
	Status        string `json:"status"`
	ExecutedCount int64  `json:"executed_count"`
	GoodCount     int64  `json:"good_count"`
	ScrapCount    int64  `json:"scrap_count"`
	OperatorID    string `json:"operator_id"`
	StartedAt     string `json:"started_at,omitempty"`
}

// WorkcenterMeta is the cached identity record for a workcenter.
type WorkcenterMeta struct {
	WorkcenterID int64  `json:"workcenter_id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	Down         bool   `json:"down"`
}
