package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"floorcore/execution"
	"floorcore/store"
	"floorcore/telemetry"
)

// eventRequest is the inbound operator event shape.
type eventRequest struct {
	Type         string `json:"type"`
	OrderID      int64  `json:"orderId"`
	LotID        int64  `json:"lotId"`
	StepID       int64  `json:"stepId"`
	WorkcenterID int64  `json:"workcenterId"`
	OperatorID   string `json:"operatorId"`
	TS           string `json:"ts"`
	Payload      struct {
		Count       int64  `json:"count"`
		Code        string `json:"code"`
		Reason      string `json:"reason"`
		Disposition string `json:"disposition"`
		Qty         int64  `json:"qty"`
		ScanRaw     string `json:"scanRaw"`
	} `json:"payload"`
}

func (h *Handlers) apiPostEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ev := &store.ExecutionEvent{
		EventType:    req.Type,
		OrderID:      req.OrderID,
		LotID:        req.LotID,
		StepID:       req.StepID,
		WorkcenterID: req.WorkcenterID,
		OperatorID:   req.OperatorID,
		CountDelta:   req.Payload.Count,
		QualityCode:  req.Payload.Code,
		Reason:       req.Payload.Reason,
		Disposition:  req.Payload.Disposition,
		Qty:          req.Payload.Qty,
		ScanRaw:      req.Payload.ScanRaw,
	}
	if req.TS != "" {
		t, err := time.Parse(time.RFC3339, req.TS)
		if err != nil {
			h.jsonError(w, "invalid ts", http.StatusBadRequest)
			return
		}
		ev.TS = t
	}

	id, err := h.engine.Ingest(r.Context(), ev)
	if err != nil {
		if errors.Is(err, execution.ErrInvalidTransition) {
			h.jsonError(w, err.Error(), http.StatusConflict)
			return
		}
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.jsonOK(w, map[string]string{"event_id": id, "status": "accepted"})
}

// telemetryRequest mirrors the broker-side wire shape for bridges that POST
// instead of publishing.
type telemetryRequest struct {
	WorkcenterID int64              `json:"workcenter_id"`
	OrderID      int64              `json:"order_id"`
	LotID        int64              `json:"lot_id"`
	StepID       int64              `json:"step_id"`
	Timestamp    string             `json:"timestamp"`
	Payload      *telemetry.Payload `json:"payload"`
}

func (h *Handlers) apiPostTelemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Payload == nil {
		h.jsonError(w, "missing payload", http.StatusBadRequest)
		return
	}

	ts := time.Now()
	if req.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			ts = t
		}
	}

	tctx := telemetry.Context{
		WorkcenterID: req.WorkcenterID,
		OrderID:      req.OrderID,
		LotID:        req.LotID,
		StepID:       req.StepID,
	}
	ids, err := h.engine.IngestTelemetry(r.Context(), tctx, req.Payload, ts)
	if err != nil {
		var terr *telemetry.TranslationError
		if errors.As(err, &terr) {
			h.jsonError(w, terr.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.jsonOK(w, map[string]any{"event_ids": ids, "status": "accepted"})
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
