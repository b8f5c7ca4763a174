package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"floorcore/oee"
)

func (h *Handlers) apiListOEE(w http.ResponseWriter, r *http.Request) {
	var workcenterID int64
	if wc := r.URL.Query().Get("workcenter"); wc != "" {
		id, err := strconv.ParseInt(wc, 10, 64)
		if err != nil {
			h.jsonError(w, "invalid workcenter", http.StatusBadRequest)
			return
		}
		workcenterID = id
	}
	snapshots, err := h.engine.DB().ListOEESnapshots(workcenterID,
		r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, snapshots)
}

// apiCurrentOEE computes the in-flight shift on demand without persisting.
func (h *Handlers) apiCurrentOEE(w http.ResponseWriter, r *http.Request) {
	wc := r.URL.Query().Get("workcenter")
	id, err := strconv.ParseInt(wc, 10, 64)
	if err != nil || id <= 0 {
		h.jsonError(w, "invalid workcenter", http.StatusBadRequest)
		return
	}

	now := time.Now()
	window, err := h.engine.Aggregator().CurrentWindow(now)
	if err != nil {
		if errors.Is(err, oee.ErrConfigurationMissing) {
			h.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	snapshot, err := h.engine.Aggregator().Compute(id, window, now)
	if err != nil {
		if errors.Is(err, oee.ErrConfigurationMissing) {
			h.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, snapshot)
}

// apiRecomputeOEE recomputes and persists a past window.
func (h *Handlers) apiRecomputeOEE(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkcenterID int64  `json:"workcenter_id"`
		Date         string `json:"date"`
		ShiftNumber  int    `json:"shift_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	snapshot, err := h.engine.Aggregator().Snapshot(req.WorkcenterID, req.Date, req.ShiftNumber, time.Now())
	if err != nil {
		if errors.Is(err, oee.ErrConfigurationMissing) {
			h.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, snapshot)
}
