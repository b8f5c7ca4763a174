package www

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"floorcore/store"
)

func (h *Handlers) apiListWorkcenters(w http.ResponseWriter, r *http.Request) {
	wcs, err := h.engine.DB().ListWorkcenters()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, wcs)
}

func (h *Handlers) apiWorkcenterState(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}
	state, err := h.engine.StateCache().GetWorkcenterState(id)
	if err != nil {
		h.jsonError(w, "not found", http.StatusNotFound)
		return
	}
	h.jsonOK(w, state)
}

func (h *Handlers) apiAllWorkcenterStates(w http.ResponseWriter, r *http.Request) {
	states, err := h.engine.StateCache().GetAllWorkcenterStates()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, states)
}

func (h *Handlers) apiWorkcenterDowntime(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from != "" && to != "" {
		fromTS, err1 := time.Parse(time.RFC3339, from)
		toTS, err2 := time.Parse(time.RFC3339, to)
		if err1 != nil || err2 != nil {
			h.jsonError(w, "invalid from/to", http.StatusBadRequest)
			return
		}
		events, err := h.engine.DB().ListDowntimeOverlapping(id, fromTS, toTS)
		if err != nil {
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.jsonOK(w, downtimeView(events))
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := h.engine.DB().ListDowntimeByWorkcenter(id, limit)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, downtimeView(events))
}

type downtimeEntry struct {
	*store.DowntimeEvent
	DurationMinutes float64 `json:"duration_minutes"`
}

func downtimeView(events []*store.DowntimeEvent) []downtimeEntry {
	now := time.Now()
	out := make([]downtimeEntry, len(events))
	for i, d := range events {
		out[i] = downtimeEntry{d, d.Duration(now).Minutes()}
	}
	return out
}

// apiAnnotateDowntime records the operator-assigned reason for an interval.
func (h *Handlers) apiAnnotateDowntime(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		h.jsonError(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Reason string `json:"reason"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		h.jsonError(w, "missing reason", http.StatusBadRequest)
		return
	}
	if err := h.engine.DB().UpdateDowntimeReason(id, req.Reason); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	actor := req.Actor
	if actor == "" {
		actor = "operator"
	}
	h.engine.DB().AppendAudit("downtime", strconv.FormatInt(id, 10), "annotated", "", req.Reason, actor)
	h.jsonOK(w, map[string]string{"status": "ok"})
}
