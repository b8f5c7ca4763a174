package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"floorcore/engine"
)

// EventHub is the explicit subscriber registry behind /api/stream. Each SSE
// connection registers a channel; registration is released on disconnect, so
// a dropped browser never leaks a subscription.
type EventHub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func NewEventHub(eng *engine.Engine) *EventHub {
	hub := &EventHub{clients: make(map[chan []byte]struct{})}
	eng.Events.Subscribe(hub.broadcast)
	return hub
}

func (h *EventHub) register() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unregister(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *EventHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
}

func (h *EventHub) broadcast(evt engine.Event) {
	name := eventName(evt.Type)
	if name == "" {
		return
	}
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return
	}
	frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, payload))

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- frame:
		default:
			// Slow consumer; drop the frame rather than block the emitter.
		}
	}
}

func eventName(t engine.EventType) string {
	switch t {
	case engine.EventAccepted:
		return "execution_event"
	case engine.EventStepTransition:
		return "step_transition"
	case engine.EventOrderStatusChanged:
		return "order_status"
	case engine.EventQualityRecorded:
		return "quality_record"
	case engine.EventDowntimeOpened:
		return "downtime_opened"
	case engine.EventDowntimeClosed:
		return "downtime_closed"
	case engine.EventOEESnapshot:
		return "oee_snapshot"
	default:
		return ""
	}
}

func (h *Handlers) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.eventHub.register()
	defer h.eventHub.unregister(ch)

	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, open := <-ch:
			if !open {
				return
			}
			w.Write(frame)
			flusher.Flush()
		}
	}
}
