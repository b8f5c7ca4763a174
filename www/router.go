package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"floorcore/engine"
)

// Handlers carries the dependencies every HTTP handler needs.
type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
}

// NewRouter builds the HTTP surface. The returned stop function shuts down
// the SSE hub.
func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	h := &Handlers{
		engine:   eng,
		sessions: sessions.NewCookieStore([]byte(eng.AppConfig().Web.SessionSecret)),
		eventHub: NewEventHub(eng),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Ingestion boundary
	r.Post("/api/events", h.apiPostEvent)
	r.Post("/api/telemetry", h.apiPostTelemetry)

	// Read API
	r.Get("/api/orders", h.apiListOrders)
	r.Get("/api/orders/{id}", h.apiGetOrder)
	r.Get("/api/orders/{id}/events", h.apiOrderEvents)
	r.Get("/api/orders/{id}/steps", h.apiOrderSteps)
	r.Get("/api/orders/{id}/quality", h.apiOrderQuality)
	r.Get("/api/workcenters", h.apiListWorkcenters)
	r.Get("/api/workcenters/{id}/state", h.apiWorkcenterState)
	r.Get("/api/workcenters/{id}/downtime", h.apiWorkcenterDowntime)
	r.Get("/api/oee", h.apiListOEE)
	r.Get("/api/oee/current", h.apiCurrentOEE)
	r.Get("/api/state", h.apiAllWorkcenterStates)

	// Realtime push
	r.Get("/api/stream", h.handleSSE)

	// Auth + admin
	r.Post("/api/login", h.apiLogin)
	r.Post("/api/logout", h.apiLogout)
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/orders/{id}/rebuild", h.apiRebuildOrder)
		r.Post("/api/downtime/{id}/reason", h.apiAnnotateDowntime)
		r.Post("/api/oee/recompute", h.apiRecomputeOEE)
		r.Get("/api/diagnostics", h.apiDiagnostics)
		r.Get("/api/admin/config", h.apiGetConfig)
		r.Put("/api/admin/config", h.apiUpdateConfig)
	})

	// Health
	r.Get("/api/health", h.apiHealthCheck)

	return r, h.eventHub.Stop
}
