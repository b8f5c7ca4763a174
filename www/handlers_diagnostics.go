package www

import (
	"net/http"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	erpOK := h.engine.ERPClient().Ping() == nil
	h.jsonOK(w, map[string]any{
		"status":    "ok",
		"erp":       erpOK,
		"messaging": h.engine.MsgClient().IsConnected(),
	})
}

func (h *Handlers) apiDiagnostics(w http.ResponseWriter, r *http.Request) {
	auditLog, _ := h.engine.DB().ListAuditLog(50)
	pending, _ := h.engine.DB().ListPendingOutbox(20)

	h.jsonOK(w, map[string]any{
		"erp_ok":         h.engine.ERPClient().Ping() == nil,
		"messaging_ok":   h.engine.MsgClient().IsConnected(),
		"sse_clients":    h.eventHub.ClientCount(),
		"pending_outbox": len(pending),
		"audit_log":      auditLog,
	})
}
