package www

import (
	"encoding/json"
	"net/http"
	"time"
)

func (h *Handlers) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	h.jsonOK(w, map[string]any{
		"plant_id": cfg.PlantID,
		"erp": map[string]any{
			"base_url":      cfg.ERP.BaseURL,
			"timeout":       cfg.ERP.Timeout.String(),
			"poll_interval": cfg.ERP.PollInterval.String(),
		},
		"messaging": map[string]any{
			"backend":            cfg.Messaging.Backend,
			"broker_url":         cfg.Messaging.BrokerURL,
			"kafka_brokers":      cfg.Messaging.KafkaBrokers,
			"telemetry_topic":    cfg.Messaging.TelemetryTopic,
			"event_topic_prefix": cfg.Messaging.EventTopicPrefix,
		},
	})
}

// configUpdateRequest carries the settings that may change at runtime.
// Absent sections are left alone.
type configUpdateRequest struct {
	ERP *struct {
		BaseURL      string `json:"base_url"`
		Timeout      string `json:"timeout"`
		PollInterval string `json:"poll_interval"`
	} `json:"erp"`
	Messaging *struct {
		Backend      string   `json:"backend"`
		BrokerURL    string   `json:"broker_url"`
		KafkaBrokers []string `json:"kafka_brokers"`
	} `json:"messaging"`
}

func (h *Handlers) apiUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := h.engine.AppConfig()
	if req.ERP != nil {
		if req.ERP.BaseURL != "" {
			cfg.ERP.BaseURL = req.ERP.BaseURL
		}
		if d, err := time.ParseDuration(req.ERP.Timeout); err == nil && d > 0 {
			cfg.ERP.Timeout = d
		}
		if d, err := time.ParseDuration(req.ERP.PollInterval); err == nil && d > 0 {
			cfg.ERP.PollInterval = d
		}
		h.engine.ReconfigureERP()
	}
	if req.Messaging != nil {
		if req.Messaging.Backend != "" {
			cfg.Messaging.Backend = req.Messaging.Backend
		}
		if req.Messaging.BrokerURL != "" {
			cfg.Messaging.BrokerURL = req.Messaging.BrokerURL
		}
		if len(req.Messaging.KafkaBrokers) > 0 {
			cfg.Messaging.KafkaBrokers = req.Messaging.KafkaBrokers
		}
		h.engine.ReconfigureMessaging()
	}

	if err := cfg.Save(h.engine.ConfigPath()); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, map[string]string{"status": "ok"})
}
