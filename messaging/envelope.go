package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope wraps every message published or consumed by the core.
type Envelope struct {
	MsgID     string          `json:"msg_id"`
	MsgType   string          `json:"msg_type"`
	PlantID   string          `json:"plant_id"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewEnvelope(msgType, plantID string, payload any) *Envelope {
	data, _ := json.Marshal(payload)
	return &Envelope{
		MsgID:     uuid.NewString(),
		MsgType:   msgType,
		PlantID:   plantID,
		Timestamp: time.Now().Format(time.RFC3339),
		Payload:   data,
	}
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("messaging: decode envelope: %w", err)
	}
	if e.MsgType == "" {
		return nil, fmt.Errorf("messaging: envelope missing msg_type")
	}
	return &e, nil
}

// EventTopic builds the fan-out topic for one event category.
func EventTopic(prefix, category string) string {
	return fmt.Sprintf("%s/%s", prefix, category)
}
