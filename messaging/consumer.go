package messaging

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"floorcore/telemetry"
)

// TelemetryIngestor is implemented by the engine; the consumer stays unaware
// of everything past the ingestion boundary.
type TelemetryIngestor interface {
	IngestTelemetry(ctx context.Context, tctx telemetry.Context, p *telemetry.Payload, ts time.Time) ([]string, error)
}

// telemetryMessage is the wire shape published by equipment bridges. The
// equipment-to-work mapping is resolved on the bridge side and travels with
// the payload.
type telemetryMessage struct {
	WorkcenterID int64              `json:"workcenter_id"`
	OrderID      int64              `json:"order_id"`
	LotID        int64              `json:"lot_id"`
	StepID       int64              `json:"step_id"`
	Timestamp    string             `json:"timestamp"`
	Payload      *telemetry.Payload `json:"payload"`
}

// TelemetryConsumer subscribes to the equipment telemetry topic and feeds
// ticks into the engine.
type TelemetryConsumer struct {
	client   *Client
	ingestor TelemetryIngestor
	topic    string
}

func NewTelemetryConsumer(client *Client, ingestor TelemetryIngestor, topic string) *TelemetryConsumer {
	return &TelemetryConsumer{client: client, ingestor: ingestor, topic: topic}
}

func (c *TelemetryConsumer) Start() error {
	return c.client.Subscribe(c.topic, c.handle)
}

func (c *TelemetryConsumer) handle(topic string, payload []byte) {
	var msg telemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Printf("messaging: bad telemetry on %s: %v", topic, err)
		return
	}
	if msg.Payload == nil {
		log.Printf("messaging: telemetry on %s missing payload", topic)
		return
	}

	ts := time.Now()
	if msg.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
			ts = t
		}
	}

	tctx := telemetry.Context{
		WorkcenterID: msg.WorkcenterID,
		OrderID:      msg.OrderID,
		LotID:        msg.LotID,
		StepID:       msg.StepID,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.ingestor.IngestTelemetry(ctx, tctx, msg.Payload, ts); err != nil {
		log.Printf("messaging: telemetry translate failed: %v", err)
	}
}
