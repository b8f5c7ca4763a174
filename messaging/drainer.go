package messaging

import (
	"log"
	"time"

	"floorcore/store"
)

const maxOutboxRetries = 10

// OutboxDrainer publishes queued messages to the broker. Handlers enqueue to
// the outbox table in the same breath as their state change; the drainer
// retries delivery until it sticks, so a broker outage never loses fan-out.
type OutboxDrainer struct {
	db       *store.DB
	client   *Client
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewOutboxDrainer(db *store.DB, client *Client, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OutboxDrainer{
		db:       db,
		client:   client,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *OutboxDrainer) Start() {
	go d.run()
}

func (d *OutboxDrainer) Stop() {
	close(d.stop)
	<-d.done
}

func (d *OutboxDrainer) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.Drain()
		}
	}
}

// Drain attempts delivery of all pending messages once.
func (d *OutboxDrainer) Drain() {
	if !d.client.IsConnected() {
		return
	}
	msgs, err := d.db.ListPendingOutbox(100)
	if err != nil {
		log.Printf("messaging: list outbox: %v", err)
		return
	}
	for _, m := range msgs {
		if m.Retries >= maxOutboxRetries {
			// Poison message; mark sent so it stops clogging the queue.
			log.Printf("messaging: dropping outbox %d (%s) after %d retries", m.ID, m.MsgType, m.Retries)
			d.db.MarkOutboxSent(m.ID)
			continue
		}
		if err := d.client.Publish(m.Topic, m.Payload); err != nil {
			log.Printf("messaging: publish outbox %d to %s: %v", m.ID, m.Topic, err)
			d.db.BumpOutboxRetries(m.ID)
			continue
		}
		if err := d.db.MarkOutboxSent(m.ID); err != nil {
			log.Printf("messaging: mark outbox %d sent: %v", m.ID, err)
		}
	}
}
