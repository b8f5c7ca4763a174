package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"floorcore/config"
)

// MessageHandler receives one raw message from a subscription.
type MessageHandler func(topic string, payload []byte)

// backend abstracts the broker so mqtt and kafka are interchangeable.
type backend interface {
	Connect() error
	Close()
	IsConnected() bool
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler MessageHandler) error
}

// Client is the broker connection shared by the whole process. The backend
// is chosen by config and can be swapped at runtime via Reconfigure.
type Client struct {
	mu      sync.Mutex
	cfg     config.MessagingConfig
	backend backend
}

func NewClient(cfg *config.MessagingConfig) (*Client, error) {
	c := &Client{}
	if err := c.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Reconfigure tears down the current backend and connects per the new config.
// Subscriptions do not survive; callers re-subscribe after a reconfigure.
func (c *Client) Reconfigure(cfg *config.MessagingConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		c.backend.Close()
		c.backend = nil
	}

	var b backend
	switch cfg.Backend {
	case "mqtt":
		b = newMQTTBackend(cfg)
	case "kafka":
		b = newKafkaBackend(cfg)
	default:
		return fmt.Errorf("messaging: unknown backend %q", cfg.Backend)
	}
	if err := b.Connect(); err != nil {
		return err
	}
	c.cfg = *cfg
	c.backend = b
	log.Printf("messaging: connected (%s)", cfg.Backend)
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		c.backend.Close()
		c.backend = nil
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend != nil && c.backend.IsConnected()
}

func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	b := c.backend
	c.mu.Unlock()
	if b == nil {
		return fmt.Errorf("messaging: not connected")
	}
	return b.Publish(topic, payload)
}

func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	b := c.backend
	c.mu.Unlock()
	if b == nil {
		return fmt.Errorf("messaging: not connected")
	}
	return b.Subscribe(topic, handler)
}

// --- MQTT backend ---

type mqttBackend struct {
	cfg    config.MessagingConfig
	client mqtt.Client
}

func newMQTTBackend(cfg *config.MessagingConfig) *mqttBackend {
	return &mqttBackend{cfg: *cfg}
}

func (b *mqttBackend) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("messaging: mqtt connection lost: %v", err)
	})

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("messaging: mqtt connect timeout (%s)", b.cfg.BrokerURL)
	}
	return token.Error()
}

func (b *mqttBackend) Close() {
	if b.client != nil {
		b.client.Disconnect(250)
	}
}

func (b *mqttBackend) IsConnected() bool {
	return b.client != nil && b.client.IsConnectionOpen()
}

func (b *mqttBackend) Publish(topic string, payload []byte) error {
	token := b.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("messaging: mqtt publish timeout on %s", topic)
	}
	return token.Error()
}

func (b *mqttBackend) Subscribe(topic string, handler MessageHandler) error {
	token := b.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("messaging: mqtt subscribe timeout on %s", topic)
	}
	return token.Error()
}

// --- Kafka backend ---

type kafkaBackend struct {
	cfg     config.MessagingConfig
	writers map[string]*kafka.Writer
	cancel  context.CancelFunc
	ctx     context.Context
	mu      sync.Mutex
	closed  bool
}

func newKafkaBackend(cfg *config.MessagingConfig) *kafkaBackend {
	ctx, cancel := context.WithCancel(context.Background())
	return &kafkaBackend{
		cfg:     *cfg,
		writers: make(map[string]*kafka.Writer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *kafkaBackend) Connect() error {
	if len(b.cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("messaging: kafka backend requires kafka_brokers")
	}
	return nil
}

func (b *kafkaBackend) Close() {
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, w := range b.writers {
		w.Close()
	}
}

func (b *kafkaBackend) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *kafkaBackend) writer(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(b.cfg.KafkaBrokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		}
		b.writers[topic] = w
	}
	return w
}

func (b *kafkaBackend) Publish(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(b.ctx, 10*time.Second)
	defer cancel()
	return b.writer(topic).WriteMessages(ctx, kafka.Message{Value: payload})
}

func (b *kafkaBackend) Subscribe(topic string, handler MessageHandler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.cfg.KafkaBrokers,
		GroupID:  b.cfg.ClientID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
	go func() {
		defer reader.Close()
		for {
			msg, err := reader.FetchMessage(b.ctx)
			if err != nil {
				if b.ctx.Err() != nil {
					return
				}
				log.Printf("messaging: kafka fetch %s: %v", topic, err)
				time.Sleep(time.Second)
				continue
			}
			handler(msg.Topic, msg.Value)
			if err := reader.CommitMessages(b.ctx, msg); err != nil && b.ctx.Err() == nil {
				log.Printf("messaging: kafka commit %s: %v", topic, err)
			}
		}
	}()
	return nil
}
