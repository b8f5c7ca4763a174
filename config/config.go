package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	PlantID   string          `yaml:"plant_id"`
	Web       WebConfig       `yaml:"web"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Messaging MessagingConfig `yaml:"messaging"`
	ERP       ERPConfig       `yaml:"erp"`
	Execution ExecutionConfig `yaml:"execution"`
	Downtime  DowntimeConfig  `yaml:"downtime"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Shifts    []ShiftConfig   `yaml:"shifts"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "mqtt" or "kafka"
	BrokerURL           string        `yaml:"broker_url"`
	KafkaBrokers        []string      `yaml:"kafka_brokers"`
	ClientID            string        `yaml:"client_id"`
	Username            string        `yaml:"username"`
	Password            string        `yaml:"password"`
	TelemetryTopic      string        `yaml:"telemetry_topic"`
	EventTopicPrefix    string        `yaml:"event_topic_prefix"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

type ERPConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type ExecutionConfig struct {
	// DedupBucket is the coarse time bucket for the idempotency fingerprint.
	DedupBucket time.Duration `yaml:"dedup_bucket"`
	// DedupTTL is how long accepted fingerprints are remembered.
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

type DowntimeConfig struct {
	// MicroStopThreshold separates micro-stops from long stoppages.
	MicroStopThreshold time.Duration `yaml:"micro_stop_threshold"`
}

type TelemetryConfig struct {
	TemperatureThreshold float64       `yaml:"temperature_threshold"`
	VibrationThreshold   float64       `yaml:"vibration_threshold"`
	AlertDebounce        time.Duration `yaml:"alert_debounce"`
}

// ShiftConfig defines one shift window per day. Times are "HH:MM" local.
type ShiftConfig struct {
	Number int    `yaml:"number"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		PlantID: "plant-1",
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			SessionSecret: "floorcore-dev-secret",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "floorcore.db"},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Redis: RedisConfig{Address: "localhost:6379"},
		Messaging: MessagingConfig{
			Backend:             "mqtt",
			BrokerURL:           "tcp://localhost:1883",
			ClientID:            "floorcore",
			TelemetryTopic:      "v1/devices/me/telemetry",
			EventTopicPrefix:    "floorcore/events",
			OutboxDrainInterval: 2 * time.Second,
		},
		ERP: ERPConfig{
			Timeout:      10 * time.Second,
			PollInterval: 30 * time.Second,
		},
		Execution: ExecutionConfig{
			DedupBucket: time.Second,
			DedupTTL:    24 * time.Hour,
		},
		Downtime: DowntimeConfig{
			MicroStopThreshold: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			TemperatureThreshold: 80,
			VibrationThreshold:   10,
			AlertDebounce:        30 * time.Second,
		},
		Shifts: []ShiftConfig{
			{Number: 1, Start: "06:00", End: "14:00"},
			{Number: 2, Start: "14:00", End: "22:00"},
			{Number: 3, Start: "22:00", End: "06:00"},
		},
	}
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
