package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Verbose       bool
	Database      DatabaseConfig
	Queue         QueueConfig
	Orders        OrdersConfig
	Inventory     InventoryConfig
	Saga          SagaConfig
	Notifications NotificationsConfig
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path string
}

// QueueConfig holds the on-disk queue settings. Topics live as
// subdirectories of BaseDir.
type QueueConfig struct {
	BaseDir           string
	OrderEvents       string
	FulfillmentEvents string
}

// OrdersConfig holds the order API settings.
type OrdersConfig struct {
	ListenAddr string
	BaseURL    string // where the saga worker reaches the order API
}

// InventoryConfig holds the inventory API settings.
type InventoryConfig struct {
	ListenAddr string
	BaseURL    string // where the saga worker reaches the inventory API
}

// SagaConfig holds the order saga worker settings.
type SagaConfig struct {
	PollInterval time.Duration
	HTTPTimeout  time.Duration
	MaxRetries   int // bounded retries per collaborator call, not per message
}

// NotificationsConfig holds the notification worker settings.
type NotificationsConfig struct {
	PollInterval time.Duration
	SweepEvery   int // run the pending sweep every Nth poll cycle
	SweepBatch   int // max pending notifications revisited per sweep
	SendDelay    time.Duration
}

// Load reads configuration from Viper and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{
		Verbose: viper.GetBool("verbose"),
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Queue: QueueConfig{
			BaseDir:           viper.GetString("queue.base_dir"),
			OrderEvents:       viper.GetString("queue.order_events"),
			FulfillmentEvents: viper.GetString("queue.fulfillment_events"),
		},
		Orders: OrdersConfig{
			ListenAddr: viper.GetString("orders.listen_addr"),
			BaseURL:    viper.GetString("orders.base_url"),
		},
		Inventory: InventoryConfig{
			ListenAddr: viper.GetString("inventory.listen_addr"),
			BaseURL:    viper.GetString("inventory.base_url"),
		},
		Saga: SagaConfig{
			PollInterval: viper.GetDuration("saga.poll_interval"),
			HTTPTimeout:  viper.GetDuration("saga.http_timeout"),
			MaxRetries:   viper.GetInt("saga.max_retries"),
		},
		Notifications: NotificationsConfig{
			PollInterval: viper.GetDuration("notifications.poll_interval"),
			SweepEvery:   viper.GetInt("notifications.sweep_every"),
			SweepBatch:   viper.GetInt("notifications.sweep_batch"),
			SendDelay:    viper.GetDuration("notifications.send_delay"),
		},
	}

	// Apply defaults
	if cfg.Database.Path == "" {
		cfg.Database.Path = "orderflow.db"
	}
	if cfg.Queue.BaseDir == "" {
		cfg.Queue.BaseDir = "queues"
	}
	if cfg.Queue.OrderEvents == "" {
		cfg.Queue.OrderEvents = "order-events"
	}
	if cfg.Queue.FulfillmentEvents == "" {
		cfg.Queue.FulfillmentEvents = "fulfillment-events"
	}
	if cfg.Orders.ListenAddr == "" {
		cfg.Orders.ListenAddr = ":8081"
	}
	if cfg.Orders.BaseURL == "" {
		cfg.Orders.BaseURL = "http://localhost:8081"
	}
	if cfg.Inventory.ListenAddr == "" {
		cfg.Inventory.ListenAddr = ":8082"
	}
	if cfg.Inventory.BaseURL == "" {
		cfg.Inventory.BaseURL = "http://localhost:8082"
	}
	if cfg.Saga.PollInterval == 0 {
		cfg.Saga.PollInterval = 3 * time.Second
	}
	if cfg.Saga.HTTPTimeout == 0 {
		cfg.Saga.HTTPTimeout = 10 * time.Second
	}
	if cfg.Saga.MaxRetries == 0 {
		cfg.Saga.MaxRetries = 2
	}
	if cfg.Notifications.PollInterval == 0 {
		cfg.Notifications.PollInterval = 5 * time.Second
	}
	if cfg.Notifications.SweepEvery == 0 {
		cfg.Notifications.SweepEvery = 6
	}
	if cfg.Notifications.SweepBatch == 0 {
		cfg.Notifications.SweepBatch = 10
	}
	if cfg.Notifications.SendDelay == 0 {
		cfg.Notifications.SendDelay = 500 * time.Millisecond
	}

	return cfg, nil
}
