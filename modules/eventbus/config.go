package eventbus

import (
	"fmt"
	"time"
)

// Delivery modes applied when a subscriber's buffer is full.
const (
	DeliveryDrop    = "drop"
	DeliveryBlock   = "block"
	DeliveryTimeout = "timeout"
)

// Config defines the event bus configuration.
type Config struct {
	// BufferSize is the per-subscription channel capacity.
	BufferSize int `yaml:"buffer_size" json:"buffer_size" toml:"buffer_size" env:"BUFFER_SIZE" default:"64"`

	// WorkerCount is the number of goroutines serving async subscriptions.
	WorkerCount int `yaml:"worker_count" json:"worker_count" toml:"worker_count" env:"WORKER_COUNT" default:"4"`

	// DeliveryMode is one of drop, block or timeout.
	DeliveryMode string `yaml:"delivery_mode" json:"delivery_mode" toml:"delivery_mode" env:"DELIVERY_MODE" default:"drop"`

	// PublishBlockTimeout bounds the wait in timeout mode.
	PublishBlockTimeout time.Duration `yaml:"publish_block_timeout" json:"publish_block_timeout" toml:"publish_block_timeout" env:"PUBLISH_BLOCK_TIMEOUT" default:"250ms"`
}

// Validate implements petwalk.ConfigValidator.
func (c *Config) Validate() error {
	switch c.DeliveryMode {
	case DeliveryDrop, DeliveryBlock, DeliveryTimeout:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDeliveryMode, c.DeliveryMode)
	}
	if c.BufferSize < 1 || c.WorkerCount < 1 {
		return fmt.Errorf("config validation error: buffer_size and worker_count must be positive")
	}
	return nil
}
