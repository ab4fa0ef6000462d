package routes

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Config defines the saved routes module configuration.
//
// Example YAML configuration:
//
//	routes:
//	  resync_schedule: "@every 5m"
//	  refresh_timeout: 10s
type Config struct {
	// ResyncSchedule is a cron expression for periodic refreshes. Empty
	// disables the schedule.
	ResyncSchedule string `yaml:"resync_schedule" json:"resync_schedule" toml:"resync_schedule" env:"RESYNC_SCHEDULE"`

	// RefreshTimeout bounds refreshes triggered by events or the schedule.
	RefreshTimeout time.Duration `yaml:"refresh_timeout" json:"refresh_timeout" toml:"refresh_timeout" env:"REFRESH_TIMEOUT" default:"10s"`
}

// Validate implements petwalk.ConfigValidator.
func (c *Config) Validate() error {
	if c.ResyncSchedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.ResyncSchedule); err != nil {
		return fmt.Errorf("%w '%s': %w", ErrInvalidSchedule, c.ResyncSchedule, err)
	}
	return nil
}
