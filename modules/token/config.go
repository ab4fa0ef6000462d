package token

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config defines the token module configuration.
type Config struct {
	// File is the session file. Empty means <user config dir>/petwalk/session.
	File string `yaml:"file" json:"file" toml:"file" env:"FILE"`

	// DisableWatch stops following changes made by other processes.
	DisableWatch bool `yaml:"disable_watch" json:"disable_watch" toml:"disable_watch" env:"DISABLE_WATCH"`

	// Redirect is the location announced when the token is cleared.
	Redirect string `yaml:"redirect" json:"redirect" toml:"redirect" env:"REDIRECT" default:"/about"`
}

// Setup resolves the default session file location.
func (c *Config) Setup() error {
	if c.File != "" {
		return nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileRequired, err)
	}
	c.File = filepath.Join(dir, "petwalk", "session")
	return nil
}
