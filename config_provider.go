package petwalk

import (
	"fmt"
	"reflect"
)

const mainConfigSection = "_main"

// ConfigProvider defines the interface for providing configuration objects
type ConfigProvider interface {
	// GetConfig returns the configuration object
	GetConfig() any
}

// StdConfigProvider provides a standard implementation of ConfigProvider
type StdConfigProvider struct {
	cfg any
}

// GetConfig returns the configuration object
func (s *StdConfigProvider) GetConfig() any {
	return s.cfg
}

// NewStdConfigProvider creates a new standard configuration provider
func NewStdConfigProvider(cfg any) *StdConfigProvider {
	return &StdConfigProvider{cfg: cfg}
}

// Feeder populates a configuration struct from one source.
type Feeder interface {
	Feed(structure any) error
}

// ComplexFeeder can also populate a single named section.
// Module sections are only fed through FeedKey.
type ComplexFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

// ConfigSetup is an interface that configs can implement
// to perform additional setup after being populated by feeders
type ConfigSetup interface {
	Setup() error
}

// loadConfig feeds the main config and every registered section, then
// applies defaults, required checks and custom validation.
func (app *App) loadConfig() error {
	if app.cfgProvider != nil {
		if mainCfg := app.cfgProvider.GetConfig(); mainCfg != nil {
			if err := app.feedSection(mainConfigSection, mainCfg); err != nil {
				return err
			}
		}
	}

	for _, section := range app.sectionOrder {
		provider := app.cfgSections[section]
		if provider == nil || provider.GetConfig() == nil {
			app.logger.Warn("Skipping section with nil config", "section", section)
			continue
		}
		if err := app.feedSection(section, provider.GetConfig()); err != nil {
			return err
		}
	}
	return nil
}

func (app *App) feedSection(section string, cfg any) error {
	if len(app.feeders) == 0 {
		app.logger.Debug("No config feeders defined", "section", section)
	}

	for _, f := range app.feeders {
		var err error
		if section == mainConfigSection {
			err = f.Feed(cfg)
		} else if cf, ok := f.(ComplexFeeder); ok {
			err = cf.FeedKey(section, cfg)
		} else {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: section %s (%T): %w", ErrConfigFeederError, section, f, err)
		}
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("config validation error for %s: %w", section, err)
	}

	if setupable, ok := cfg.(ConfigSetup); ok {
		if err := setupable.Setup(); err != nil {
			return fmt.Errorf("config setup error for %s: %w", section, err)
		}
	}

	app.logger.Debug("Loaded config section", "section", section, "type", reflect.TypeOf(cfg))
	return nil
}
