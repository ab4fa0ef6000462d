package eventbus

import (
	"context"
	"fmt"

	"github.com/petwalk/petwalk"
)

// ModuleName is the name of this module
const ModuleName = "eventbus"

// ServiceName is the name of the service provided by this module
const ServiceName = "eventbus"

// Module owns the memory event bus.
type Module struct {
	config *Config
	logger petwalk.Logger
	bus    *MemoryEventBus
}

var (
	_ petwalk.Module       = (*Module)(nil)
	_ petwalk.Configurable = (*Module)(nil)
	_ petwalk.ServiceAware = (*Module)(nil)
	_ petwalk.Startable    = (*Module)(nil)
	_ petwalk.Stoppable    = (*Module)(nil)
)

// NewModule creates a new instance of the event bus module
func NewModule() *Module {
	return &Module{}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RegisterConfig(app petwalk.Application) error {
	app.RegisterConfigSection(m.Name(), petwalk.NewStdConfigProvider(&Config{}))
	return nil
}

func (m *Module) Init(app petwalk.Application) error {
	cp, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	cfg, ok := cp.GetConfig().(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", ErrInvalidConfigType, cp.GetConfig())
	}
	m.config = cfg
	m.logger = petwalk.ModuleLogger(app.Logger(), ModuleName)
	m.bus = NewMemoryEventBus(cfg, m.logger)

	m.logger.Debug("Event bus initialized", "workers", cfg.WorkerCount, "delivery", cfg.DeliveryMode)
	return nil
}

// Start starts the bus. Modules depending on eventbus subscribe in their
// own Start, which runs afterwards.
func (m *Module) Start(ctx context.Context) error {
	return m.bus.Start(ctx)
}

func (m *Module) Stop(ctx context.Context) error {
	return m.bus.Stop(ctx)
}

func (m *Module) ProvidesServices() []petwalk.ServiceProvider {
	return []petwalk.ServiceProvider{{
		Name:        ServiceName,
		Description: "In-memory topic pub/sub",
		Instance:    EventBus(m.bus),
	}}
}

func (m *Module) RequiresServices() []petwalk.ServiceDependency {
	return nil
}
