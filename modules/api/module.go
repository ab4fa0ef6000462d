package api

import (
	"fmt"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/directory"
	"github.com/petwalk/petwalk/modules/httpclient"
)

const (
	ModuleName  = "api"
	ServiceName = "api"
)

type Module struct {
	client *Client
}

var (
	_ petwalk.Module          = (*Module)(nil)
	_ petwalk.Configurable    = (*Module)(nil)
	_ petwalk.DependencyAware = (*Module)(nil)
	_ petwalk.ServiceAware    = (*Module)(nil)
)

func NewModule() *Module {
	return &Module{}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) Dependencies() []string {
	return []string{directory.ModuleName, httpclient.ModuleName}
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

	hc, err := petwalk.GetService[httpclient.ClientService](app, httpclient.ServiceName)
	if err != nil {
		return err
	}
	dir, err := petwalk.GetService[directory.Service](app, directory.ServiceName)
	if err != nil {
		return err
	}
	m.client = NewClient(hc, dir, cfg, petwalk.ModuleLogger(app.Logger(), ModuleName))
	return nil
}

func (m *Module) ProvidesServices() []petwalk.ServiceProvider {
	return []petwalk.ServiceProvider{{
		Name:        ServiceName,
		Description: "Typed backend API",
		Instance:    Backend(m.client),
	}}
}

func (m *Module) RequiresServices() []petwalk.ServiceDependency {
	return []petwalk.ServiceDependency{
		{Name: directory.ServiceName, Required: true},
		{Name: httpclient.ServiceName, Required: true},
	}
}

// Client returns the API client. Nil before Init.
func (m *Module) Client() *Client {
	return m.client
}
