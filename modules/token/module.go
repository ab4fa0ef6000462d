package token

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/httpclient"
)

const (
	ModuleName  = "token"
	ServiceName = "token"
)

// Module owns the Store, installs it as the HTTP client's unauthorized
// handler and runs the file watcher.
type Module struct {
	config *Config
	logger petwalk.Logger
	store  *Store

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	_ petwalk.Module          = (*Module)(nil)
	_ petwalk.Configurable    = (*Module)(nil)
	_ petwalk.DependencyAware = (*Module)(nil)
	_ petwalk.ServiceAware    = (*Module)(nil)
	_ petwalk.Startable       = (*Module)(nil)
	_ petwalk.Stoppable       = (*Module)(nil)
)

func NewModule() *Module {
	return &Module{}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) Dependencies() []string {
	return []string{httpclient.ModuleName}
}

func (m *Module) RegisterConfig(app petwalk.Application) error {
	app.RegisterConfigSection(m.Name(), petwalk.NewStdConfigProvider(&Config{}))
	return nil
}

func (m *Module) Init(app petwalk.Application) error {
	m.logger = petwalk.ModuleLogger(app.Logger(), ModuleName)

	cp, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	cfg, ok := cp.GetConfig().(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", ErrInvalidConfigType, cp.GetConfig())
	}
	m.config = cfg

	m.store = NewStore(cfg.File,
		WithLogger(m.logger),
		WithSubject(app),
		WithRedirect(cfg.Redirect),
	)
	if err := m.store.Load(); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	client, err := petwalk.GetService[httpclient.ClientService](app, httpclient.ServiceName)
	if err != nil {
		return fmt.Errorf("token module requires the http client: %w", err)
	}
	client.SetUnauthorizedHandler(m.store)

	m.logger.Debug("Token store initialized", "path", cfg.File, "present", m.store.Token() != "")
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	if m.config.DisableWatch {
		return nil
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.store.Watch(ctx); err != nil {
			m.logger.Error("Session file watcher stopped", "error", err)
		}
	}()
	return nil
}

func (m *Module) Stop(context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

func (m *Module) ProvidesServices() []petwalk.ServiceProvider {
	return []petwalk.ServiceProvider{{
		Name:        ServiceName,
		Description: "Session token store",
		Instance:    Service(m.store),
	}}
}

func (m *Module) RequiresServices() []petwalk.ServiceDependency {
	return []petwalk.ServiceDependency{{
		Name:               httpclient.ServiceName,
		Required:           true,
		SatisfiesInterface: reflect.TypeOf((*httpclient.ClientService)(nil)).Elem(),
	}}
}

// Store returns the module's store. Nil before Init.
func (m *Module) Store() *Store {
	return m.store
}
