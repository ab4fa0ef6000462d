package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/petwalk/petwalk"
)

const (
	// ModuleName is the name of the directory module.
	ModuleName = "directory"

	// ServiceName is the name the *Directory is registered under.
	ServiceName = "directory"
)

// Module owns the client's Directory. On Start it loads the directory in
// the background; a failed load is logged and the gate stays closed.
type Module struct {
	config  *Config
	app     petwalk.Application
	logger  petwalk.Logger
	dir     *Directory
	fetcher Fetcher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	_ petwalk.Module       = (*Module)(nil)
	_ petwalk.Configurable = (*Module)(nil)
	_ petwalk.ServiceAware = (*Module)(nil)
	_ petwalk.Startable    = (*Module)(nil)
	_ petwalk.Stoppable    = (*Module)(nil)
)

// NewModule creates the directory module. The discovery call goes over
// HTTP unless WithFetcher replaces it.
func NewModule() *Module {
	return &Module{}
}

// WithFetcher overrides how descriptors are fetched.
func (m *Module) WithFetcher(f Fetcher) *Module {
	m.fetcher = f
	return m
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RegisterConfig(app petwalk.Application) error {
	app.RegisterConfigSection(m.Name(), petwalk.NewStdConfigProvider(&Config{
		Fallbacks: DefaultFallbacks(),
	}))
	return nil
}

func (m *Module) Init(app petwalk.Application) error {
	m.app = app
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

	fetcher := m.fetcher
	if fetcher == nil {
		fetcher = &HTTPFetcher{
			Client:  &http.Client{Timeout: cfg.RequestTimeout},
			BaseURL: cfg.DiscoveryURL,
			Path:    cfg.DiscoveryPath,
		}
	}

	m.dir = New(fetcher,
		WithLogger(m.logger),
		WithReadyTimeout(cfg.ReadyTimeout),
		WithFallbacks(cfg.Fallbacks),
	)
	return nil
}

// Start launches the background load unless ManualLoad is set.
func (m *Module) Start(ctx context.Context) error {
	if m.config.ManualLoad {
		m.logger.Info("Directory load deferred to caller")
		return nil
	}

	loadCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.Load(loadCtx)
	}()
	return nil
}

// Load runs Directory.Load and emits the outcome as an event.
func (m *Module) Load(ctx context.Context) error {
	err := m.dir.Load(ctx)
	switch {
	case err == nil:
		petwalk.Emit(ctx, m.app, m.logger, "petwalk.directory", petwalk.EventTypeDirectoryLoaded, map[string]any{
			"services": len(m.dir.Records()),
		})
	case errors.Is(err, ErrAlreadyLoaded):
	default:
		m.logger.Error("Failed to load service directory", "error", err)
		petwalk.Emit(ctx, m.app, m.logger, "petwalk.directory", petwalk.EventTypeDirectoryFailed, map[string]any{
			"error": err.Error(),
		})
	}
	return err
}

// Stop cancels an in-flight background load and waits for it.
func (m *Module) Stop(context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

func (m *Module) ProvidesServices() []petwalk.ServiceProvider {
	return []petwalk.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "Service directory with readiness gate",
			Instance:    m.dir,
		},
	}
}

func (m *Module) RequiresServices() []petwalk.ServiceDependency {
	return nil
}

// Directory returns the module's directory; nil before Init.
func (m *Module) Directory() *Directory {
	return m.dir
}
