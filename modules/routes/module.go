package routes

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/eventbus"
	"github.com/petwalk/petwalk/modules/notifier"
	"github.com/petwalk/petwalk/modules/token"
)

const (
	ModuleName  = "routes"
	ServiceName = "routes"
)

// TopicPattern matches the route notifications forwarded by the notifier.
const TopicPattern = notifier.TopicPrefix + "route*"

// Module owns the List and keeps it fresh: on sign-in, on route
// notifications and on the optional cron schedule.
type Module struct {
	config *Config
	logger petwalk.Logger
	list   *List
	tokens token.Service
	bus    eventbus.EventBus

	cron        *cron.Cron
	refreshes   singleflight.Group
	sub         eventbus.Subscription
	unsubscribe func()
	// lifeMu orders wg.Add in refreshAsync against Stop's wg.Wait.
	lifeMu  sync.Mutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
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
	return []string{api.ModuleName, token.ModuleName, eventbus.ModuleName}
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

	backend, err := petwalk.GetService[api.Backend](app, api.ServiceName)
	if err != nil {
		return err
	}
	if m.tokens, err = petwalk.GetService[token.Service](app, token.ServiceName); err != nil {
		return err
	}
	if m.bus, err = petwalk.GetService[eventbus.EventBus](app, eventbus.ServiceName); err != nil {
		return err
	}

	m.list = NewList(backend, m.tokens, m.logger, app)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.stopped = false
	m.lifeMu.Unlock()

	sub, err := m.bus.SubscribeAsync(m.ctx, TopicPattern, func(_ context.Context, e eventbus.Event) error {
		m.logger.Debug("Route notification, refreshing", "topic", e.Topic)
		m.refreshAsync()
		return nil
	})
	if err != nil {
		m.cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", TopicPattern, err)
	}
	m.sub = sub

	m.unsubscribe = m.tokens.Subscribe(func(c token.Change) {
		if c.Kind == token.ChangeCleared {
			m.list.Reset()
			return
		}
		m.refreshAsync()
	})

	if m.config.ResyncSchedule != "" {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(m.config.ResyncSchedule, m.refreshAsync); err != nil {
			m.cancel()
			return fmt.Errorf("%w '%s': %w", ErrInvalidSchedule, m.config.ResyncSchedule, err)
		}
		m.cron.Start()
		m.logger.Info("Route resync scheduled", "schedule", m.config.ResyncSchedule)
	}

	if m.tokens.Token() != "" {
		m.refreshAsync()
	}
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	m.lifeMu.Lock()
	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
	m.lifeMu.Unlock()

	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if m.sub != nil {
		_ = m.bus.Unsubscribe(ctx, m.sub)
	}
	if m.cron != nil {
		cronCtx := m.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
			m.logger.Warn("Route resync shutdown timed out")
		}
	}
	m.wg.Wait()
	return nil
}

// refreshAsync refreshes in the background; overlapping triggers share
// one backend call.
func (m *Module) refreshAsync() {
	m.lifeMu.Lock()
	if m.stopped || m.ctx == nil {
		m.lifeMu.Unlock()
		return
	}
	parent := m.ctx
	m.wg.Add(1)
	m.lifeMu.Unlock()

	go func() {
		defer m.wg.Done()
		_, err, _ := m.refreshes.Do("refresh", func() (any, error) {
			ctx, cancel := context.WithTimeout(parent, m.config.RefreshTimeout)
			defer cancel()
			return nil, m.list.Refresh(ctx)
		})
		if err != nil && !errors.Is(err, ErrNotSignedIn) && !errors.Is(err, context.Canceled) {
			m.logger.Warn("Failed to refresh saved routes", "error", err)
		}
	}()
}

func (m *Module) ProvidesServices() []petwalk.ServiceProvider {
	return []petwalk.ServiceProvider{{
		Name:        ServiceName,
		Description: "Saved routes kept in sync with the backend",
		Instance:    Service(m.list),
	}}
}

func (m *Module) RequiresServices() []petwalk.ServiceDependency {
	return []petwalk.ServiceDependency{
		{Name: api.ServiceName, Required: true},
		{Name: token.ServiceName, Required: true},
		{Name: eventbus.ServiceName, Required: true},
	}
}

// List returns the routes list; nil before Init.
func (m *Module) List() *List {
	return m.list
}
