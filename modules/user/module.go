package user

import (
	"context"
	"fmt"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/eventbus"
	"github.com/petwalk/petwalk/modules/notifier"
	"github.com/petwalk/petwalk/modules/token"
)

const (
	ModuleName  = "user"
	ServiceName = "user"
)

type Module struct {
	logger   petwalk.Logger
	session  *Session
	tokens   token.Service
	notifier notifier.Service
	bus      eventbus.EventBus

	cancel      context.CancelFunc
	unsubscribe func()
	sub         eventbus.Subscription
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
	return []string{api.ModuleName, token.ModuleName, notifier.ModuleName, eventbus.ModuleName}
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

	backend, err := petwalk.GetService[api.Backend](app, api.ServiceName)
	if err != nil {
		return err
	}
	if m.tokens, err = petwalk.GetService[token.Service](app, token.ServiceName); err != nil {
		return err
	}
	if m.notifier, err = petwalk.GetService[notifier.Service](app, notifier.ServiceName); err != nil {
		return err
	}
	if m.bus, err = petwalk.GetService[eventbus.EventBus](app, eventbus.ServiceName); err != nil {
		return err
	}

	m.session = NewSession(backend, m.tokens, cfg, m.logger, app)
	return nil
}

// Start follows token changes and the notifier's connection topics.
func (m *Module) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	sub, err := m.bus.Subscribe(ctx, "notifier.*", func(_ context.Context, e eventbus.Event) error {
		switch e.Topic {
		case notifier.TopicConnected:
			m.session.NotifierChanged(ctx, true)
		case notifier.TopicDisconnected:
			m.session.NotifierChanged(ctx, false)
		}
		return nil
	})
	if err != nil {
		m.cancel()
		return fmt.Errorf("failed to subscribe to notifier topics: %w", err)
	}
	m.sub = sub
	m.unsubscribe = m.tokens.Subscribe(func(c token.Change) { m.session.TokenChanged(ctx, c) })

	if m.notifier.Connected() {
		m.session.NotifierChanged(ctx, true)
	} else if tok := m.tokens.Token(); tok != "" && m.session.eager {
		m.session.fetch(ctx, tok)
	}
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.session.Close()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if m.sub != nil {
		_ = m.bus.Unsubscribe(ctx, m.sub)
	}
	return nil
}

func (m *Module) ProvidesServices() []petwalk.ServiceProvider {
	return []petwalk.ServiceProvider{{
		Name:        ServiceName,
		Description: "Signed-in user profile",
		Instance:    Service(m.session),
	}}
}

func (m *Module) RequiresServices() []petwalk.ServiceDependency {
	return []petwalk.ServiceDependency{
		{Name: api.ServiceName, Required: true},
		{Name: token.ServiceName, Required: true},
		{Name: notifier.ServiceName, Required: true},
		{Name: eventbus.ServiceName, Required: true},
	}
}

// Session returns the user session; nil before Init.
func (m *Module) Session() *Session {
	return m.session
}
