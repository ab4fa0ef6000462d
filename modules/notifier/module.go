package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/directory"
	"github.com/petwalk/petwalk/modules/eventbus"
	"github.com/petwalk/petwalk/modules/token"
)

const (
	ModuleName  = "notifier"
	ServiceName = "notifier"
)

// Bus topics.
const (
	TopicPrefix       = "notification."
	TopicConnected    = "notifier.connected"
	TopicDisconnected = "notifier.disconnected"
)

// Service reports the connection state.
type Service interface {
	Connected() bool
}

// Module follows the session token: connected while a token exists,
// disconnected otherwise.
type Module struct {
	config  *Config
	logger  petwalk.Logger
	subject petwalk.Subject
	dir     directory.Service
	tokens  token.Service
	bus     eventbus.EventBus
	dialer  *websocket.Dialer

	changes     chan string
	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu   sync.RWMutex
	conn *Conn
}

var (
	_ petwalk.Module          = (*Module)(nil)
	_ petwalk.Configurable    = (*Module)(nil)
	_ petwalk.DependencyAware = (*Module)(nil)
	_ petwalk.ServiceAware    = (*Module)(nil)
	_ petwalk.Startable       = (*Module)(nil)
	_ petwalk.Stoppable       = (*Module)(nil)
	_ Service                 = (*Module)(nil)
)

func NewModule() *Module {
	return &Module{
		dialer:  &websocket.Dialer{Proxy: websocket.DefaultDialer.Proxy},
		changes: make(chan string, 1),
	}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) Dependencies() []string {
	return []string{directory.ModuleName, token.ModuleName, eventbus.ModuleName}
}

func (m *Module) RegisterConfig(app petwalk.Application) error {
	app.RegisterConfigSection(m.Name(), petwalk.NewStdConfigProvider(&Config{}))
	return nil
}

func (m *Module) Init(app petwalk.Application) error {
	m.logger = petwalk.ModuleLogger(app.Logger(), ModuleName)
	m.subject = app

	cp, err := app.GetConfigSection(m.Name())
	if err != nil {
		return fmt.Errorf("failed to get config section '%s': %w", m.Name(), err)
	}
	cfg, ok := cp.GetConfig().(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", ErrInvalidConfigType, cp.GetConfig())
	}
	m.config = cfg
	m.dialer.HandshakeTimeout = cfg.ConnectTimeout

	if m.dir, err = petwalk.GetService[directory.Service](app, directory.ServiceName); err != nil {
		return err
	}
	if m.tokens, err = petwalk.GetService[token.Service](app, token.ServiceName); err != nil {
		return err
	}
	if m.bus, err = petwalk.GetService[eventbus.EventBus](app, eventbus.ServiceName); err != nil {
		return err
	}
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	if m.config.Disabled {
		m.logger.Info("Notifier disabled")
		return nil
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.unsubscribe = m.tokens.Subscribe(func(c token.Change) { m.signal(c.Token) })

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, m.tokens.Token())
	}()
	return nil
}

func (m *Module) Stop(context.Context) error {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	return nil
}

func (m *Module) ProvidesServices() []petwalk.ServiceProvider {
	return []petwalk.ServiceProvider{{
		Name:        ServiceName,
		Description: "Push notification connection state",
		Instance:    Service(m),
	}}
}

func (m *Module) RequiresServices() []petwalk.ServiceDependency {
	return []petwalk.ServiceDependency{
		{Name: directory.ServiceName, Required: true},
		{Name: token.ServiceName, Required: true},
		{Name: eventbus.ServiceName, Required: true},
	}
}

// Connected reports whether a notifier connection is established.
func (m *Module) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil
}

// signal hands the latest token to the run loop; older pending values are
// replaced.
func (m *Module) signal(tok string) {
	for {
		select {
		case m.changes <- tok:
			return
		default:
		}
		select {
		case <-m.changes:
		default:
		}
	}
}

func (m *Module) run(ctx context.Context, current string) {
	var conn *Conn
	var retry <-chan time.Time

	// ready is selected only while a token waits for the directory.
	ready := m.readyChan(ctx)
	var waiting <-chan struct{}

	connect := func() {
		waiting = nil
		if current == "" {
			return
		}
		select {
		case <-ready:
		default:
			waiting = ready
			return
		}
		c, err := m.connect(ctx, current)
		switch {
		case err == nil:
			if m.tokens.Token() != current {
				// cleared or replaced while dialing
				_ = c.Close()
				return
			}
			conn = c
			m.setConn(ctx, c)
		case ctx.Err() != nil:
		case errors.Is(err, ErrNotifierUnknown):
			m.logger.Warn("No notifier in service directory; notifications disabled")
		default:
			m.logger.Warn("Failed to connect to notifier", "error", err, "retry_in", m.config.ReconnectDelay)
			retry = time.After(m.config.ReconnectDelay)
		}
	}
	disconnect := func() {
		if conn == nil {
			return
		}
		_ = conn.Close()
		conn = nil
		m.setConn(ctx, nil)
	}

	connect()
	for {
		var dropped <-chan struct{}
		if conn != nil {
			dropped = conn.Done()
		}

		select {
		case <-ctx.Done():
			disconnect()
			return

		case tok := <-m.changes:
			retry = nil
			if tok == current && conn != nil {
				continue
			}
			current = tok
			disconnect()
			connect()

		case <-waiting:
			connect()

		case <-dropped:
			m.logger.Warn("Notifier connection lost", "error", conn.Err())
			_ = conn.Close()
			conn = nil
			m.setConn(ctx, nil)
			retry = time.After(m.config.ReconnectDelay)

		case <-retry:
			retry = nil
			connect()
		}
	}
}

// readyChan returns a channel closed once the directory is ready.
func (m *Module) readyChan(ctx context.Context) <-chan struct{} {
	if d, ok := m.dir.(interface{ Done() <-chan struct{} }); ok {
		return d.Done()
	}
	ch := make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			if m.dir.AwaitReady(ctx) == nil {
				close(ch)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.config.ReconnectDelay):
			}
		}
	}()
	return ch
}

func (m *Module) connect(ctx context.Context, tok string) (*Conn, error) {
	rec, ok := m.dir.Lookup(m.config.Service)
	if !ok {
		return nil, ErrNotifierUnknown
	}
	endpoint, err := SocketURL(rec.URL, tok)
	if err != nil {
		return nil, err
	}
	return Dial(ctx, m.dialer, endpoint, m.config.ConnectTimeout, m.forward(ctx), m.logger)
}

func (m *Module) forward(ctx context.Context) EventFunc {
	return func(name string, payload json.RawMessage) {
		m.logger.Debug("Notification received", "event", name)
		if err := m.bus.Publish(ctx, eventbus.Event{Topic: TopicPrefix + name, Payload: payload}); err != nil {
			m.logger.Warn("Failed to publish notification", "event", name, "error", err)
		}
	}
}

func (m *Module) setConn(ctx context.Context, c *Conn) {
	m.mu.Lock()
	m.conn = c
	m.mu.Unlock()

	topic, eventType := TopicDisconnected, petwalk.EventTypeNotifierDisconnected
	if c != nil {
		topic, eventType = TopicConnected, petwalk.EventTypeNotifierConnected
		m.logger.Info("Connected to notifier")
	} else {
		m.logger.Info("Disconnected from notifier")
	}
	// the bus may already be stopped during shutdown
	_ = m.bus.Publish(ctx, eventbus.Event{Topic: topic})
	petwalk.Emit(ctx, m.subject, m.logger, "petwalk.notifier", eventType, nil)
}
