package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petwalk/petwalk"
)

const (
	// ModuleName is the name of the HTTP client module.
	ModuleName = "httpclient"

	// ServiceName exposes the ClientService.
	ServiceName = "httpclient"

	// MetricsServiceName exposes the *prometheus.Registry the client
	// metrics are registered on.
	MetricsServiceName = "httpclient.metrics"
)

// ErrInvalidConfigType is returned when the config section holds another type.
var ErrInvalidConfigType = errors.New("httpclient: invalid config type")

// Module implements the HTTP client module.
type Module struct {
	config     *Config
	app        petwalk.Application
	logger     petwalk.Logger
	httpClient *http.Client
	transport  *http.Transport
	registry   *prometheus.Registry
	metrics    *Metrics

	mu           sync.RWMutex
	modifiers    []RequestModifierFunc
	interceptors []ResponseInterceptorFunc
	unauthorized UnauthorizedHandler

	base http.RoundTripper
}

var (
	_ petwalk.Module       = (*Module)(nil)
	_ petwalk.Configurable = (*Module)(nil)
	_ petwalk.ServiceAware = (*Module)(nil)
	_ petwalk.Stoppable    = (*Module)(nil)
	_ ClientService        = (*Module)(nil)
)

// NewModule creates a new instance of the HTTP client module.
func NewModule() *Module {
	return &Module{}
}

// WithTransport replaces the network transport, e.g. with an
// httptest server's. Must be called before Init.
func (m *Module) WithTransport(rt http.RoundTripper) *Module {
	m.base = rt
	return m
}

// WithRegistry sets the Prometheus registry. Must be called before Init.
func (m *Module) WithRegistry(reg *prometheus.Registry) *Module {
	m.registry = reg
	return m
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) Dependencies() []string {
	return nil
}

func (m *Module) RegisterConfig(app petwalk.Application) error {
	app.RegisterConfigSection(m.Name(), petwalk.NewStdConfigProvider(&Config{}))
	return nil
}

// Init builds the transport chain:
// network -> verbose logging -> pipeline (request ID, modifiers, metrics,
// interceptors) -> http.Client.
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

	base := m.base
	if base == nil {
		m.transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
			TLSHandshakeTimeout: cfg.TLSTimeout,
			DisableCompression:  cfg.DisableCompression,
			DisableKeepAlives:   cfg.DisableKeepAlives,
		}
		base = m.transport
	}

	if cfg.Verbose {
		base = &loggingTransport{
			Transport:      base,
			Logger:         m.logger,
			LogHeaders:     cfg.VerboseOptions.LogHeaders,
			LogBody:        cfg.VerboseOptions.LogBody,
			MaxBodyLogSize: cfg.VerboseOptions.MaxBodyLogSize,
		}
	}

	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.metrics, err = NewMetrics(m.registry, cfg.MetricsNamespace); err != nil {
		return err
	}

	m.interceptors = append([]ResponseInterceptorFunc{m.interceptUnauthorized}, m.interceptors...)

	m.httpClient = &http.Client{
		Transport: &pipelineTransport{next: base, module: m, metrics: m.metrics},
		Timeout:   cfg.RequestTimeout,
	}
	return nil
}

// Stop closes idle connections.
func (m *Module) Stop(context.Context) error {
	if m.transport != nil {
		m.transport.CloseIdleConnections()
	}
	return nil
}

func (m *Module) ProvidesServices() []petwalk.ServiceProvider {
	return []petwalk.ServiceProvider{
		{
			Name:        ServiceName,
			Description: "HTTP client service with bearer injection and 401 interception",
			Instance:    ClientService(m),
		},
		{
			Name:        MetricsServiceName,
			Description: "Prometheus registry holding HTTP client metrics",
			Instance:    m.registry,
		},
	}
}

func (m *Module) RequiresServices() []petwalk.ServiceDependency {
	return nil
}

// Client returns the configured http.Client instance.
func (m *Module) Client() *http.Client {
	return m.httpClient
}

// Do sends req through the shared client.
func (m *Module) Do(req *http.Request, modifiers ...RequestModifierFunc) (*http.Response, error) {
	for _, modify := range modifiers {
		req = modify(req)
	}
	return m.httpClient.Do(req)
}

// WithTimeout creates a new client with the specified timeout.
func (m *Module) WithTimeout(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return m.httpClient
	}
	return &http.Client{
		Transport: m.httpClient.Transport,
		Timeout:   timeout,
	}
}

func (m *Module) AddRequestModifier(modifier RequestModifierFunc) {
	if modifier == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modifiers = append(m.modifiers, modifier)
}

func (m *Module) AddResponseInterceptor(interceptor ResponseInterceptorFunc) {
	if interceptor == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interceptors = append(m.interceptors, interceptor)
}

func (m *Module) SetUnauthorizedHandler(handler UnauthorizedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unauthorized = handler
}

func (m *Module) requestModifiers() []RequestModifierFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modifiers
}

func (m *Module) responseInterceptors() []ResponseInterceptorFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interceptors
}

// interceptUnauthorized is the first interceptor in the chain. A 401 from
// anything but the login endpoint means the session is gone.
func (m *Module) interceptUnauthorized(req *http.Request, resp *http.Response) {
	if resp.StatusCode != http.StatusUnauthorized || isLoginRequest(req, m.config.LoginPath) {
		return
	}

	m.mu.RLock()
	handler := m.unauthorized
	m.mu.RUnlock()

	m.logger.Warn("Session rejected by backend",
		"url", req.URL.Redacted(),
		"id", req.Header.Get(HeaderRequestID),
		"redirect", m.config.UnauthorizedRedirect,
	)
	if handler == nil {
		return
	}
	handler.HandleUnauthorized(req.Context(), req, m.config.UnauthorizedRedirect)
}
