package petwalk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"
	"sync"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Application is the view of the App that modules receive in Init.
type Application interface {
	Subject

	ConfigProvider() ConfigProvider
	RegisterConfigSection(section string, cp ConfigProvider)
	GetConfigSection(section string) (ConfigProvider, error)
	RegisterService(name string, service any) error
	GetService(name string, target any) error
	Services() *ServiceRegistry
	Logger() Logger
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
	seq          uint64
}

// App owns the modules, config sections, service registry and observers of
// one client instance. Nothing in it is global; tests build as many Apps
// as they need.
type App struct {
	cfgProvider  ConfigProvider
	cfgSections  map[string]ConfigProvider
	sectionOrder []string
	feeders      []Feeder
	services     *ServiceRegistry
	modules      map[string]Module
	moduleOrder  []string
	logger       Logger

	observers     map[string]*observerRegistration
	observerSeq   uint64
	observerMutex sync.RWMutex

	stopTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	mu          sync.Mutex
}

var _ Application = (*App)(nil)

// NewApp creates a new application instance
func NewApp(cp ConfigProvider, logger Logger) *App {
	if logger == nil {
		logger = NopLogger{}
	}
	return &App{
		cfgProvider: cp,
		cfgSections: make(map[string]ConfigProvider),
		services:    NewServiceRegistry(),
		modules:     make(map[string]Module),
		logger:      logger,
		observers:   make(map[string]*observerRegistration),
		stopTimeout: 30 * time.Second,
	}
}

// SetConfigFeeders replaces the feeders used by Init.
// Feeders run in order, so later feeders override earlier ones.
func (app *App) SetConfigFeeders(feeders ...Feeder) {
	app.feeders = feeders
}

// SetStopTimeout sets the timeout for graceful shutdown
func (app *App) SetStopTimeout(timeout time.Duration) {
	app.stopTimeout = timeout
}

// ConfigProvider retrieves the application config provider
func (app *App) ConfigProvider() ConfigProvider {
	return app.cfgProvider
}

// RegisterModule adds a module to the application
func (app *App) RegisterModule(module Module) {
	if _, exists := app.modules[module.Name()]; !exists {
		app.moduleOrder = append(app.moduleOrder, module.Name())
	}
	app.modules[module.Name()] = module
}

// Module returns a registered module by name.
func (app *App) Module(name string) (Module, bool) {
	m, ok := app.modules[name]
	return m, ok
}

// RegisterConfigSection registers a configuration section with the application
func (app *App) RegisterConfigSection(section string, cp ConfigProvider) {
	if _, exists := app.cfgSections[section]; !exists {
		app.sectionOrder = append(app.sectionOrder, section)
	}
	app.cfgSections[section] = cp
}

// GetConfigSection retrieves a configuration section
func (app *App) GetConfigSection(section string) (ConfigProvider, error) {
	cp, exists := app.cfgSections[section]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrConfigSectionNotFound, section)
	}
	return cp, nil
}

// RegisterService adds a service to the registry.
func (app *App) RegisterService(name string, service any) error {
	if err := app.services.Register(name, service); err != nil {
		return err
	}
	app.logger.Debug("Registered service", "name", name, "type", fmt.Sprintf("%T", service))
	return nil
}

// GetService assigns the named service into target.
func (app *App) GetService(name string, target any) error {
	return app.services.Get(name, target)
}

// Services returns the application's service registry.
func (app *App) Services() *ServiceRegistry {
	return app.services
}

// Logger returns the application logger.
func (app *App) Logger() Logger {
	return app.logger
}

// Init registers config sections, loads configuration and initializes
// modules in dependency order.
func (app *App) Init() error {
	for _, name := range app.moduleOrder {
		configurable, ok := app.modules[name].(Configurable)
		if !ok {
			continue
		}
		if err := configurable.RegisterConfig(app); err != nil {
			return fmt.Errorf("failed to register config for module %s: %w", name, err)
		}
	}

	if err := app.loadConfig(); err != nil {
		return fmt.Errorf("failed to load app config: %w", err)
	}

	order, err := app.resolveDependencies()
	if err != nil {
		return fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	for _, name := range order {
		module := app.modules[name]

		if svcAware, ok := module.(ServiceAware); ok {
			if err := app.checkRequiredServices(name, svcAware); err != nil {
				return err
			}
		}

		if err := module.Init(app); err != nil {
			return fmt.Errorf("failed to initialize module '%s': %w", name, err)
		}

		if svcAware, ok := module.(ServiceAware); ok {
			for _, svc := range svcAware.ProvidesServices() {
				if err := app.RegisterService(svc.Name, svc.Instance); err != nil {
					return fmt.Errorf("module '%s' failed to register service: %w", name, err)
				}
			}
		}

		app.logger.Info("Initialized module", "module", name, "type", fmt.Sprintf("%T", module))
		app.emit(context.Background(), EventTypeModuleInitialized, map[string]any{"module": name})
	}

	return nil
}

func (app *App) checkRequiredServices(moduleName string, module ServiceAware) error {
	for _, dep := range module.RequiresServices() {
		svc, found := app.services.Lookup(dep.Name)
		if !found {
			if dep.Required {
				return fmt.Errorf("%w: %s for %s", ErrRequiredServiceNotFound, dep.Name, moduleName)
			}
			continue
		}
		if err := checkServiceCompatibility(svc, dep); err != nil {
			return fmt.Errorf("failed to inject service '%s' into %s: %w", dep.Name, moduleName, err)
		}
	}
	return nil
}

// Start starts modules in dependency order. The context passed to each
// module is cancelled by Stop.
func (app *App) Start(ctx context.Context) error {
	app.mu.Lock()
	if app.started {
		app.mu.Unlock()
		return ErrAppAlreadyStarted
	}
	app.ctx, app.cancel = context.WithCancel(ctx)
	app.started = true
	app.mu.Unlock()

	order, err := app.resolveDependencies()
	if err != nil {
		return err
	}

	for _, name := range order {
		startable, ok := app.modules[name].(Startable)
		if !ok {
			app.logger.Debug("Module does not implement Startable, skipping", "module", name)
			continue
		}
		app.logger.Info("Starting module", "module", name)
		if err := startable.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start module %s: %w", name, err)
		}
		app.emit(app.ctx, EventTypeModuleStarted, map[string]any{"module": name})
	}

	app.emit(app.ctx, EventTypeAppStarted, nil)
	return nil
}

// Stop stops modules in reverse dependency order. Every module is asked to
// stop even when an earlier one fails; the last error is returned.
func (app *App) Stop() error {
	app.mu.Lock()
	if !app.started {
		app.mu.Unlock()
		return ErrAppNotStarted
	}
	app.started = false
	app.mu.Unlock()

	order, err := app.resolveDependencies()
	if err != nil {
		return err
	}
	slices.Reverse(order)

	ctx, cancel := context.WithTimeout(context.Background(), app.stopTimeout)
	defer cancel()

	var lastErr error
	for _, name := range order {
		stoppable, ok := app.modules[name].(Stoppable)
		if !ok {
			continue
		}
		app.logger.Info("Stopping module", "module", name)
		if err := stoppable.Stop(ctx); err != nil {
			app.logger.Error("Error stopping module", "module", name, "error", err)
			lastErr = err
			continue
		}
		app.emit(ctx, EventTypeModuleStopped, map[string]any{"module": name})
	}

	if app.cancel != nil {
		app.cancel()
	}
	app.emit(ctx, EventTypeAppStopped, nil)
	return lastErr
}

// Run initializes and starts the application, then blocks until ctx is
// cancelled or SIGINT/SIGTERM arrives, and stops it.
func (app *App) Run(ctx context.Context) error {
	if err := app.Init(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return errors.Join(err, app.Stop())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		app.logger.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		app.logger.Info("Context done, shutting down")
	}

	return app.Stop()
}

// resolveDependencies returns module names in initialization order.
// Ties are broken by registration order so the result is deterministic.
func (app *App) resolveDependencies() ([]string, error) {
	graph := make(map[string][]string, len(app.modules))
	for name, module := range app.modules {
		if depAware, ok := module.(DependencyAware); ok {
			graph[name] = depAware.Dependencies()
		} else {
			graph[name] = nil
		}
	}

	var result []string
	visited := make(map[string]bool)
	temp := make(map[string]bool)

	var visit func(string) error
	visit = func(node string) error {
		if temp[node] {
			return fmt.Errorf("%w: %s", ErrCircularDependency, node)
		}
		if visited[node] {
			return nil
		}
		temp[node] = true

		for _, dep := range graph[node] {
			if _, exists := app.modules[dep]; !exists {
				return fmt.Errorf("%w: %s depends on non-existent module %s",
					ErrModuleDependencyMissing, node, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		visited[node] = true
		temp[node] = false
		result = append(result, node)
		return nil
	}

	for _, node := range app.moduleOrder {
		if err := visit(node); err != nil {
			return nil, err
		}
	}

	app.logger.Debug("Module initialization order", "order", result)
	return result, nil
}

// RegisterObserver adds an observer to receive notifications from the application.
func (app *App) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}

	app.observerMutex.Lock()
	defer app.observerMutex.Unlock()

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	app.observerSeq++
	app.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
		seq:          app.observerSeq,
	}

	app.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer from receiving notifications.
func (app *App) UnregisterObserver(observer Observer) error {
	app.observerMutex.Lock()
	defer app.observerMutex.Unlock()

	delete(app.observers, observer.ObserverID())
	return nil
}

// NotifyObservers delivers event to every interested observer in
// registration order.
// Observer errors and panics are logged and never reach the emitter.
func (app *App) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if err := ValidateCloudEvent(event); err != nil {
		app.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	// snapshot so observers may (un)register from OnEvent
	app.observerMutex.RLock()
	targets := make([]*observerRegistration, 0, len(app.observers))
	for _, registration := range app.observers {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		targets = append(targets, registration)
	}
	app.observerMutex.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].seq < targets[j].seq })
	for _, registration := range targets {
		app.deliver(ctx, registration.observer, event)
	}
	return nil
}

func (app *App) deliver(ctx context.Context, observer Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			app.logger.Error("Observer panicked", "observerID", observer.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()

	if err := observer.OnEvent(ctx, event); err != nil {
		app.logger.Error("Observer error", "observerID", observer.ObserverID(), "event", event.Type(), "error", err)
	}
}

// GetObservers returns the registered observers sorted by ID.
func (app *App) GetObservers() []ObserverInfo {
	app.observerMutex.RLock()
	defer app.observerMutex.RUnlock()

	info := make([]ObserverInfo, 0, len(app.observers))
	for _, registration := range app.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		sort.Strings(eventTypes)
		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].ID < info[j].ID })
	return info
}

func (app *App) emit(ctx context.Context, eventType string, data any) {
	event := NewCloudEvent(eventType, "petwalk.app", data, nil)
	if err := app.NotifyObservers(ctx, event); err != nil {
		app.logger.Debug("Failed to emit event", "eventType", eventType, "error", err)
	}
}

// Emit is a helper for modules: it builds a CloudEvent from source and
// data and notifies subject's observers, logging instead of failing.
func Emit(ctx context.Context, subject Subject, logger Logger, source, eventType string, data any) {
	if subject == nil {
		return
	}
	event := NewCloudEvent(eventType, source, data, nil)
	if err := subject.NotifyObservers(ctx, event); err != nil && logger != nil {
		logger.Debug("Failed to emit event", "source", source, "eventType", eventType, "error", err)
	}
}
