package petwalk

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testModule records its lifecycle calls into a shared journal.
type testModule struct {
	name     string
	deps     []string
	provides []ServiceProvider
	requires []ServiceDependency
	initErr  error
	stopErr  error
	journal  *journal
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (m *testModule) Name() string { return m.name }

func (m *testModule) Init(Application) error {
	m.journal.add("init:" + m.name)
	return m.initErr
}

func (m *testModule) Dependencies() []string { return m.deps }

func (m *testModule) ProvidesServices() []ServiceProvider { return m.provides }

func (m *testModule) RequiresServices() []ServiceDependency { return m.requires }

func (m *testModule) Start(context.Context) error {
	m.journal.add("start:" + m.name)
	return nil
}

func (m *testModule) Stop(context.Context) error {
	m.journal.add("stop:" + m.name)
	return m.stopErr
}

type appTestConfig struct {
	Name string `default:"petwalk"`
}

type sectionConfig struct {
	URL string `default:"http://localhost:5001"`
}

type sectionModule struct {
	testModule
	cfg *sectionConfig
}

func (m *sectionModule) RegisterConfig(app Application) error {
	m.cfg = &sectionConfig{}
	app.RegisterConfigSection(m.name, NewStdConfigProvider(m.cfg))
	return nil
}

func TestApp_InitOrdersModulesByDependency(t *testing.T) {
	j := &journal{}
	app := NewApp(NewStdConfigProvider(&appTestConfig{}), &MockLogger{})

	app.RegisterModule(&testModule{name: "routes", deps: []string{"api", "user"}, journal: j})
	app.RegisterModule(&testModule{name: "user", deps: []string{"api"}, journal: j})
	app.RegisterModule(&testModule{name: "api", deps: []string{"directory"}, journal: j})
	app.RegisterModule(&testModule{name: "directory", journal: j})

	require.NoError(t, app.Init())
	assert.Equal(t, []string{"init:directory", "init:api", "init:user", "init:routes"}, j.all())
}

func TestApp_CircularDependency(t *testing.T) {
	j := &journal{}
	app := NewApp(nil, nil)
	app.RegisterModule(&testModule{name: "a", deps: []string{"b"}, journal: j})
	app.RegisterModule(&testModule{name: "b", deps: []string{"a"}, journal: j})

	assert.ErrorIs(t, app.Init(), ErrCircularDependency)
	assert.Empty(t, j.all())
}

func TestApp_MissingDependency(t *testing.T) {
	app := NewApp(nil, nil)
	app.RegisterModule(&testModule{name: "a", deps: []string{"ghost"}, journal: &journal{}})

	assert.ErrorIs(t, app.Init(), ErrModuleDependencyMissing)
}

func TestApp_ServicesFlowBetweenModules(t *testing.T) {
	j := &journal{}
	app := NewApp(nil, nil)
	greeterType := reflect.TypeOf((*greeter)(nil)).Elem()

	app.RegisterModule(&testModule{
		name:     "provider",
		provides: []ServiceProvider{{Name: "greeter", Instance: &englishGreeter{name: "rex"}}},
		journal:  j,
	})
	app.RegisterModule(&testModule{
		name:     "consumer",
		deps:     []string{"provider"},
		requires: []ServiceDependency{{Name: "greeter", Required: true, SatisfiesInterface: greeterType}},
		journal:  j,
	})

	require.NoError(t, app.Init())

	g, err := GetService[greeter](app, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "hello rex", g.Greet())
}

func TestApp_RequiredServiceMissing(t *testing.T) {
	app := NewApp(nil, nil)
	app.RegisterModule(&testModule{
		name:     "consumer",
		requires: []ServiceDependency{{Name: "greeter", Required: true}},
		journal:  &journal{},
	})

	assert.ErrorIs(t, app.Init(), ErrRequiredServiceNotFound)
}

func TestApp_InitErrorNamesModule(t *testing.T) {
	boom := errors.New("boom")
	app := NewApp(nil, nil)
	app.RegisterModule(&testModule{name: "broken", initErr: boom, journal: &journal{}})

	err := app.Init()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
}

func TestApp_ConfigSectionsGetDefaults(t *testing.T) {
	app := NewApp(NewStdConfigProvider(&appTestConfig{}), nil)
	mod := &sectionModule{testModule: testModule{name: "directory", journal: &journal{}}}
	app.RegisterModule(mod)

	require.NoError(t, app.Init())

	assert.Equal(t, "http://localhost:5001", mod.cfg.URL)
	assert.Equal(t, "petwalk", app.ConfigProvider().GetConfig().(*appTestConfig).Name)

	cp, err := app.GetConfigSection("directory")
	require.NoError(t, err)
	assert.Same(t, mod.cfg, cp.GetConfig())

	_, err = app.GetConfigSection("missing")
	assert.ErrorIs(t, err, ErrConfigSectionNotFound)
}

type recordingFeeder struct {
	keys []string
}

func (f *recordingFeeder) Feed(any) error { f.keys = append(f.keys, mainConfigSection); return nil }

func (f *recordingFeeder) FeedKey(key string, target any) error {
	f.keys = append(f.keys, key)
	if cfg, ok := target.(*sectionConfig); ok {
		cfg.URL = "http://discovery:5001"
	}
	return nil
}

func TestApp_FeedersPopulateSections(t *testing.T) {
	feeder := &recordingFeeder{}
	app := NewApp(NewStdConfigProvider(&appTestConfig{}), nil)
	app.SetConfigFeeders(feeder)
	mod := &sectionModule{testModule: testModule{name: "directory", journal: &journal{}}}
	app.RegisterModule(mod)

	require.NoError(t, app.Init())

	assert.Equal(t, []string{mainConfigSection, "directory"}, feeder.keys)
	assert.Equal(t, "http://discovery:5001", mod.cfg.URL)
}

func TestApp_StartStopLifecycle(t *testing.T) {
	j := &journal{}
	app := NewApp(nil, nil)
	app.RegisterModule(&testModule{name: "api", deps: []string{"directory"}, journal: j})
	app.RegisterModule(&testModule{name: "directory", journal: j})

	require.NoError(t, app.Init())
	require.NoError(t, app.Start(context.Background()))
	assert.ErrorIs(t, app.Start(context.Background()), ErrAppAlreadyStarted)
	require.NoError(t, app.Stop())
	assert.ErrorIs(t, app.Stop(), ErrAppNotStarted)

	assert.Equal(t, []string{
		"init:directory", "init:api",
		"start:directory", "start:api",
		"stop:api", "stop:directory",
	}, j.all())
}

func TestApp_StopContinuesPastErrors(t *testing.T) {
	j := &journal{}
	boom := errors.New("boom")
	app := NewApp(nil, nil)
	app.RegisterModule(&testModule{name: "a", journal: j})
	app.RegisterModule(&testModule{name: "b", deps: []string{"a"}, stopErr: boom, journal: j})

	require.NoError(t, app.Init())
	require.NoError(t, app.Start(context.Background()))

	assert.ErrorIs(t, app.Stop(), boom)
	assert.Contains(t, j.all(), "stop:a")
}

func TestApp_RunStopsOnContextCancel(t *testing.T) {
	j := &journal{}
	app := NewApp(nil, nil)
	app.RegisterModule(&testModule{name: "a", journal: j})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, e := range j.all() {
			if e == "start:a" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Contains(t, j.all(), "stop:a")
}

func TestApp_LifecycleEvents(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	app := NewApp(nil, nil)
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("recorder", func(_ context.Context, e cloudevents.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type())
		return nil
	}), EventTypeModuleInitialized, EventTypeAppStarted, EventTypeAppStopped))

	app.RegisterModule(&testModule{name: "a", journal: &journal{}})
	require.NoError(t, app.Init())
	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventTypeModuleInitialized, EventTypeAppStarted, EventTypeAppStopped}, seen)
}
