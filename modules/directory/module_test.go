package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petwalk/petwalk"
)

type testLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *testLogger) Debug(string, ...any) {}
func (l *testLogger) Info(string, ...any)  {}
func (l *testLogger) Warn(string, ...any)  {}
func (l *testLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *testLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func (r *eventRecorder) ObserverID() string { return "recorder" }

func (r *eventRecorder) OnEvent(_ context.Context, e cloudevents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type())
	}
	return types
}

func newTestApp(t *testing.T, mod *Module) (*petwalk.App, *testLogger, *eventRecorder) {
	t.Helper()
	logger := &testLogger{}
	app := petwalk.NewApp(nil, logger)
	recorder := &eventRecorder{}
	require.NoError(t, app.RegisterObserver(recorder, petwalk.EventTypeDirectoryLoaded, petwalk.EventTypeDirectoryFailed))
	app.RegisterModule(mod)
	require.NoError(t, app.Init())
	return app, logger, recorder
}

func TestModule_LoadsOnStart(t *testing.T) {
	mod := NewModule().WithFetcher(staticFetcher(controller))
	app, _, recorder := newTestApp(t, mod)

	dir, err := petwalk.GetService[Service](app, ServiceName)
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	defer func() { require.NoError(t, app.Stop()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, dir.AwaitReady(ctx))

	rec, ok := dir.Lookup("controller")
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.5:8000", rec.URL)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{petwalk.EventTypeDirectoryLoaded}, recorder.Types())
	}, time.Second, 5*time.Millisecond)
}

func TestModule_FailureIsLoggedAndSwallowed(t *testing.T) {
	mod := NewModule().WithFetcher(FetcherFunc(func(context.Context) ([]Descriptor, error) {
		return nil, errors.New("no route to host")
	}))
	app, logger, recorder := newTestApp(t, mod)

	require.NoError(t, app.Start(context.Background()), "a failed discovery does not fail start")

	require.Eventually(t, func() bool {
		return len(recorder.Types()) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, app.Stop())

	assert.Equal(t, []string{petwalk.EventTypeDirectoryFailed}, recorder.Types())
	assert.Contains(t, logger.Errors(), "Failed to load service directory")
	assert.False(t, mod.Directory().Ready())
}

func TestModule_StopCancelsPendingLoad(t *testing.T) {
	fetcher := newGatedFetcher(controller)
	mod := NewModule().WithFetcher(fetcher)
	app, _, _ := newTestApp(t, mod)

	require.NoError(t, app.Start(context.Background()))
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- app.Stop() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the pending load")
	}
	assert.False(t, mod.Directory().Ready())
}

func TestModule_ManualLoad(t *testing.T) {
	fetcher := newGatedFetcher(controller)
	close(fetcher.release)
	mod := NewModule().WithFetcher(fetcher)

	app := petwalk.NewApp(nil, nil)
	app.RegisterModule(mod)
	require.NoError(t, app.Init())
	mod.config.ManualLoad = true

	require.NoError(t, app.Start(context.Background()))
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, fetcher.calls.Load())

	require.NoError(t, mod.Load(context.Background()))
	assert.ErrorIs(t, mod.Load(context.Background()), ErrAlreadyLoaded)
	require.NoError(t, app.Stop())
}

func TestModule_ConfigDefaults(t *testing.T) {
	mod := NewModule().WithFetcher(staticFetcher())
	app := petwalk.NewApp(nil, nil)
	app.RegisterModule(mod)
	require.NoError(t, app.Init())

	assert.Equal(t, "http://localhost:5001", mod.config.DiscoveryURL)
	assert.Equal(t, DefaultDiscoveryPath, mod.config.DiscoveryPath)
	assert.Equal(t, 10*time.Second, mod.config.RequestTimeout)
	assert.Zero(t, mod.config.ReadyTimeout)
	assert.Equal(t, DefaultFallbacks(), mod.config.Fallbacks)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{DiscoveryURL: "http://controller:5001"}},
		{name: "https", cfg: Config{DiscoveryURL: "https://controller"}},
		{name: "bad scheme", cfg: Config{DiscoveryURL: "ftp://controller"}, wantErr: true},
		{name: "no host", cfg: Config{DiscoveryURL: "http://"}, wantErr: true},
		{name: "negative timeout", cfg: Config{DiscoveryURL: "http://c", ReadyTimeout: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
