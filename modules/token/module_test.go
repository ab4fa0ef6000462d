package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/feeders"
	"github.com/petwalk/petwalk/modules/httpclient"
)

func newTokenApp(t *testing.T, sessionFile string) (*petwalk.App, *Module) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "token:\n  file: " + sessionFile + "\n  disable_watch: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	app := petwalk.NewApp(nil, nil)
	app.SetConfigFeeders(feeders.NewYamlFeeder(cfgPath))
	mod := NewModule()
	// registered first: dependency ordering must still init httpclient before token
	app.RegisterModule(mod)
	app.RegisterModule(httpclient.NewModule())
	require.NoError(t, app.Init())
	return app, mod
}

func TestModule_LoadsPersistedToken(t *testing.T) {
	path := sessionPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("token=persisted\n"), 0o600))

	app, _ := newTokenApp(t, path)

	svc, err := petwalk.GetService[Service](app, ServiceName)
	require.NoError(t, err)
	assert.Equal(t, "persisted", svc.Token())
}

func TestModule_UnauthorizedResponseClearsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	path := sessionPath(t)
	app, mod := newTokenApp(t, path)
	require.NoError(t, mod.Store().Set(context.Background(), "stale"))

	client, err := petwalk.GetService[httpclient.ClientService](app, httpclient.ServiceName)
	require.NoError(t, err)

	// A failed login leaves the session alone
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/user/login", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "stale", mod.Store().Token())

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/user/self", nil)
	require.NoError(t, err)
	resp, err = client.Do(req, httpclient.WithBearer(mod.Store().Token()))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, mod.Store().Token())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "token=")
}

func TestModule_WatchLifecycle(t *testing.T) {
	path := sessionPath(t)
	app := petwalk.NewApp(nil, nil)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("token:\n  file: "+path+"\n"), 0o600))
	app.SetConfigFeeders(feeders.NewYamlFeeder(cfgPath))
	mod := NewModule()
	app.RegisterModule(httpclient.NewModule())
	app.RegisterModule(mod)
	require.NoError(t, app.Init())

	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.Stop())
}

func TestConfig_SetupDefaultsFile(t *testing.T) {
	cfg := &Config{}
	if _, err := os.UserConfigDir(); err != nil {
		t.Skip("no user config dir")
	}
	require.NoError(t, cfg.Setup())
	assert.Equal(t, "session", filepath.Base(cfg.File))
	assert.Equal(t, "petwalk", filepath.Base(filepath.Dir(cfg.File)))
}
