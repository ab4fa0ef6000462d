package user

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/feeders"
	"github.com/petwalk/petwalk/internal/devbackend"
	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/directory"
	"github.com/petwalk/petwalk/modules/eventbus"
	"github.com/petwalk/petwalk/modules/httpclient"
	"github.com/petwalk/petwalk/modules/notifier"
	"github.com/petwalk/petwalk/modules/token"
)

func TestModule_FollowsSessionEndToEnd(t *testing.T) {
	server := devbackend.New(devbackend.Options{})
	ts := httptest.NewServer(server)
	defer ts.Close()
	require.NoError(t, server.AdvertiseSelf(ts.URL))
	server.AddUser("rex", "rex@example.com", "bone")

	dir := t.TempDir()
	cfg := "directory:\n  discovery_url: " + ts.URL + "\n" +
		"token:\n  file: " + filepath.Join(dir, "session") + "\n  disable_watch: true\n" +
		"notifier:\n  reconnect_delay: 50ms\n"
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	app := petwalk.NewApp(nil, nil)
	app.SetConfigFeeders(feeders.NewYamlFeeder(cfgPath))
	mod := NewModule()
	for _, m := range []petwalk.Module{
		mod,
		notifier.NewModule(),
		api.NewModule(),
		token.NewModule(),
		eventbus.NewModule(),
		httpclient.NewModule(),
		directory.NewModule(),
	} {
		app.RegisterModule(m)
	}
	require.NoError(t, app.Init())
	require.NoError(t, app.Start(context.Background()))
	defer func() { _ = app.Stop() }()

	svc, err := petwalk.GetService[Service](app, ServiceName)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Login(ctx, "rex", "bone"))

	require.Eventually(t, func() bool {
		u, ok := svc.Current()
		return ok && u.Username == "rex"
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Logout(ctx))
	_, ok := svc.Current()
	assert.False(t, ok)
}
