package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petwalk/petwalk/cmd/petwalk/cmd"
	"github.com/petwalk/petwalk/internal/devbackend"
	"github.com/petwalk/petwalk/modules/api"
)

type cliFixture struct {
	server    *devbackend.Server
	url       string
	tokenFile string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	server := devbackend.New(devbackend.Options{})
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	require.NoError(t, server.AdvertiseSelf(ts.URL))
	return &cliFixture{server: server, url: ts.URL, tokenFile: filepath.Join(t.TempDir(), "session")}
}

func (f *cliFixture) args(args ...string) []string {
	return append([]string{"--discovery-url", f.url, "--token-file", f.tokenFile, "--timeout", "10s"}, args...)
}

func (f *cliFixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return execute(context.Background(), &bytes.Buffer{}, stdin, f.args(args...)...)
}

func (f *cliFixture) signIn(t *testing.T) string {
	t.Helper()
	id := f.server.AddUser("rex", "rex@example.com", "bone")
	out, err := f.run(t, "", "login", "-u", "rex", "-p", "bone")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as rex")
	return id
}

func execute(ctx context.Context, out io.Writer, stdin string, args ...string) (string, error) {
	root := cmd.NewRootCommand()
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if s, ok := out.(interface{ String() string }); ok {
		return s.String(), err
	}
	return "", err
}

func TestRootCommand(t *testing.T) {
	rootCmd := cmd.NewRootCommand()
	assert.Equal(t, "petwalk", rootCmd.Use)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "PetWalk client")
	for _, sub := range []string{"services", "login", "signup", "logout", "whoami", "posts", "route", "listen"} {
		assert.Contains(t, buf.String(), sub)
	}
}

func TestVersionInfo(t *testing.T) {
	assert.Contains(t, cmd.PrintVersion(), "petwalk v")
}

func TestServicesCommand(t *testing.T) {
	f := newCLIFixture(t)
	out, err := f.run(t, "", "services")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	for _, name := range []string{"controller", "routes", "notifier"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, f.url)
}

func TestServicesFromConfigFile(t *testing.T) {
	f := newCLIFixture(t)
	cfgPath := filepath.Join(t.TempDir(), "petwalk.yaml")
	cfg := "directory:\n  discovery_url: " + f.url + "\ntoken:\n  file: " + f.tokenFile + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	out, err := execute(context.Background(), &bytes.Buffer{}, "", "--config", cfgPath, "services")
	require.NoError(t, err)
	assert.Contains(t, out, "controller")
}

func TestUnsupportedConfigFile(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "", "--config", "petwalk.ini", "services")
	assert.ErrorIs(t, err, cmd.ErrUnsupportedConfig)
}

func TestAccountLifecycle(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "", "signup", "-u", "rex", "--email", "rex@example.com", "-p", "bone")
	require.NoError(t, err)
	assert.Contains(t, out, "User created: rex")

	out, err = f.run(t, "bone\n", "login", "-u", "rex")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as rex")
	data, err := os.ReadFile(f.tokenFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "token")

	out, err = f.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "rex (user-1)")
	assert.Contains(t, out, "email: rex@example.com")
	assert.Contains(t, out, "saved routes: 0")

	out, err = f.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = f.run(t, "", "whoami")
	assert.ErrorIs(t, err, cmd.ErrNotSignedIn)
}

func TestLoginRejected(t *testing.T) {
	f := newCLIFixture(t)
	f.server.AddUser("rex", "rex@example.com", "bone")

	_, err := f.run(t, "", "login", "-u", "rex", "-p", "stick")
	require.ErrorIs(t, err, api.ErrUnauthorized)

	_, err = f.run(t, "", "whoami")
	assert.ErrorIs(t, err, cmd.ErrNotSignedIn)
}

func TestLoginNeedsPassword(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "", "login", "-u", "rex")
	assert.ErrorIs(t, err, cmd.ErrPasswordRequired)
}

var savedRoutePattern = regexp.MustCompile(`Saved route (\d+)`)

func TestRouteCommands(t *testing.T) {
	f := newCLIFixture(t)
	f.signIn(t)

	generated, err := f.run(t, "", "route", "generate", "--lat", "52.23", "--lon", "21.01", "-d", "2000", "--prefer-green")
	require.NoError(t, err)
	var route api.Route
	require.NoError(t, json.Unmarshal([]byte(generated), &route))
	assert.Equal(t, 2000, route.DeclaredDistance)
	assert.True(t, route.PreferGreen)

	_, err = f.run(t, "", "route", "generate", "--lat", "52.23", "--lon", "21.01", "-d", "2000")
	assert.ErrorIs(t, err, api.ErrRateLimited)

	out, err := f.run(t, generated, "route", "save")
	require.NoError(t, err)
	m := savedRoutePattern.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]

	out, err = f.run(t, "", "route", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2000m")
	assert.Contains(t, out, id)

	out, err = f.run(t, "", "route", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed route "+id)

	_, err = f.run(t, "", "route", "delete", id)
	var serr *api.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 404, serr.Code)

	_, err = f.run(t, "", "route", "delete", "abc")
	assert.ErrorIs(t, err, cmd.ErrInvalidRouteID)
}

func TestRouteCommandsNeedSession(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "", "route", "list")
	assert.ErrorIs(t, err, cmd.ErrNotSignedIn)
}

func TestPostsCommand(t *testing.T) {
	f := newCLIFixture(t)
	out, err := f.run(t, "", "posts", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "TIMESTAMP")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestListenPrintsNotifications(t *testing.T) {
	f := newCLIFixture(t)
	id := f.signIn(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		_, err := execute(ctx, out, "", f.args("listen")...)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.server.Connections(id) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "listening for notifications") }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "signed in as rex") }, 5*time.Second, 10*time.Millisecond)

	f.server.Notify(id, "notification_scan", map[string]string{"notification_type": "scan"})
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "notification.notification_scan")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("listen did not stop")
	}
}

func TestEnvFileOverridesDiscovery(t *testing.T) {
	f := newCLIFixture(t)
	envPath := filepath.Join(t.TempDir(), "petwalk.env")
	env := "PETWALK_DIRECTORY_DISCOVERY_URL=" + f.url + "\nPETWALK_TOKEN_FILE=" + f.tokenFile + "\n"
	require.NoError(t, os.WriteFile(envPath, []byte(env), 0o600))

	out, err := execute(context.Background(), &bytes.Buffer{}, "", "--env-file", envPath, "services")
	require.NoError(t, err)
	assert.Contains(t, out, "notifier")
}
