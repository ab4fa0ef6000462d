package routes

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/token"
)

type MockBackend struct {
	mock.Mock
	api.Backend
}

func (m *MockBackend) Routes(ctx context.Context, tok string) ([]api.SavedRoute, error) {
	args := m.Called(ctx, tok)
	routes, _ := args.Get(0).([]api.SavedRoute)
	return routes, args.Error(1)
}

func (m *MockBackend) SaveRoute(ctx context.Context, tok string, route api.Route) (api.SavedRoute, error) {
	args := m.Called(ctx, tok, route)
	return args.Get(0).(api.SavedRoute), args.Error(1)
}

func (m *MockBackend) RemoveRoute(ctx context.Context, tok string, id int) error {
	return m.Called(ctx, tok, id).Error(0)
}

type staticTokens struct {
	token.Service
	tok string
}

func (s staticTokens) Token() string { return s.tok }

type syncedCounter struct {
	mu    sync.Mutex
	count int
}

func (c *syncedCounter) ObserverID() string { return "routes-test" }

func (c *syncedCounter) OnEvent(_ context.Context, e cloudevents.Event) error {
	if e.Type() == petwalk.EventTypeRoutesSynced {
		c.mu.Lock()
		c.count++
		c.mu.Unlock()
	}
	return nil
}

func (c *syncedCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

const line = `{"type":"LineString","coordinates":[[21,52],[21.01,52.01]]}`

func saved(id int) api.SavedRoute {
	r, err := api.Route{ID: id, DeclaredDistance: 1000, Route: line}.Parse()
	if err != nil {
		panic(err)
	}
	return r
}

func ids(routes []api.SavedRoute) []int {
	out := make([]int, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.ID)
	}
	return out
}

func newTestList(tok string) (*List, *MockBackend, *syncedCounter) {
	backend := &MockBackend{}
	counter := &syncedCounter{}
	subject := petwalk.NewApp(nil, nil)
	_ = subject.RegisterObserver(counter)
	return NewList(backend, staticTokens{tok: tok}, nil, subject), backend, counter
}

func TestList_RefreshReplacesList(t *testing.T) {
	l, backend, counter := newTestList("tok")
	backend.On("Routes", mock.Anything, "tok").Return([]api.SavedRoute{saved(1), saved(2)}, nil).Once()

	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, []int{1, 2}, ids(l.List()))
	assert.Equal(t, 1, counter.Count())
}

func TestList_RefreshWithoutToken(t *testing.T) {
	l, backend, _ := newTestList("")
	l.routes = []api.SavedRoute{saved(1)}

	require.ErrorIs(t, l.Refresh(context.Background()), ErrNotSignedIn)
	assert.Empty(t, l.List())
	backend.AssertNotCalled(t, "Routes", mock.Anything, mock.Anything)
}

func TestList_AddShowsRouteBeforeSaveCompletes(t *testing.T) {
	l, backend, _ := newTestList("tok")
	release := make(chan time.Time)
	route := api.Route{DeclaredDistance: 1000, Route: line}
	backend.On("SaveRoute", mock.Anything, "tok", route).WaitUntil(release).Return(saved(7), nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := l.Add(context.Background(), route)
		done <- err
	}()

	assert.Eventually(t, func() bool {
		routes := l.List()
		return len(routes) == 1 && routes[0].ID < 0
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []int{7}, ids(l.List()))
}

func TestList_AddRollsBackOnFailure(t *testing.T) {
	l, backend, _ := newTestList("tok")
	l.routes = []api.SavedRoute{saved(1)}
	route := api.Route{DeclaredDistance: 1000, Route: line}
	backend.On("SaveRoute", mock.Anything, "tok", route).Return(api.SavedRoute{}, api.ErrServiceUnavailable).Once()

	_, err := l.Add(context.Background(), route)
	require.ErrorIs(t, err, api.ErrServiceUnavailable)
	assert.Equal(t, []int{1}, ids(l.List()))
}

func TestList_AddRejectsBadGeometry(t *testing.T) {
	l, backend, _ := newTestList("tok")
	_, err := l.Add(context.Background(), api.Route{Route: "not json"})
	require.ErrorIs(t, err, api.ErrDecode)
	assert.Empty(t, l.List())
	backend.AssertNotCalled(t, "SaveRoute", mock.Anything, mock.Anything, mock.Anything)
}

func TestList_AddAfterConcurrentRefresh(t *testing.T) {
	l, backend, _ := newTestList("tok")
	route := api.Route{DeclaredDistance: 1000, Route: line}
	backend.On("SaveRoute", mock.Anything, "tok", route).
		Run(func(mock.Arguments) { l.Reset() }).
		Return(saved(9), nil).Once()

	_, err := l.Add(context.Background(), route)
	require.NoError(t, err)
	assert.Equal(t, []int{9}, ids(l.List()))
}

func TestList_Remove(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
		want    []int
	}{
		{"success", nil, false, []int{1, 3}},
		{"already gone", &api.StatusError{Code: http.StatusNotFound}, false, []int{1, 3}},
		{"backend down", api.ErrServiceUnavailable, true, []int{1, 2, 3}},
		{"rate limited", &api.StatusError{Code: http.StatusTooManyRequests}, true, []int{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, backend, _ := newTestList("tok")
			l.routes = []api.SavedRoute{saved(1), saved(2), saved(3)}
			backend.On("RemoveRoute", mock.Anything, "tok", 2).Return(tt.err).Once()

			err := l.Remove(context.Background(), 2)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, ids(l.List()))
		})
	}
}

func TestList_MutationsRequireToken(t *testing.T) {
	l, _, _ := newTestList("")
	_, err := l.Add(context.Background(), api.Route{Route: line})
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.ErrorIs(t, l.Remove(context.Background(), 1), ErrNotSignedIn)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{ResyncSchedule: "@every 5m"}).Validate())
	assert.NoError(t, (&Config{ResyncSchedule: "*/10 * * * *"}).Validate())
	assert.ErrorIs(t, (&Config{ResyncSchedule: "every now and then"}).Validate(), ErrInvalidSchedule)
}
