package petwalk

import (
	"context"
	"errors"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCloudEvent(t *testing.T) {
	event := NewCloudEvent(EventTypeDirectoryLoaded, "petwalk.directory",
		map[string]any{"services": 2}, map[string]any{"attempt": "1"})

	require.NoError(t, ValidateCloudEvent(event))
	assert.Equal(t, EventTypeDirectoryLoaded, event.Type())
	assert.Equal(t, "petwalk.directory", event.Source())
	assert.Equal(t, cloudevents.VersionV1, event.SpecVersion())
	assert.Equal(t, "1", event.Extensions()["attempt"])

	id, err := uuid.Parse(event.ID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	var data map[string]int
	require.NoError(t, event.DataAs(&data))
	assert.Equal(t, 2, data["services"])
}

func TestValidateCloudEvent_Invalid(t *testing.T) {
	event := cloudevents.NewEvent()
	assert.Error(t, ValidateCloudEvent(event))
}

func TestApp_ObserverFiltering(t *testing.T) {
	app := NewApp(nil, &MockLogger{})

	var all, filtered []string
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("all", func(_ context.Context, e cloudevents.Event) error {
		all = append(all, e.Type())
		return nil
	})))
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("filtered", func(_ context.Context, e cloudevents.Event) error {
		filtered = append(filtered, e.Type())
		return nil
	}), EventTypeTokenCleared))

	ctx := context.Background()
	Emit(ctx, app, app.Logger(), "petwalk.token", EventTypeTokenSet, nil)
	Emit(ctx, app, app.Logger(), "petwalk.token", EventTypeTokenCleared, nil)

	assert.Equal(t, []string{EventTypeTokenSet, EventTypeTokenCleared}, all)
	assert.Equal(t, []string{EventTypeTokenCleared}, filtered)

	infos := app.GetObservers()
	require.Len(t, infos, 2)
	assert.Equal(t, "all", infos[0].ID)
	assert.Empty(t, infos[0].EventTypes)
	assert.Equal(t, []string{EventTypeTokenCleared}, infos[1].EventTypes)
}

func TestApp_ObserversNotifiedInRegistrationOrder(t *testing.T) {
	app := NewApp(nil, nil)

	var order []string
	for _, id := range []string{"zeta", "alpha", "mid"} {
		id := id
		require.NoError(t, app.RegisterObserver(NewFunctionalObserver(id, func(context.Context, cloudevents.Event) error {
			order = append(order, id)
			return nil
		})))
	}

	require.NoError(t, app.NotifyObservers(context.Background(), NewCloudEvent(EventTypeUserLoaded, "petwalk.user", nil, nil)))
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, order)
}

func TestApp_ObserverFailuresAreIsolated(t *testing.T) {
	logger := &MockLogger{}
	app := NewApp(nil, logger)

	reached := false
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("a-panics", func(context.Context, cloudevents.Event) error {
		panic("boom")
	})))
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("b-errors", func(context.Context, cloudevents.Event) error {
		return errors.New("nope")
	})))
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("c-ok", func(context.Context, cloudevents.Event) error {
		reached = true
		return nil
	})))

	event := NewCloudEvent(EventTypeUserLoaded, "petwalk.user", nil, nil)
	require.NoError(t, app.NotifyObservers(context.Background(), event))

	assert.True(t, reached)
	assert.True(t, logger.HasMessage("ERROR", "Observer panicked"))
	assert.True(t, logger.HasMessage("ERROR", "Observer error"))
}

func TestApp_UnregisterObserverFromCallback(t *testing.T) {
	app := NewApp(nil, nil)
	calls := 0

	var obs Observer
	obs = NewFunctionalObserver("once", func(context.Context, cloudevents.Event) error {
		calls++
		return app.UnregisterObserver(obs)
	})
	require.NoError(t, app.RegisterObserver(obs))

	ctx := context.Background()
	Emit(ctx, app, nil, "petwalk.test", EventTypeRoutesSynced, nil)
	Emit(ctx, app, nil, "petwalk.test", EventTypeRoutesSynced, nil)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, app.RegisterObserver(nil), ErrObserverNil)
}
