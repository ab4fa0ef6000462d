package petwalk

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of client events.
// Events use the CloudEvents specification.
type Observer interface {
	// OnEvent is called synchronously by NotifyObservers, in observer ID
	// order. Observers should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Subject is implemented by anything observers can subscribe to; App is
// the subject every module emits through.
type Subject interface {
	// RegisterObserver adds an observer. With no eventTypes the observer
	// receives every event.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver is idempotent.
	UnregisterObserver(observer Observer) error

	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the client.
const (
	EventTypeModuleInitialized = "io.petwalk.module.initialized"
	EventTypeModuleStarted     = "io.petwalk.module.started"
	EventTypeModuleStopped     = "io.petwalk.module.stopped"

	EventTypeAppStarted = "io.petwalk.app.started"
	EventTypeAppStopped = "io.petwalk.app.stopped"

	EventTypeDirectoryLoaded = "io.petwalk.directory.loaded"
	EventTypeDirectoryFailed = "io.petwalk.directory.failed"

	EventTypeTokenSet     = "io.petwalk.token.set"
	EventTypeTokenCleared = "io.petwalk.token.cleared"

	// EventTypeRedirect carries the client-side location the user should
	// be sent to, e.g. after a 401.
	EventTypeRedirect = "io.petwalk.navigation.redirect"

	EventTypeNotifierConnected    = "io.petwalk.notifier.connected"
	EventTypeNotifierDisconnected = "io.petwalk.notifier.disconnected"

	EventTypeUserLoaded  = "io.petwalk.user.loaded"
	EventTypeUserCleared = "io.petwalk.user.cleared"

	EventTypeRoutesSynced = "io.petwalk.routes.synced"
)

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates a new observer that uses the provided function
// to handle events.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
