// Package routes keeps the signed-in user's saved routes in step with the
// backend. Add and Remove update the local list first and undo the change
// when the backend call fails.
package routes

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/token"
)

// Service is the saved routes list.
type Service interface {
	List() []api.SavedRoute
	Refresh(ctx context.Context) error
	Add(ctx context.Context, route api.Route) (api.SavedRoute, error)
	Remove(ctx context.Context, id int) error
}

// Synced is the payload of the routes.synced event.
type Synced struct {
	Count int `json:"count"`
}

// List implements Service.
type List struct {
	backend api.Backend
	tokens  token.Service
	logger  petwalk.Logger
	subject petwalk.Subject

	mu     sync.Mutex
	routes []api.SavedRoute
	// nextTemp numbers optimistic entries; they carry negative IDs until
	// the backend assigns one
	nextTemp int
}

var _ Service = (*List)(nil)

func NewList(backend api.Backend, tokens token.Service, logger petwalk.Logger, subject petwalk.Subject) *List {
	if logger == nil {
		logger = petwalk.NopLogger{}
	}
	return &List{backend: backend, tokens: tokens, logger: logger, subject: subject}
}

// List returns a copy of the current routes.
func (l *List) List() []api.SavedRoute {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.routes)
}

// Refresh replaces the list with the backend's. Without a token the list
// is emptied.
func (l *List) Refresh(ctx context.Context) error {
	tok := l.tokens.Token()
	if tok == "" {
		l.Reset()
		return ErrNotSignedIn
	}
	routes, err := l.backend.Routes(ctx, tok)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.tokens.Token() != tok {
		// signed out or switched account while the request was in flight
		l.mu.Unlock()
		return ErrNotSignedIn
	}
	l.routes = routes
	l.mu.Unlock()

	l.logger.Debug("Saved routes refreshed", "count", len(routes))
	petwalk.Emit(ctx, l.subject, l.logger, "petwalk.routes", petwalk.EventTypeRoutesSynced, Synced{Count: len(routes)})
	return nil
}

// Reset empties the list.
func (l *List) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes = nil
}

// Add shows route immediately and saves it; a failed save removes it
// again.
func (l *List) Add(ctx context.Context, route api.Route) (api.SavedRoute, error) {
	tok := l.tokens.Token()
	if tok == "" {
		return api.SavedRoute{}, ErrNotSignedIn
	}
	pending, err := route.Parse()
	if err != nil {
		return api.SavedRoute{}, err
	}

	l.mu.Lock()
	l.nextTemp--
	pending.ID = l.nextTemp
	l.routes = append(l.routes, pending)
	l.mu.Unlock()

	saved, err := l.backend.SaveRoute(ctx, tok, route)

	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.IndexFunc(l.routes, func(r api.SavedRoute) bool { return r.ID == pending.ID })
	if err != nil {
		if i >= 0 {
			l.routes = slices.Delete(l.routes, i, i+1)
		}
		l.logger.Warn("Failed to save route, rolled back", "error", err)
		return api.SavedRoute{}, err
	}

	switch {
	case i >= 0:
		l.routes[i] = saved
	case !slices.ContainsFunc(l.routes, func(r api.SavedRoute) bool { return r.ID == saved.ID }):
		// a refresh replaced the list while the save was in flight
		l.routes = append(l.routes, saved)
	}
	return saved, nil
}

// Remove drops the route immediately and deletes it on the backend; a
// failed delete puts it back where it was. A route the backend no longer
// knows counts as removed.
func (l *List) Remove(ctx context.Context, id int) error {
	tok := l.tokens.Token()
	if tok == "" {
		return ErrNotSignedIn
	}

	l.mu.Lock()
	i := slices.IndexFunc(l.routes, func(r api.SavedRoute) bool { return r.ID == id })
	var removed api.SavedRoute
	if i >= 0 {
		removed = l.routes[i]
		l.routes = slices.Delete(l.routes, i, i+1)
	}
	l.mu.Unlock()

	err := l.backend.RemoveRoute(ctx, tok, id)
	var serr *api.StatusError
	if err == nil || (errors.As(err, &serr) && serr.Code == http.StatusNotFound) {
		return nil
	}

	if i >= 0 {
		l.mu.Lock()
		if !slices.ContainsFunc(l.routes, func(r api.SavedRoute) bool { return r.ID == id }) {
			l.routes = slices.Insert(l.routes, min(i, len(l.routes)), removed)
		}
		l.mu.Unlock()
	}
	l.logger.Warn("Failed to remove route, rolled back", "id", id, "error", err)
	return err
}
