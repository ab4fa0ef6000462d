// Package petwalk is the composition root of the PetWalk client.
//
// The client is assembled from modules (service directory, HTTP transport,
// token store, backend API, notifier, user session, saved routes) that
// declare their dependencies and exchange services through an App-owned
// service registry instead of global state:
//
//	app := petwalk.NewApp(petwalk.NewStdConfigProvider(&struct{}{}), logger)
//	app.RegisterModule(directory.NewModule())
//	app.RegisterModule(httpclient.NewModule())
//	if err := app.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package petwalk

import (
	"context"
	"reflect"
)

// Module is a registrable component of the client.
type Module interface {
	// Name returns the unique identifier for this module.
	// It is used for dependency resolution and as the config section key.
	Name() string

	// Init initializes the module. It runs after configuration has been
	// loaded and after every module listed in Dependencies has been
	// initialized.
	Init(app Application) error
}

// Configurable modules register a typed configuration section.
// Registration happens before feeders run, so the registered struct
// carries the module's defaults.
type Configurable interface {
	RegisterConfig(app Application) error
}

// DependencyAware modules are initialized after the modules they name.
type DependencyAware interface {
	Dependencies() []string
}

// ServiceAware modules provide services to, and require services from,
// the application's service registry.
type ServiceAware interface {
	// ProvidesServices is consulted after Init; the returned instances are
	// registered under their names.
	ProvidesServices() []ServiceProvider

	// RequiresServices is consulted before Init. Required services that are
	// missing fail initialization; optional ones are skipped.
	RequiresServices() []ServiceDependency
}

// Startable modules run start hooks in dependency order.
// The context is the application's lifecycle context; it is cancelled
// when the application stops.
type Startable interface {
	Start(ctx context.Context) error
}

// Stoppable modules run stop hooks in reverse dependency order.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// ServiceProvider defines a service with metadata
type ServiceProvider struct {
	Name        string
	Description string
	Instance    any
}

// ServiceDependency defines a requirement on a registered service.
type ServiceDependency struct {
	Name     string
	Required bool

	// SatisfiesInterface, when set, must be an interface type the
	// registered service implements.
	SatisfiesInterface reflect.Type
}
