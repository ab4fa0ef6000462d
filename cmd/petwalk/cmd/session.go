package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/feeders"
	"github.com/petwalk/petwalk/modules/api"
	"github.com/petwalk/petwalk/modules/directory"
	"github.com/petwalk/petwalk/modules/eventbus"
	"github.com/petwalk/petwalk/modules/httpclient"
	"github.com/petwalk/petwalk/modules/notifier"
	"github.com/petwalk/petwalk/modules/routes"
	"github.com/petwalk/petwalk/modules/token"
	"github.com/petwalk/petwalk/modules/user"
)

// envPrefix prefixes every environment override, e.g.
// PETWALK_DIRECTORY_DISCOVERY_URL.
const envPrefix = "PETWALK"

// options are the persistent root flags.
type options struct {
	configFile   string
	envFile      string
	discoveryURL string
	tokenFile    string
	verbose      bool
	timeout      time.Duration
}

// configFeeders orders the sources from weakest to strongest: config
// file, .env file, environment, flags.
func (o *options) configFeeders(live bool) ([]petwalk.Feeder, error) {
	var fs []petwalk.Feeder
	if o.configFile != "" {
		switch strings.ToLower(filepath.Ext(o.configFile)) {
		case ".yaml", ".yml", ".toml", ".json":
			fs = append(fs, feeders.ForFile(o.configFile))
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfig, o.configFile)
		}
	}
	if o.envFile != "" {
		fs = append(fs, feeders.NewDotEnvFeeder(o.envFile, envPrefix))
	}
	fs = append(fs, feeders.NewEnvFeeder(envPrefix), flagFeeder{opts: o, live: live})
	return fs, nil
}

// flagFeeder applies command line flags on top of the other sources.
type flagFeeder struct {
	opts *options
	live bool
}

func (f flagFeeder) Feed(any) error { return nil }

func (f flagFeeder) FeedKey(_ string, target any) error {
	switch cfg := target.(type) {
	case *directory.Config:
		if f.opts.discoveryURL != "" {
			cfg.DiscoveryURL = f.opts.discoveryURL
		}
	case *token.Config:
		if f.opts.tokenFile != "" {
			cfg.File = f.opts.tokenFile
		}
		// one-shot commands exit before another process could change it
		if !f.live {
			cfg.DisableWatch = true
		}
	case *httpclient.Config:
		if f.opts.verbose {
			cfg.Verbose = true
		}
	}
	return nil
}

// session is a started application plus the services commands use.
type session struct {
	app       *petwalk.App
	logger    petwalk.Logger
	backend   api.Backend
	tokens    token.Service
	directory *directory.Module
	registry  *prometheus.Registry

	// set for live sessions only
	bus    eventbus.EventBus
	user   user.Service
	routes routes.Service
}

// openSession builds and starts the client. Live sessions also run the
// notifier, user and routes modules; one-shot commands only need the
// backend. Observers are registered before any module starts.
func (o *options) openSession(ctx context.Context, logOut io.Writer, live bool, observers ...petwalk.Observer) (*session, func(), error) {
	logger, syncLogs := newLogger(logOut, o.verbose)
	fs, err := o.configFeeders(live)
	if err != nil {
		return nil, nil, err
	}

	s := &session{
		logger:    logger,
		directory: directory.NewModule(),
		registry:  prometheus.NewRegistry(),
	}
	app := petwalk.NewApp(nil, logger)
	app.SetConfigFeeders(fs...)
	app.SetStopTimeout(5 * time.Second)
	modules := []petwalk.Module{
		s.directory,
		httpclient.NewModule().WithRegistry(s.registry),
		token.NewModule(),
		api.NewModule(),
	}
	if live {
		modules = append(modules,
			eventbus.NewModule(),
			notifier.NewModule(),
			user.NewModule(),
			routes.NewModule(),
		)
	}
	for _, m := range modules {
		app.RegisterModule(m)
	}
	for _, obs := range observers {
		if err := app.RegisterObserver(obs); err != nil {
			syncLogs()
			return nil, nil, err
		}
	}

	if err := app.Init(); err != nil {
		syncLogs()
		return nil, nil, err
	}
	if err := app.Start(ctx); err != nil {
		syncLogs()
		return nil, nil, err
	}
	s.app = app

	closeFn := func() {
		if err := app.Stop(); err != nil {
			logger.Warn("Shutdown incomplete", "error", err)
		}
		syncLogs()
	}

	if s.backend, err = petwalk.GetService[api.Backend](app, api.ServiceName); err == nil {
		s.tokens, err = petwalk.GetService[token.Service](app, token.ServiceName)
	}
	if err == nil && live {
		if s.bus, err = petwalk.GetService[eventbus.EventBus](app, eventbus.ServiceName); err == nil {
			if s.user, err = petwalk.GetService[user.Service](app, user.ServiceName); err == nil {
				s.routes, err = petwalk.GetService[routes.Service](app, routes.ServiceName)
			}
		}
	}
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return s, closeFn, nil
}

// token returns the stored credential or ErrNotSignedIn.
func (s *session) token() (string, error) {
	tok := s.tokens.Token()
	if tok == "" {
		return "", ErrNotSignedIn
	}
	return tok, nil
}
