// Command petwalk-devserver runs the development backend: discovery,
// users, posts, routes and the notifier socket on a single port.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/internal/devbackend"
)

// ErrInvalidUser is returned for a --user value that is not name:password.
var ErrInvalidUser = errors.New("user must be name:password")

type sugared struct{ s *zap.SugaredLogger }

func (l sugared) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l sugared) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l sugared) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l sugared) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }

type serverOptions struct {
	addr             string
	advertise        string
	secret           string
	users            []string
	generateInterval time.Duration
	verbose          bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &serverOptions{}
	cmd := &cobra.Command{
		Use:          "petwalk-devserver",
		Short:        "Run a local PetWalk backend for development",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ln, err := net.Listen("tcp", opts.addr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), ln, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":5001", "listen address")
	f.StringVar(&opts.advertise, "advertise", "", "base URL published in /config/services (default http://localhost:<port>)")
	f.StringVar(&opts.secret, "secret", "", "HS256 signing key for access tokens")
	f.StringArrayVar(&opts.users, "user", []string{"demo:demo"}, "seed account as name:password, repeatable")
	f.DurationVar(&opts.generateInterval, "generate-interval", 15*time.Second, "minimum spacing between route generations per user")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func parseUser(v string) (name, password string, err error) {
	name, password, ok := strings.Cut(v, ":")
	if !ok || name == "" || password == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidUser, v)
	}
	return name, password, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// serve runs the backend on ln until ctx ends.
func serve(ctx context.Context, ln net.Listener, opts *serverOptions) error {
	z, err := newLogger(opts.verbose)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { _ = z.Sync() }()
	logger := petwalk.NewMaskingLoggerDecorator(sugared{s: z.Sugar()})

	backend := devbackend.New(devbackend.Options{
		Secret:           []byte(opts.secret),
		GenerateInterval: opts.generateInterval,
		Logger:           logger,
	})

	advertise := opts.advertise
	if advertise == "" {
		_, port, err := net.SplitHostPort(ln.Addr().String())
		if err != nil {
			_ = ln.Close()
			return err
		}
		advertise = "http://localhost:" + port
	}
	if err := backend.AdvertiseSelf(advertise); err != nil {
		_ = ln.Close()
		return err
	}
	for _, u := range opts.users {
		name, password, err := parseUser(u)
		if err != nil {
			_ = ln.Close()
			return err
		}
		id := backend.AddUser(name, name+"@petwalk.local", password)
		logger.Info("Seeded user", "username", name, "id", id)
	}

	srv := &http.Server{Handler: backend, ReadHeaderTimeout: 5 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Development backend listening", "addr", ln.Addr().String(), "advertise", advertise)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		backend.DisconnectAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
