package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/modules/eventbus"
	"github.com/petwalk/petwalk/modules/notifier"
	"github.com/petwalk/petwalk/modules/routes"
	"github.com/petwalk/petwalk/modules/token"
	"github.com/petwalk/petwalk/modules/user"
)

// lineWriter serializes writes from concurrent event handlers.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func newListenCommand(opts *options) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stay connected and print live notifications",
		Long: `Stay connected and print live notifications until interrupted.
The session follows the token file: signing in or out from another
petwalk process connects or disconnects this one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := &lineWriter{w: cmd.OutOrStdout()}
			s, closeSession, err := opts.openSession(ctx, cmd.ErrOrStderr(), true, statusObserver(out))
			if err != nil {
				return err
			}
			defer closeSession()

			sub, err := s.bus.Subscribe(ctx, notifier.TopicPrefix+"*", func(_ context.Context, e eventbus.Event) error {
				payload, _ := e.Payload.(json.RawMessage)
				out.printf("%s %s\n", e.Topic, payload)
				return nil
			})
			if err != nil {
				return err
			}
			defer func() { _ = s.bus.Unsubscribe(context.Background(), sub) }()

			if s.tokens.Token() == "" {
				out.printf("waiting for sign-in\n")
			}
			out.printf("listening for notifications\n")

			g, gctx := errgroup.WithContext(ctx)
			if metricsAddr != "" {
				g.Go(func() error { return serveMetrics(gctx, s, metricsAddr) })
			}
			g.Go(func() error {
				<-gctx.Done()
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

// statusObserver prints session changes as they happen.
func statusObserver(out *lineWriter) petwalk.Observer {
	return petwalk.NewFunctionalObserver("petwalk-cli", func(_ context.Context, e cloudevents.Event) error {
		switch e.Type() {
		case petwalk.EventTypeUserLoaded:
			var u user.Loaded
			if err := e.DataAs(&u); err == nil {
				out.printf("signed in as %s\n", u.Username)
			}
		case petwalk.EventTypeUserCleared:
			var c user.Cleared
			if err := e.DataAs(&c); err == nil {
				out.printf("user cleared (%s)\n", c.Reason)
			}
		case petwalk.EventTypeRedirect:
			var r token.Redirect
			if err := e.DataAs(&r); err == nil {
				out.printf("session ended (%s), continue at %s\n", r.Reason, r.Location)
			}
		case petwalk.EventTypeRoutesSynced:
			var sy routes.Synced
			if err := e.DataAs(&sy); err == nil {
				out.printf("saved routes: %d\n", sy.Count)
			}
		}
		return nil
	})
}

func serveMetrics(ctx context.Context, s *session, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("Serving metrics", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
