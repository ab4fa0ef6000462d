// Package directory resolves backend service endpoints from the discovery
// call and gates every dependent call until resolution.
//
// A Directory moves from uninitialized to ready exactly once. The record
// map is published before the ready channel is closed, so any goroutine
// that has observed readiness also observes the full map:
//
//	dir := directory.New(directory.NewHTTPFetcher(client, "http://localhost:5001"))
//	go func() { _ = dir.Load(ctx) }()
//
//	if err := dir.AwaitReady(ctx); err != nil {
//	    return err
//	}
//	rec, ok := dir.Lookup("controller") // rec.URL == "http://10.0.0.5:8000"
//
// A failed Load leaves the gate closed. Nothing retries automatically;
// waiters block until their context ends or, when configured, until the
// ready timeout reports ErrDirectoryUnavailable.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/petwalk/petwalk"
)

// Record is one resolved backend service.
type Record struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	IP     string `json:"ip,omitempty"`
	Port   string `json:"port"`
}

// Service is what dependents of the directory need.
type Service interface {
	// AwaitReady blocks until the directory is ready.
	AwaitReady(ctx context.Context) error
	// Lookup never blocks; it reports not-found before readiness.
	Lookup(name string) (Record, bool)
	// Fallback returns the configured base URL for name, if any.
	Fallback(name string) (string, bool)
}

// Fetcher retrieves service descriptors from the discovery endpoint.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Descriptor, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]Descriptor, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]Descriptor, error) { return f(ctx) }

// Directory is the write-once service directory with its readiness gate.
type Directory struct {
	fetcher      Fetcher
	logger       petwalk.Logger
	readyTimeout time.Duration
	fallbacks    map[string]string

	records atomic.Pointer[map[string]Record]
	ready   chan struct{}
	publish sync.Once
	loads   singleflight.Group
}

var _ Service = (*Directory)(nil)

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger used for load results.
func WithLogger(logger petwalk.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithReadyTimeout bounds every AwaitReady call. Zero waits forever.
func WithReadyTimeout(timeout time.Duration) Option {
	return func(d *Directory) { d.readyTimeout = timeout }
}

// WithFallbacks sets base URLs returned by Fallback.
func WithFallbacks(fallbacks map[string]string) Option {
	return func(d *Directory) {
		d.fallbacks = make(map[string]string, len(fallbacks))
		for k, v := range fallbacks {
			d.fallbacks[k] = v
		}
	}
}

// New creates an uninitialized directory that loads through fetcher.
func New(fetcher Fetcher, opts ...Option) *Directory {
	d := &Directory{
		fetcher: fetcher,
		logger:  petwalk.NopLogger{},
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load fetches the descriptors and publishes the directory. Concurrent
// calls share one outbound request and its result. After a successful
// load it returns ErrAlreadyLoaded without touching the network.
func (d *Directory) Load(ctx context.Context) error {
	if d.Ready() {
		return ErrAlreadyLoaded
	}

	_, err, shared := d.loads.Do("load", func() (any, error) {
		return nil, d.load(ctx)
	})
	if shared {
		d.logger.Debug("Joined in-flight directory load")
	}
	return err
}

func (d *Directory) load(ctx context.Context) error {
	if d.Ready() {
		return ErrAlreadyLoaded
	}

	start := time.Now()
	descriptors, err := d.fetcher.Fetch(ctx)
	if err != nil {
		d.logger.Error("Service discovery failed", "error", err, "duration", time.Since(start))
		return err
	}

	records := make(map[string]Record, len(descriptors))
	for _, desc := range descriptors {
		// later duplicates replace earlier ones
		records[desc.Name] = desc.Record()
	}

	if !d.set(records) {
		return ErrAlreadyLoaded
	}
	d.logger.Info("Service directory ready", "services", len(records), "duration", time.Since(start))
	return nil
}

// set publishes records and releases the gate. It reports false when the
// directory was already published.
func (d *Directory) set(records map[string]Record) bool {
	published := false
	d.publish.Do(func() {
		d.records.Store(&records)
		close(d.ready)
		published = true
	})
	return published
}

// AwaitReady returns nil as soon as the directory is ready. It returns
// ctx.Err() when ctx ends first and ErrDirectoryUnavailable when the
// ready timeout elapses first.
func (d *Directory) AwaitReady(ctx context.Context) error {
	select {
	case <-d.ready:
		return nil
	default:
	}

	var timeout <-chan time.Time
	if d.readyTimeout > 0 {
		timer := time.NewTimer(d.readyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-d.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: not ready after %s", ErrDirectoryUnavailable, d.readyTimeout)
	}
}

// Done is closed when the directory becomes ready.
func (d *Directory) Done() <-chan struct{} {
	return d.ready
}

// Ready reports whether the directory has been published.
func (d *Directory) Ready() bool {
	select {
	case <-d.ready:
		return true
	default:
		return false
	}
}

// Lookup returns the record for name. Before readiness every name is
// not found.
func (d *Directory) Lookup(name string) (Record, bool) {
	records := d.records.Load()
	if records == nil {
		return Record{}, false
	}
	rec, ok := (*records)[name]
	return rec, ok
}

// Records returns a copy of all records, empty before readiness.
func (d *Directory) Records() []Record {
	records := d.records.Load()
	if records == nil {
		return nil
	}
	out := make([]Record, 0, len(*records))
	for _, rec := range *records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fallback returns the configured base URL for name.
func (d *Directory) Fallback(name string) (string, bool) {
	url, ok := d.fallbacks[name]
	return url, ok
}

// BaseURL resolves name through Lookup and then Fallback. It does not
// wait for readiness.
func BaseURL(svc Service, name string) (string, bool) {
	if rec, ok := svc.Lookup(name); ok {
		return rec.URL, true
	}
	return svc.Fallback(name)
}
