package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cucumber/godog"
)

type fetchResult struct {
	body []byte
	err  error
}

// Directory BDD Test Context
type DirectoryBDDTestContext struct {
	dir      *Directory
	respond  chan fetchResult
	loadErr  chan error
	lastLoad error

	ctx      context.Context
	cancel   context.CancelFunc
	waiters  sync.WaitGroup
	released atomic.Int32
	waiting  int

	immediate error
}

func (c *DirectoryBDDTestContext) aDirectoryWhoseDiscoveryCallIsPending() error {
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.respond = make(chan fetchResult)
	c.loadErr = make(chan error, 1)

	c.dir = New(FetcherFunc(func(ctx context.Context) ([]Descriptor, error) {
		select {
		case res := <-c.respond:
			if res.err != nil {
				return nil, res.err
			}
			return ParseDiscovery(res.body)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	go func() { c.loadErr <- c.dir.Load(c.ctx) }()
	return nil
}

func (c *DirectoryBDDTestContext) callersAreWaitingForReadiness(n int) error {
	c.waiting = n
	for i := 0; i < n; i++ {
		c.waiters.Add(1)
		go func() {
			defer c.waiters.Done()
			if err := c.dir.AwaitReady(c.ctx); err == nil {
				c.released.Add(1)
			}
		}()
	}
	return nil
}

func (c *DirectoryBDDTestContext) discoveryRespondsWith(doc *godog.DocString) error {
	c.respond <- fetchResult{body: []byte(doc.Content)}
	c.lastLoad = <-c.loadErr
	return nil
}

func (c *DirectoryBDDTestContext) discoveryFails() error {
	c.respond <- fetchResult{err: errors.New("dial tcp: connection refused")}
	c.lastLoad = <-c.loadErr
	if c.lastLoad == nil {
		return errors.New("expected the load to fail")
	}
	return nil
}

func (c *DirectoryBDDTestContext) allCallersShouldBeReleasedExactlyOnce(n int) error {
	if c.lastLoad != nil {
		return fmt.Errorf("load failed: %w", c.lastLoad)
	}
	done := make(chan struct{})
	go func() {
		c.waiters.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		return fmt.Errorf("only %d of %d callers released", c.released.Load(), n)
	}
	if got := c.released.Load(); got != int32(n) {
		return fmt.Errorf("expected %d releases, got %d", n, got)
	}
	return nil
}

func (c *DirectoryBDDTestContext) aCallerWaitsForReadiness() error {
	// a cancelled context would win any select that actually suspended
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.immediate = c.dir.AwaitReady(ctx)
	return nil
}

func (c *DirectoryBDDTestContext) theCallerShouldBeReleasedImmediately() error {
	if c.immediate != nil {
		return fmt.Errorf("expected immediate release, got %w", c.immediate)
	}
	return nil
}

func (c *DirectoryBDDTestContext) noCallerShouldBeReleasedWithin(ms int) error {
	time.Sleep(time.Duration(ms) * time.Millisecond)
	if got := c.released.Load(); got != 0 {
		return fmt.Errorf("expected no releases, got %d", got)
	}
	return nil
}

func (c *DirectoryBDDTestContext) theLoadShouldFailAsAnInvalidResponse() error {
	if !errors.Is(c.lastLoad, ErrInvalidDiscoveryResponse) {
		return fmt.Errorf("expected ErrInvalidDiscoveryResponse, got %v", c.lastLoad)
	}
	return nil
}

func (c *DirectoryBDDTestContext) lookingUpShouldFindNothing(name string) error {
	if rec, ok := c.dir.Lookup(name); ok {
		return fmt.Errorf("expected %q to be absent, found %+v", name, rec)
	}
	return nil
}

func (c *DirectoryBDDTestContext) lookingUpShouldReturn(name, url string) error {
	rec, ok := c.dir.Lookup(name)
	if !ok {
		return fmt.Errorf("expected %q to be present", name)
	}
	if rec.URL != url {
		return fmt.Errorf("expected %q, got %q", url, rec.URL)
	}
	return nil
}

func (c *DirectoryBDDTestContext) theDirectoryShouldHoldService(n int) error {
	if got := len(c.dir.Records()); got != n {
		return fmt.Errorf("expected %d services, got %d", n, got)
	}
	return nil
}

func (c *DirectoryBDDTestContext) cleanup() {
	if c.cancel != nil {
		c.cancel()
	}
	c.waiters.Wait()
	if c.loadErr != nil && c.lastLoad == nil {
		select {
		case <-c.loadErr:
		case <-time.After(time.Second):
		}
	}
}

func TestDirectoryBDD(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			testCtx := &DirectoryBDDTestContext{}

			ctx.After(func(c context.Context, _ *godog.Scenario, err error) (context.Context, error) {
				testCtx.cleanup()
				return c, err
			})

			ctx.Given(`^a directory whose discovery call is pending$`, testCtx.aDirectoryWhoseDiscoveryCallIsPending)
			ctx.Given(`^(\d+) callers are waiting for readiness$`, testCtx.callersAreWaitingForReadiness)
			ctx.Step(`^discovery responds with:$`, testCtx.discoveryRespondsWith)
			ctx.When(`^discovery fails$`, testCtx.discoveryFails)
			ctx.When(`^a caller waits for readiness$`, testCtx.aCallerWaitsForReadiness)

			ctx.Then(`^all (\d+) callers should be released exactly once$`, testCtx.allCallersShouldBeReleasedExactlyOnce)
			ctx.Then(`^the caller should be released immediately$`, testCtx.theCallerShouldBeReleasedImmediately)
			ctx.Then(`^no caller should be released within (\d+) milliseconds$`, testCtx.noCallerShouldBeReleasedWithin)
			ctx.Then(`^the load should fail as an invalid response$`, testCtx.theLoadShouldFailAsAnInvalidResponse)
			ctx.Then(`^looking up "([^"]*)" should find nothing$`, testCtx.lookingUpShouldFindNothing)
			ctx.Then(`^looking up "([^"]*)" should return "([^"]*)"$`, testCtx.lookingUpShouldReturn)
			ctx.Then(`^the directory should hold (\d+) services?$`, testCtx.theDirectoryShouldHoldService)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
