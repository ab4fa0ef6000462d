package directory

import "errors"

var (
	// ErrAlreadyLoaded is returned by Load once the directory is ready.
	// The published records are never replaced.
	ErrAlreadyLoaded = errors.New("directory: already loaded")

	// ErrDirectoryUnavailable is returned by AwaitReady when the configured
	// ready timeout elapses before discovery succeeds.
	ErrDirectoryUnavailable = errors.New("directory: unavailable")

	// ErrDiscoveryFailed wraps transport and status failures of the
	// discovery call.
	ErrDiscoveryFailed = errors.New("directory: discovery failed")

	// ErrInvalidDiscoveryResponse is returned when the discovery body does
	// not match the expected shape.
	ErrInvalidDiscoveryResponse = errors.New("directory: invalid discovery response")

	ErrInvalidConfigType = errors.New("directory: invalid config type")
)
