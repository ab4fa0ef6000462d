package cmd

import "errors"

var (
	// ErrNotSignedIn is returned by commands that need a session.
	ErrNotSignedIn = errors.New("not signed in, run 'petwalk login' first")

	// ErrUnsupportedConfig is returned for a --config file whose extension
	// is not .yaml, .yml, .toml or .json.
	ErrUnsupportedConfig = errors.New("unsupported config file type")

	ErrInvalidRouteID   = errors.New("route id must be an integer")
	ErrPasswordRequired = errors.New("password required")
)
