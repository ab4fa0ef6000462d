package user

import "errors"

var (
	ErrInvalidConfigType = errors.New("user: invalid config type")
	ErrNotSignedIn       = errors.New("not signed in")
)
