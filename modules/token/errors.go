package token

import "errors"

// Token module specific errors
var (
	ErrTokenMalformed    = errors.New("token is malformed")
	ErrTokenExpired      = errors.New("token has expired")
	ErrNoToken           = errors.New("no token stored")
	ErrInvalidConfigType = errors.New("token: invalid config type")
	ErrInvalidFileLine   = errors.New("invalid session file line")
	ErrFileRequired      = errors.New("session file path must be set")
)
