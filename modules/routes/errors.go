package routes

import "errors"

var (
	ErrInvalidConfigType = errors.New("routes: invalid config type")
	ErrInvalidSchedule   = errors.New("invalid cron expression")
	ErrNotSignedIn       = errors.New("not signed in")
)
