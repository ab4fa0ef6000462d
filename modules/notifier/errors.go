package notifier

import "errors"

var (
	ErrInvalidURL        = errors.New("invalid notifier url")
	ErrConnectFailed     = errors.New("notifier connection failed")
	ErrConnectRefused    = errors.New("notifier refused connection")
	ErrProtocol          = errors.New("notifier protocol error")
	ErrServerClosed      = errors.New("notifier closed the connection")
	ErrNotifierUnknown   = errors.New("notifier service not in directory")
	ErrInvalidConfigType = errors.New("notifier: invalid config type")
)
