package user

import "time"

// Config defines the user module configuration.
type Config struct {
	// FetchTimeout bounds each /user/self call.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout" toml:"fetch_timeout" env:"FETCH_TIMEOUT" default:"10s"`

	// IgnoreNotifier loads the profile as soon as a token exists instead
	// of waiting for the notifier connection.
	IgnoreNotifier bool `yaml:"ignore_notifier" json:"ignore_notifier" toml:"ignore_notifier" env:"IGNORE_NOTIFIER"`
}
