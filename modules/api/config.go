package api

// Config defines the backend API module configuration.
type Config struct {
	// ControllerService is the directory entry serving users and posts.
	ControllerService string `yaml:"controller_service" json:"controller_service" toml:"controller_service" env:"CONTROLLER_SERVICE" default:"controller"`

	// RoutesService is the directory entry serving /route/.
	RoutesService string `yaml:"routes_service" json:"routes_service" toml:"routes_service" env:"ROUTES_SERVICE" default:"controller"`

	// MaxResponseSize caps decoded response bodies in bytes.
	MaxResponseSize int64 `yaml:"max_response_size" json:"max_response_size" toml:"max_response_size" env:"MAX_RESPONSE_SIZE" default:"8388608"`
}
