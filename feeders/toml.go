package feeders

import (
	"github.com/BurntSushi/toml"
)

// TomlFeeder is a feeder that reads TOML files
type TomlFeeder struct {
	fileFeeder
}

// NewTomlFeeder creates a new TomlFeeder that reads from the specified TOML file
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{fileFeeder{
		Path:   filePath,
		format: fileFormat{name: "toml", marshal: toml.Marshal, unmarshal: toml.Unmarshal},
	}}
}
