package feeders

import "gopkg.in/yaml.v3"

// YamlFeeder is a feeder that reads YAML files
type YamlFeeder struct {
	fileFeeder
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{fileFeeder{
		Path:   filePath,
		format: fileFormat{name: "yaml", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal},
	}}
}
