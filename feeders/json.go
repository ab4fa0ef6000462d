package feeders

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// JSONFeeder is a feeder that reads JSON files
type JSONFeeder struct {
	fileFeeder
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{fileFeeder{
		Path:   filePath,
		format: fileFormat{name: "json", marshal: json.Marshal, unmarshal: json.Unmarshal},
	}}
}

// ComplexFeeder is what ForFile returns; it matches petwalk.ComplexFeeder.
type ComplexFeeder interface {
	Feed(structure any) error
	FeedKey(key string, target any) error
}

// ForFile picks a file feeder by extension. Unknown extensions are read
// as YAML.
func ForFile(path string) ComplexFeeder {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return NewTomlFeeder(path)
	case ".json":
		return NewJSONFeeder(path)
	default:
		return NewYamlFeeder(path)
	}
}
