package feeders

import (
	"fmt"
	"os"
)

// fileFormat knows how to decode and re-encode one file syntax.
type fileFormat struct {
	name      string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

// fileFeeder reads a whole config file for Feed and one top-level table
// for FeedKey.
type fileFeeder struct {
	Path   string
	format fileFormat
}

func (f fileFeeder) read() ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrFileRead, f.Path, err)
	}
	return data, nil
}

// Feed decodes the whole file into structure.
func (f fileFeeder) Feed(structure any) error {
	data, err := f.read()
	if err != nil {
		return err
	}
	if err := f.format.unmarshal(data, structure); err != nil {
		return fmt.Errorf("%w (%s) %s: %w", ErrFileDecode, f.format.name, f.Path, err)
	}
	return nil
}

// FeedKey decodes the top-level key section into target. A missing key
// leaves target untouched.
func (f fileFeeder) FeedKey(key string, target any) error {
	data, err := f.read()
	if err != nil {
		return err
	}

	var allData map[string]any
	if err := f.format.unmarshal(data, &allData); err != nil {
		return fmt.Errorf("%w (%s) %s: %w", ErrFileDecode, f.format.name, f.Path, err)
	}

	value, exists := allData[key]
	if !exists {
		return nil
	}

	// Remarshal and unmarshal to handle type conversions
	valueBytes, err := f.format.marshal(value)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrFileKeyConversion, key, err)
	}
	if err := f.format.unmarshal(valueBytes, target); err != nil {
		return fmt.Errorf("%w %s: %w", ErrFileKeyConversion, key, err)
	}
	return nil
}
