package feeders

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DotEnvFeeder reads KEY=VALUE pairs from a .env file and feeds them with
// the same naming rules as EnvFeeder. Process environment variables win
// over file entries.
type DotEnvFeeder struct {
	Path   string
	Prefix string
}

// NewDotEnvFeeder creates a new DotEnvFeeder that reads from the specified .env file
func NewDotEnvFeeder(path, prefix string) DotEnvFeeder {
	return DotEnvFeeder{Path: path, Prefix: prefix}
}

// Feed populates structure from the file.
func (f DotEnvFeeder) Feed(structure any) error {
	env, err := f.envFeeder()
	if err != nil {
		return err
	}
	return env.Feed(structure)
}

// FeedKey populates a module section from the file.
func (f DotEnvFeeder) FeedKey(key string, target any) error {
	env, err := f.envFeeder()
	if err != nil {
		return err
	}
	return env.FeedKey(key, target)
}

func (f DotEnvFeeder) envFeeder() (EnvFeeder, error) {
	vars, err := parseDotEnv(f.Path)
	if err != nil {
		return EnvFeeder{}, err
	}
	return EnvFeeder{
		Prefix: f.Prefix,
		lookup: func(name string) (string, bool) {
			if v, ok := os.LookupEnv(name); ok {
				return v, true
			}
			v, ok := vars[name]
			return v, ok
		},
	}, nil
}

func parseDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	defer file.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, wrapDotEnvLineError(path, lineNo)
		}

		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	return vars, nil
}
