package feeders

import (
	"errors"
	"fmt"
)

// Env feeder errors
var (
	ErrEnvInvalidStructure = errors.New("env: invalid structure")
	ErrEnvEmptyPrefix      = errors.New("env: prefix cannot be empty")
	ErrEnvConversion       = errors.New("env: cannot convert value")
	ErrDotEnvInvalidLine   = errors.New("invalid .env line format")
)

// File feeder errors
var (
	ErrFileRead          = errors.New("cannot read config file")
	ErrFileDecode        = errors.New("cannot decode config file")
	ErrFileKeyConversion = errors.New("cannot convert config section")
)

func wrapEnvConversionError(name string, err error) error {
	return fmt.Errorf("%w %s: %w", ErrEnvConversion, name, err)
}

func wrapDotEnvLineError(path string, line int) error {
	return fmt.Errorf("%w: %s:%d", ErrDotEnvInvalidLine, path, line)
}
