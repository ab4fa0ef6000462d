package petwalk

import (
	"regexp"
	"strings"
)

// LoggerDecorator wraps a Logger to add behaviour without changing it.
type LoggerDecorator interface {
	Logger

	// GetInnerLogger returns the wrapped logger
	GetInnerLogger() Logger
}

// BaseLoggerDecorator forwards every call to the wrapped logger.
type BaseLoggerDecorator struct {
	inner Logger
}

// NewBaseLoggerDecorator creates a new base decorator wrapping the given logger.
func NewBaseLoggerDecorator(inner Logger) *BaseLoggerDecorator {
	return &BaseLoggerDecorator{inner: inner}
}

// GetInnerLogger returns the wrapped logger
func (d *BaseLoggerDecorator) GetInnerLogger() Logger {
	return d.inner
}

func (d *BaseLoggerDecorator) Info(msg string, args ...any)  { d.inner.Info(msg, args...) }
func (d *BaseLoggerDecorator) Error(msg string, args ...any) { d.inner.Error(msg, args...) }
func (d *BaseLoggerDecorator) Warn(msg string, args ...any)  { d.inner.Warn(msg, args...) }
func (d *BaseLoggerDecorator) Debug(msg string, args ...any) { d.inner.Debug(msg, args...) }

// Redacted replaces masked values in log output.
const Redacted = "[REDACTED]"

// DefaultMaskedKeys are the argument keys that never reach a log sink in
// clear text.
var DefaultMaskedKeys = []string{"token", "password", "authorization", "cookie", "secret"}

// bearer and JWT-looking strings are masked wherever they appear
var credentialPattern = regexp.MustCompile(`(?i)(bearer\s+)?eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`)

// MaskingLoggerDecorator redacts credentials from key-value arguments and
// from string values that look like bearer tokens.
type MaskingLoggerDecorator struct {
	*BaseLoggerDecorator
	keys map[string]bool
}

// NewMaskingLoggerDecorator masks DefaultMaskedKeys plus any extra keys.
// Keys match case-insensitively.
func NewMaskingLoggerDecorator(inner Logger, extraKeys ...string) *MaskingLoggerDecorator {
	keys := make(map[string]bool, len(DefaultMaskedKeys)+len(extraKeys))
	for _, k := range DefaultMaskedKeys {
		keys[k] = true
	}
	for _, k := range extraKeys {
		keys[strings.ToLower(k)] = true
	}
	return &MaskingLoggerDecorator{
		BaseLoggerDecorator: NewBaseLoggerDecorator(inner),
		keys:                keys,
	}
}

func (d *MaskingLoggerDecorator) mask(args []any) []any {
	if len(args) == 0 {
		return args
	}
	masked := make([]any, len(args))
	copy(masked, args)

	for i := 0; i < len(masked); i++ {
		if s, ok := masked[i].(string); ok {
			masked[i] = credentialPattern.ReplaceAllString(s, Redacted)
		}
		// values follow keys
		if i%2 == 1 {
			continue
		}
		key, ok := args[i].(string)
		if !ok || i+1 >= len(masked) {
			continue
		}
		if d.keys[strings.ToLower(key)] {
			masked[i+1] = Redacted
			i++
		}
	}
	return masked
}

func (d *MaskingLoggerDecorator) Info(msg string, args ...any) {
	d.inner.Info(msg, d.mask(args)...)
}

func (d *MaskingLoggerDecorator) Error(msg string, args ...any) {
	d.inner.Error(msg, d.mask(args)...)
}

func (d *MaskingLoggerDecorator) Warn(msg string, args ...any) {
	d.inner.Warn(msg, d.mask(args)...)
}

func (d *MaskingLoggerDecorator) Debug(msg string, args ...any) {
	d.inner.Debug(msg, d.mask(args)...)
}

// ValueInjectionLoggerDecorator prepends fixed key-value pairs to every
// call, e.g. "module", "directory".
type ValueInjectionLoggerDecorator struct {
	*BaseLoggerDecorator
	injectedArgs []any
}

// NewValueInjectionLoggerDecorator creates a decorator that automatically injects values into log events.
func NewValueInjectionLoggerDecorator(inner Logger, injectedArgs ...any) *ValueInjectionLoggerDecorator {
	return &ValueInjectionLoggerDecorator{
		BaseLoggerDecorator: NewBaseLoggerDecorator(inner),
		injectedArgs:        injectedArgs,
	}
}

func (d *ValueInjectionLoggerDecorator) combineArgs(originalArgs []any) []any {
	if len(d.injectedArgs) == 0 {
		return originalArgs
	}
	combined := make([]any, 0, len(d.injectedArgs)+len(originalArgs))
	combined = append(combined, d.injectedArgs...)
	return append(combined, originalArgs...)
}

func (d *ValueInjectionLoggerDecorator) Info(msg string, args ...any) {
	d.inner.Info(msg, d.combineArgs(args)...)
}

func (d *ValueInjectionLoggerDecorator) Error(msg string, args ...any) {
	d.inner.Error(msg, d.combineArgs(args)...)
}

func (d *ValueInjectionLoggerDecorator) Warn(msg string, args ...any) {
	d.inner.Warn(msg, d.combineArgs(args)...)
}

func (d *ValueInjectionLoggerDecorator) Debug(msg string, args ...any) {
	d.inner.Debug(msg, d.combineArgs(args)...)
}

// ModuleLogger tags every entry with the module name.
func ModuleLogger(inner Logger, module string) Logger {
	if inner == nil {
		inner = NopLogger{}
	}
	return NewValueInjectionLoggerDecorator(inner, "module", module)
}
