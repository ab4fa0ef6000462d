// Package feeders populates configuration structs from environment
// variables, .env files and YAML, TOML or JSON files.
//
// Every feeder implements Feed for the main config and FeedKey for a
// named module section, so they can be handed to App.SetConfigFeeders in
// any combination. Later feeders override earlier ones.
package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// EnvFeeder reads environment variables named PREFIX_TAG for the main
// config and PREFIX_SECTION_TAG for module sections, where TAG comes from
// the field's `env` struct tag.
//
//	PETWALK_DIRECTORY_DISCOVERY_URL=http://controller:5001
type EnvFeeder struct {
	Prefix string
	lookup func(string) (string, bool)
}

// NewEnvFeeder creates an EnvFeeder for the given prefix.
func NewEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix, lookup: os.LookupEnv}
}

// Feed populates structure from PREFIX_* variables.
func (f EnvFeeder) Feed(structure any) error {
	return f.fill(structure, f.Prefix)
}

// FeedKey populates target from PREFIX_KEY_* variables.
func (f EnvFeeder) FeedKey(key string, target any) error {
	return f.fill(target, f.Prefix+"_"+key)
}

func (f EnvFeeder) fill(structure any, prefix string) error {
	if f.Prefix == "" {
		return ErrEnvEmptyPrefix
	}
	rv := reflect.ValueOf(structure)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	lookup := f.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return processStructFields(rv.Elem(), normalizeEnvName(prefix), lookup)
}

func normalizeEnvName(s string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(s))
}

func processStructFields(rv reflect.Value, prefix string, lookup func(string) (string, bool)) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !field.CanSet() {
			continue
		}

		switch {
		case field.Kind() == reflect.Struct && fieldType.Type != reflect.TypeOf(time.Time{}):
			if err := processStructFields(field, prefix, lookup); err != nil {
				return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
			}
		case field.Kind() == reflect.Ptr && !field.IsNil() && field.Elem().Kind() == reflect.Struct:
			if err := processStructFields(field.Elem(), prefix, lookup); err != nil {
				return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
			}
		default:
			tag, ok := fieldType.Tag.Lookup("env")
			if !ok || tag == "-" {
				continue
			}
			name := prefix + "_" + normalizeEnvName(tag)
			value, found := lookup(name)
			if !found || value == "" {
				continue
			}
			if err := setFieldValue(field, value); err != nil {
				return wrapEnvConversionError(name, err)
			}
		}
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue converts and sets a field value
func setFieldValue(field reflect.Value, raw string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	case field.Kind() == reflect.Slice:
		parts := strings.Split(raw, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, part := range parts {
			elem := reflect.New(field.Type().Elem()).Elem()
			if err := setFieldValue(elem, strings.TrimSpace(part)); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		field.Set(slice)
		return nil
	}

	converted, err := cast.FromType(raw, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	value := reflect.ValueOf(converted)
	if !value.Type().ConvertibleTo(field.Type()) {
		return fmt.Errorf("cannot convert %v to %v", value.Type(), field.Type())
	}
	field.Set(value.Convert(field.Type()))
	return nil
}
