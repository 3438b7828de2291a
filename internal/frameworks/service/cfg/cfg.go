// Package cfg decodes raw TOML sub-tables (driver and service sections) into
// typed config structs.
package cfg

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by config structs that fill in their own defaults.
type Setter interface {
	ApplyDefaults()
}

func newDecoder(c any, md *mapstructure.Metadata) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         md,
		Result:           c,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
}

// Decode decodes input into c. Durations may be given as strings ("5s").
// If c implements Setter, ApplyDefaults is called after decoding.
func Decode(input map[string]any, c any) error {
	_, err := DecodeWithUnused(input, c)
	return err
}

// DecodeWithUnused decodes input into c and returns the keys nothing
// consumed, sorted.
func DecodeWithUnused(input map[string]any, c any) ([]string, error) {
	var md mapstructure.Metadata
	decoder, err := newDecoder(c, &md)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, err
	}

	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}

	unused := md.Unused
	sort.Strings(unused)
	return unused, nil
}

// MustDecodeStrict is DecodeWithUnused that fails on unused keys.
func MustDecodeStrict(input map[string]any, c any) error {
	unused, err := DecodeWithUnused(input, c)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		return fmt.Errorf("unused config keys: %v", unused)
	}
	return nil
}
