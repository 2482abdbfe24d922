package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Overlay decodes values onto dst, a pointer to a struct with yaml tags.
// Fields absent from values keep their current (default) value and unknown
// keys are rejected, so graph configuration behaves like a typed
// from-runnable-config constructor.
//
//	cfg := analyst.DefaultConfig()
//	if err := config.Overlay(&cfg, appCfg.Section("analyst")); err != nil {
//	    return err
//	}
func Overlay(dst any, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode configurable values: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid configurable values: %w", err)
	}
	return nil
}
