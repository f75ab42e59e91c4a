// Package config loads form-session defaults from YAML: the debounce
// window for field edits, the tenant timezone used to combine hold shelf
// expiration components, and the fulfillment defaults applied to fresh
// forms.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/libstaff/reqflow/pkg/entity"
)

// SessionDefaults mirrors the YAML document.
type SessionDefaults struct {
	// DebounceMS is the trailing-edge window for coalescing field edits.
	DebounceMS int `yaml:"debounce_ms"`
	// Timezone is an IANA zone name for hold shelf date/time combining.
	Timezone string `yaml:"timezone"`
	// Fulfillment is the preference preselected on new forms.
	Fulfillment string `yaml:"fulfillment"`
	// HoldShelfTime is the time-of-day applied when only a hold shelf
	// date is entered, in 15:04:05 form.
	HoldShelfTime string `yaml:"hold_shelf_time"`
}

// Defaults returns the values used when no config file is supplied.
func Defaults() SessionDefaults {
	return SessionDefaults{
		DebounceMS:    300,
		Timezone:      "UTC",
		Fulfillment:   string(entity.FulfillHoldShelf),
		HoldShelfTime: "23:59:59",
	}
}

// Load reads and validates a YAML config file. Missing keys keep their
// defaults.
func Load(path string) (SessionDefaults, error) {
	if path == "" {
		return SessionDefaults{}, errors.New("config: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return SessionDefaults{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (SessionDefaults, error) {
	out := Defaults()
	if err := yaml.Unmarshal(data, &out); err != nil {
		return SessionDefaults{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := out.validate(); err != nil {
		return SessionDefaults{}, err
	}
	return out, nil
}

func (d SessionDefaults) validate() error {
	if d.DebounceMS < 0 {
		return fmt.Errorf("config: debounce_ms must not be negative, got %d", d.DebounceMS)
	}
	if _, err := time.LoadLocation(d.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", d.Timezone, err)
	}
	switch entity.FulfillmentPreference(d.Fulfillment) {
	case entity.FulfillHoldShelf, entity.FulfillDelivery:
	default:
		return fmt.Errorf("config: fulfillment %q is not a known preference", d.Fulfillment)
	}
	if _, err := time.Parse("15:04:05", d.HoldShelfTime); err != nil {
		return fmt.Errorf("config: hold_shelf_time %q: %w", d.HoldShelfTime, err)
	}
	return nil
}

// Debounce converts the configured window to a duration.
func (d SessionDefaults) Debounce() time.Duration {
	return time.Duration(d.DebounceMS) * time.Millisecond
}

// Location resolves the configured timezone. validate already checked
// it, so failures here fall back to UTC.
func (d SessionDefaults) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
