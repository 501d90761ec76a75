package config

import (
	"fmt"
	"time"
)

// TargetConfig is one target expression (IP or CIDR) with an optional
// interval overriding ping.interval for that group.
type TargetConfig struct {
	Addr     string
	Interval duration
}

type targetOptions struct {
	Interval duration `yaml:"interval"`
}

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (d *TargetConfig) UnmarshalYAML(unmashal func(interface{}) error) error {
	var s string
	if err := unmashal(&s); err == nil {
		d.Addr = s
		return nil
	}

	var x map[string]targetOptions
	if err := unmashal(&x); err != nil {
		return err
	}
	if len(x) != 1 {
		return fmt.Errorf("target entry must name exactly one address, got %d", len(x))
	}

	for addr, o := range x {
		d.Addr = addr
		d.Interval = o.Interval
	}

	return nil
}

// UnmarshalTOML implements toml.Unmarshaler interface. Entries are either a
// string or an inline table such as { "10.0.0.0/24" = { interval = "30s" } }.
func (d *TargetConfig) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		d.Addr = v
		return nil
	case map[string]interface{}:
		if len(v) != 1 {
			return fmt.Errorf("target entry must name exactly one address, got %d", len(v))
		}
		for addr, raw := range v {
			d.Addr = addr
			opts, ok := raw.(map[string]interface{})
			if !ok {
				return fmt.Errorf("options of target %q must be a table", addr)
			}
			return d.Interval.fromTOML(opts["interval"])
		}
	}

	return fmt.Errorf("unsupported target entry of type %T", data)
}

func (d *duration) fromTOML(v interface{}) error {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return d.UnmarshalText([]byte(x))
	default:
		return fmt.Errorf("interval must be a duration string, got %T", v)
	}
}

// IntervalOr returns the target's interval, or def if none was configured.
func (d TargetConfig) IntervalOr(def time.Duration) time.Duration {
	if d.Interval > 0 {
		return d.Interval.Duration()
	}
	return def
}
