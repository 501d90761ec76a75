package config

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v2"
)

// Config represents configuration for the exporter
type Config struct {
	Targets []TargetConfig `yaml:"targets" toml:"targets"`

	Web struct {
		ListenAddress string `yaml:"listen-address" toml:"listen-address"`
		TelemetryPath string `yaml:"telemetry-path" toml:"telemetry-path"`
	} `yaml:"web" toml:"web"`

	Ping struct {
		Interval duration `yaml:"interval" toml:"interval"`
		Timeout  duration `yaml:"timeout" toml:"timeout"`
		Count    int      `yaml:"count" toml:"count"`
		Retries  int      `yaml:"retries" toml:"retries"`

		PacketInterval duration `yaml:"packet-interval" toml:"packet-interval"`
	} `yaml:"ping" toml:"ping"`

	Probe struct {
		Backend     string `yaml:"backend" toml:"backend"`
		FpingPath   string `yaml:"fping-path" toml:"fping-path"`
		Privileged  bool   `yaml:"privileged" toml:"privileged"`
		Concurrency int    `yaml:"concurrency" toml:"concurrency"`
	} `yaml:"probe" toml:"probe"`

	MaxGroupSize int `yaml:"max-group-size" toml:"max-group-size"`
}

type duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (d *duration) UnmarshalYAML(unmashal func(interface{}) error) error {
	var s string
	if err := unmashal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(dur)
	return nil
}

// Duration is a convenience getter.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// Set updates the underlying duration.
func (d *duration) Set(dur time.Duration) {
	*d = duration(dur)
}

// FromYAML reads YAML from reader and unmarshals it to Config
func FromYAML(r io.Reader) (*Config, error) {
	c := &Config{}
	err := yaml.NewDecoder(r).Decode(c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FromTOML reads TOML from reader and unmarshals it to Config
func FromTOML(r io.Reader) (*Config, error) {
	c := &Config{}
	_, err := toml.NewDecoder(r).Decode(c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FromFile decodes r as TOML if name ends in .toml, as YAML otherwise.
func FromFile(name string, r io.Reader) (*Config, error) {
	if strings.EqualFold(filepath.Ext(name), ".toml") {
		return FromTOML(r)
	}
	return FromYAML(r)
}
