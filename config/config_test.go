package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func loadTestConfig(t *testing.T, name string) *Config {
	t.Helper()

	f, err := os.Open(name)
	if err != nil {
		t.Error("failed to open file", err)
		t.FailNow()
	}
	defer f.Close()

	c, err := FromFile(name, f)
	if err != nil {
		t.Error("failed to parse", err)
		t.FailNow()
	}
	return c
}

func TestParseConfig(t *testing.T) {
	for _, name := range []string{"testdata/config_test.yml", "testdata/config_test.toml"} {
		t.Run(name, func(t *testing.T) {
			c := loadTestConfig(t, name)

			targets := []string{
				"8.8.8.8",
				"8.8.4.4",
				"192.0.2.0/28",
				"2001:4860:4860::8888",
			}
			addrs := make([]string, len(c.Targets))
			for i, tc := range c.Targets {
				addrs[i] = tc.Addr
			}
			if !reflect.DeepEqual(targets, addrs) {
				t.Errorf("expected 4 targets (%v) but got %d (%v)", targets, len(addrs), addrs)
				t.FailNow()
			}

			if got := c.Targets[2].IntervalOr(time.Minute); got != 15*time.Second {
				t.Errorf("expected interval of 192.0.2.0/28 to be 15s, got %v", got)
			}
			if got := c.Targets[0].IntervalOr(time.Minute); got != time.Minute {
				t.Errorf("expected interval of 8.8.8.8 to fall back to 1m, got %v", got)
			}

			if expected := ":9999"; c.Web.ListenAddress != expected {
				t.Errorf("expected web.listen-address to be %q, got %q", expected, c.Web.ListenAddress)
			}
			if expected := "/probe"; c.Web.TelemetryPath != expected {
				t.Errorf("expected web.telemetry-path to be %q, got %q", expected, c.Web.TelemetryPath)
			}

			if expected := 2 * time.Minute; c.Ping.Interval.Duration() != expected {
				t.Errorf("expected ping.interval to be %v, got %v", expected, c.Ping.Interval.Duration())
			}
			if expected := 3 * time.Second; c.Ping.Timeout.Duration() != expected {
				t.Errorf("expected ping.timeout to be %v, got %v", expected, c.Ping.Timeout.Duration())
			}
			if expected := 3; c.Ping.Count != expected {
				t.Errorf("expected ping.count to be %d, got %d", expected, c.Ping.Count)
			}
			if expected := 1; c.Ping.Retries != expected {
				t.Errorf("expected ping.retries to be %d, got %d", expected, c.Ping.Retries)
			}
			if expected := 20 * time.Millisecond; c.Ping.PacketInterval.Duration() != expected {
				t.Errorf("expected ping.packet-interval to be %v, got %v", expected, c.Ping.PacketInterval.Duration())
			}

			if expected := "pro-bing"; c.Probe.Backend != expected {
				t.Errorf("expected probe.backend to be %q, got %q", expected, c.Probe.Backend)
			}
			if expected := "/usr/local/sbin/fping"; c.Probe.FpingPath != expected {
				t.Errorf("expected probe.fping-path to be %q, got %q", expected, c.Probe.FpingPath)
			}
			if !c.Probe.Privileged {
				t.Error("expected probe.privileged to be true")
			}
			if expected := 16; c.Probe.Concurrency != expected {
				t.Errorf("expected probe.concurrency to be %d, got %d", expected, c.Probe.Concurrency)
			}

			if expected := 1024; c.MaxGroupSize != expected {
				t.Errorf("expected max-group-size to be %d, got %d", expected, c.MaxGroupSize)
			}
		})
	}
}

func TestParseConfig_invalid(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		input string
	}{
		{"yaml-bad-duration", "c.yml", "ping:\n  interval: soon\n"},
		{"yaml-two-addresses", "c.yml", "targets:\n  - {10.0.0.1: {}, 10.0.0.2: {}}\n"},
		{"toml-bad-duration", "c.toml", "[ping]\ninterval = \"soon\"\n"},
		{"toml-bad-target", "c.toml", "targets = [42]\n"},
		{"toml-bad-target-options", "c.toml", "targets = [{ \"10.0.0.1\" = \"fast\" }]\n"},
		{"toml-bad-interval-type", "c.toml", "targets = [{ \"10.0.0.1\" = { interval = 5 } }]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromFile(tt.file, strings.NewReader(tt.input)); err == nil {
				t.Errorf("expected error for %q", tt.input)
			}
		})
	}
}

func TestFromFile_format(t *testing.T) {
	c, err := FromFile("exporter.TOML", strings.NewReader(`targets = ["10.0.0.0/30"]`))
	if err != nil {
		t.Fatalf("expected upper case extension to select TOML: %v", err)
	}
	if len(c.Targets) != 1 || c.Targets[0].Addr != "10.0.0.0/30" {
		t.Errorf("unexpected targets %v", c.Targets)
	}

	c, err = FromFile("exporter.conf", strings.NewReader("targets: [10.0.0.0/30]\n"))
	if err != nil {
		t.Fatalf("expected unknown extension to select YAML: %v", err)
	}
	if len(c.Targets) != 1 || c.Targets[0].Addr != "10.0.0.0/30" {
		t.Errorf("unexpected targets %v", c.Targets)
	}
}
