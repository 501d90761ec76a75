// Package probe runs latency probes against batches of addresses and parses
// their fping style summary output into samples.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// Prober runs one probe over a batch of addresses and returns the raw
// summary text, one line per address. Implementations must be safe for
// concurrent use by multiple workers.
type Prober interface {
	Probe(ctx context.Context, addrs []netip.Addr) ([]byte, error)
}

// ErrLaunch is matched by every *LaunchError.
var ErrLaunch = errors.New("probe could not be launched")

// LaunchError is returned when the probe could not be started at all.
type LaunchError struct {
	Backend string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("could not launch %s: %v", e.Backend, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrLaunch.
func (e *LaunchError) Is(target error) bool {
	return target == ErrLaunch
}

// Options controls the packets sent to every address.
type Options struct {
	// Count is the number of echo requests per address.
	Count int
	// Timeout is the time to wait for each reply.
	Timeout time.Duration
	// Retries is the number of extra attempts per packet (fping -r).
	Retries int
	// PacketInterval is the gap between two packets to any address (fping -i).
	PacketInterval time.Duration
	// Concurrency bounds the number of addresses pinged in parallel by the
	// in-process backends.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.Count < 1 {
		o.Count = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = 500 * time.Millisecond
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.PacketInterval <= 0 {
		o.PacketInterval = 10 * time.Millisecond
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	return o
}

// Backend names accepted by New.
const (
	BackendFping   = "fping"
	BackendGoPing  = "go-ping"
	BackendProBing = "pro-bing"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	FpingPath  string
	Privileged bool
	Options    Options
}

// New returns the Prober for cfg.Backend.
func New(cfg Config) (Prober, error) {
	switch cfg.Backend {
	case BackendFping, "":
		return NewFping(cfg.FpingPath, cfg.Options), nil
	case BackendGoPing:
		return NewGoPing(cfg.Options), nil
	case BackendProBing:
		return NewProBing(cfg.Privileged, cfg.Options), nil
	default:
		return nil, fmt.Errorf("unknown probe backend %q", cfg.Backend)
	}
}
