package probe

import "time"

// MaxDuration estimates how long one probe of n addresses takes with cfg
// when every packet times out. A group whose estimate exceeds its interval
// would be cut off by the interval deadline on every cycle.
func (c Config) MaxDuration(n int) time.Duration {
	if n <= 0 {
		return 0
	}

	o := c.Options.withDefaults()
	wait := o.Timeout * time.Duration(o.Retries+1)

	switch c.Backend {
	case BackendGoPing:
		return time.Duration(batches(n, o.Concurrency)*o.Count) * wait
	case BackendProBing:
		return time.Duration(batches(n, o.Concurrency)) * proBingTimeout(o)
	default:
		// fping sends one round to all addresses every period at most, each
		// round taking n packet intervals
		sweep := time.Duration(n) * o.PacketInterval
		round := max(sweep, fpingPeriod)
		return time.Duration(o.Count-1)*round + sweep + wait
	}
}

func batches(n, size int) int {
	return (n + size - 1) / size
}
