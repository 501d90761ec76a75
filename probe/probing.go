package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// proBingInterval is the gap between echo requests to one address.
const proBingInterval = 200 * time.Millisecond

// ProBing pings with pro-bing, which can use unprivileged UDP ICMP sockets
// (net.ipv4.ping_group_range) instead of raw sockets.
type ProBing struct {
	privileged bool
	opts       Options

	// run pings one address and returns its statistics.
	run func(ctx context.Context, addr netip.Addr) (*probing.Statistics, error)
}

// NewProBing returns a Prober backed by pro-bing.
func NewProBing(privileged bool, opts Options) *ProBing {
	b := &ProBing{
		privileged: privileged,
		opts:       opts.withDefaults(),
	}
	b.run = b.runPinger

	return b
}

// Probe pings every address opts.Count times. A socket that cannot be opened
// fails the whole batch, since it fails the same way for every address. Send
// errors only affect the address they occurred for.
func (b *ProBing) Probe(ctx context.Context, addrs []netip.Addr) ([]byte, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	summaries := make([]summary, len(addrs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Concurrency)
	for i, a := range addrs {
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}

			s, err := b.pingAddr(egCtx, a)
			if err != nil {
				return err
			}
			summaries[i] = s
			return nil
		})
	}

	if err := eg.Wait(); err != nil && ctx.Err() == nil {
		return nil, &LaunchError{Backend: BackendProBing, Err: err}
	}

	return renderSummaries(summaries), ctx.Err()
}

// pingAddr returns the summary for addr. It returns an error only if no
// socket could be opened. An address aborted by ctx yields an empty summary.
func (b *ProBing) pingAddr(ctx context.Context, addr netip.Addr) (summary, error) {
	stats, err := b.run(ctx, addr)
	switch {
	case err == nil:
	case isSocketError(err):
		return summary{}, err
	case ctx.Err() != nil:
		return summary{}, nil
	default:
		log.Debugf("ping %s: %v", addr, err)
		return summary{addr: addr, sent: b.opts.Count}, nil
	}

	if stats.PacketsSent == 0 {
		return summary{}, nil
	}

	s := summary{
		addr:     addr,
		sent:     stats.PacketsSent,
		received: min(stats.PacketsRecv, stats.PacketsSent),
	}
	if s.received > 0 {
		s.min = stats.MinRtt
		s.avg = stats.AvgRtt
		s.max = stats.MaxRtt
	}

	return s, nil
}

func (b *ProBing) runPinger(ctx context.Context, addr netip.Addr) (*probing.Statistics, error) {
	p := probing.New(addr.String())
	if err := p.Resolve(); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}

	p.Count = b.opts.Count
	p.Interval = proBingInterval
	p.Timeout = proBingTimeout(b.opts)
	p.RecordRtts = false
	p.SetPrivileged(b.privileged)
	p.SetLogger(nil)

	if err := p.RunWithContext(ctx); err != nil {
		return nil, err
	}

	return p.Statistics(), nil
}

// proBingTimeout bounds the run for one address.
func proBingTimeout(o Options) time.Duration {
	return time.Duration(o.Count)*proBingInterval + o.Timeout*time.Duration(o.Retries+1)
}

// isSocketError reports whether err means the ICMP socket could not be
// opened, as opposed to a packet that could not be sent. A send can fail with
// EPERM too when a firewall rejects it, so only the operation is checked.
func isSocketError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "listen"
}
