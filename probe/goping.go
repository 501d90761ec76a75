package probe

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"time"

	ping "github.com/digineo/go-ping"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// echoer sends one echo request and waits for its reply.
type echoer interface {
	PingContext(ctx context.Context, remote *net.IPAddr) (time.Duration, error)
}

// GoPing pings from inside the process over raw ICMP sockets. It needs
// CAP_NET_RAW (or root). The sockets are opened on first use and shared by
// all workers.
type GoPing struct {
	opts Options

	mu     sync.Mutex
	pinger *ping.Pinger
	echo   echoer
}

// NewGoPing returns a raw socket Prober.
func NewGoPing(opts Options) *GoPing {
	return &GoPing{opts: opts.withDefaults()}
}

func (g *GoPing) open() (echoer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.echo != nil {
		return g.echo, nil
	}

	var bind4, bind6 string
	if ln, err := net.Listen("tcp4", "127.0.0.1:0"); err == nil {
		// ipv4 enabled
		ln.Close()
		bind4 = "0.0.0.0"
	}
	if ln, err := net.Listen("tcp6", "[::1]:0"); err == nil {
		// ipv6 enabled
		ln.Close()
		bind6 = "::"
	}

	p, err := ping.New(bind4, bind6)
	if err != nil {
		return nil, err
	}
	log.Infof("Opened ICMP sockets (ipv4=%t, ipv6=%t)", bind4 != "", bind6 != "")

	g.pinger = p
	g.echo = p
	return p, nil
}

// Close releases the ICMP sockets.
func (g *GoPing) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pinger != nil {
		g.pinger.Close()
		g.pinger = nil
		g.echo = nil
	}
}

// Probe sends opts.Count echo requests to every address, at most
// opts.Concurrency addresses at a time. Addresses not reached before ctx is
// done are left out of the output.
func (g *GoPing) Probe(ctx context.Context, addrs []netip.Addr) ([]byte, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	e, err := g.open()
	if err != nil {
		return nil, &LaunchError{Backend: BackendGoPing, Err: err}
	}

	summaries := make([]summary, len(addrs))

	var eg errgroup.Group
	eg.SetLimit(g.opts.Concurrency)
	for i, a := range addrs {
		eg.Go(func() error {
			if ctx.Err() == nil {
				summaries[i] = g.pingAddr(ctx, e, a)
			}
			return nil
		})
	}
	eg.Wait()

	return renderSummaries(summaries), ctx.Err()
}

// pingAddr counts a packet as sent once it was answered or gave up on all
// its attempts. A packet cut short by ctx is not counted.
func (g *GoPing) pingAddr(ctx context.Context, e echoer, addr netip.Addr) summary {
	s := summary{addr: addr}
	dst := &net.IPAddr{IP: addr.AsSlice()}

	for i := 0; i < g.opts.Count && ctx.Err() == nil; i++ {
		rtt, ok := g.pingPacket(ctx, e, dst)
		if !ok && ctx.Err() != nil {
			break
		}

		s.sent++
		if ok {
			s.add(rtt)
		}
	}

	if s.sent == 0 {
		return summary{}
	}
	return s
}

func (g *GoPing) pingPacket(ctx context.Context, e echoer, dst *net.IPAddr) (time.Duration, bool) {
	for attempt := 0; attempt <= g.opts.Retries && ctx.Err() == nil; attempt++ {
		rtt, err := g.pingOnce(ctx, e, dst)
		if err == nil {
			return rtt, true
		}
		log.Debugf("ping %s: %v", dst, err)
	}
	return 0, false
}

func (g *GoPing) pingOnce(ctx context.Context, e echoer, dst *net.IPAddr) (rtt time.Duration, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	return e.PingContext(ctx, dst)
}
