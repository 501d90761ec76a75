// Package monitor schedules the periodic probing of target groups.
package monitor

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bpbp-boop/fping-exporter/probe"
	"github.com/bpbp-boop/fping-exporter/target"
	log "github.com/sirupsen/logrus"
)

// DefaultInterval is used for groups without an interval.
const DefaultInterval = 60 * time.Second

// Supervisor runs one worker per target group for the lifetime of a context.
type Supervisor struct {
	prober probe.Prober
	store  Store
	jitter func(limit time.Duration) time.Duration

	wg sync.WaitGroup
}

// NewSupervisor creates a Supervisor writing the results of p into s.
func NewSupervisor(p probe.Prober, s Store) *Supervisor {
	return &Supervisor{
		prober: p,
		store:  s,
		jitter: uniformJitter,
	}
}

// Start launches a worker for every group. Each worker first waits a random
// delay in [0, interval) so that groups sharing an interval do not all send
// their ICMP bursts at the same moment. Workers stop when ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context, groups []target.Group) {
	for _, g := range groups {
		if g.Interval <= 0 {
			g.Interval = DefaultInterval
		}

		w := newWorker(g, s.prober, s.store, s.jitter(g.Interval))
		log.Infof("Starting worker for %s (addresses=%d, interval=%s, delay=%s)",
			g.Expr, len(g.Addresses), g.Interval, w.delay.Round(time.Millisecond))

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			w.run(ctx)
		}()
	}
}

// Wait blocks until all workers have returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func uniformJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
