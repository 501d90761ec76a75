package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/bpbp-boop/fping-exporter/probe"
	"github.com/bpbp-boop/fping-exporter/target"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Store receives the samples of every completed cycle.
type Store interface {
	PutAll(samples []probe.Sample)
}

// worker probes one target group until its context is cancelled.
type worker struct {
	group  target.Group
	prober probe.Prober
	store  Store
	delay  time.Duration
	logger *log.Entry
}

func newWorker(g target.Group, p probe.Prober, s Store, delay time.Duration) *worker {
	return &worker{
		group:  g,
		prober: p,
		store:  s,
		delay:  delay,
		logger: log.WithField("group", g.Expr),
	}
}

// run waits for the initial delay, then alternates between probing and
// sleeping for the group's interval. The interval is measured from the end of
// a cycle, so cycles of one group never overlap.
func (w *worker) run(ctx context.Context) {
	w.logger.Debugf("Waiting %s before first probe of %d addresses", w.delay, len(w.group.Addresses))
	if !sleep(ctx, w.delay) {
		return
	}

	for {
		w.cycle(ctx)

		if !sleep(ctx, w.group.Interval) {
			w.logger.Debugln("Stopped")
			return
		}
	}
}

// cycle runs the prober once and commits the parsed samples. It returns the
// number of samples written.
func (w *worker) cycle(ctx context.Context) int {
	l := w.logger.WithField("cycle", uuid.NewString())
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, w.group.Interval)
	defer cancel()

	out, err := w.prober.Probe(probeCtx, w.group.Addresses)
	switch {
	case err == nil:
	case errors.Is(err, probe.ErrLaunch):
		l.Errorf("Skipping cycle: %v", err)
		return 0
	case ctx.Err() != nil:
		l.Debugf("Probe aborted: %v", err)
		return 0
	case errors.Is(err, context.DeadlineExceeded):
		l.Warnf("Probe did not finish within %s, keeping partial results", w.group.Interval)
	default:
		l.Warnf("Probe failed, keeping partial results: %v", err)
	}

	samples, failures := probe.Parse(out)
	for _, f := range failures {
		l.Debugln(f)
	}

	kept := samples[:0]
	for _, s := range samples {
		if !w.group.Contains(s.Address) {
			l.Debugf("Ignoring result for %s, not part of the group", s.Address)
			continue
		}
		kept = append(kept, s)
	}

	w.store.PutAll(kept)

	l.Debugf("Cycle finished in %s (samples=%d, parse failures=%d)",
		time.Since(start).Round(time.Millisecond), len(kept), len(failures))

	return len(kept)
}

// sleep blocks for d and reports whether ctx is still active.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
