// Package registry keeps the latest probe sample of every address.
package registry

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/bpbp-boop/fping-exporter/probe"
)

// Registry maps addresses to their most recent Sample. Entries are only ever
// replaced as a whole, so readers never see fields from two different cycles.
type Registry struct {
	mu      sync.RWMutex
	samples map[netip.Addr]probe.Sample
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		samples: make(map[netip.Addr]probe.Sample),
	}
}

// Put replaces the entry for s.Address.
func (r *Registry) Put(s probe.Sample) {
	r.mu.Lock()
	r.samples[s.Address] = s
	r.mu.Unlock()
}

// PutAll replaces the entries of all samples under a single lock.
func (r *Registry) PutAll(samples []probe.Sample) {
	if len(samples) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range samples {
		r.samples[s.Address] = s
	}
}

// Get returns the entry for addr, if any.
func (r *Registry) Get(addr netip.Addr) (probe.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.samples[addr]
	return s, ok
}

// Len returns the number of addresses with a sample.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.samples)
}

// Snapshot returns a copy of all entries ordered by address. The lock is only
// held while copying; sorting happens afterwards.
func (r *Registry) Snapshot() []probe.Sample {
	r.mu.RLock()
	samples := make([]probe.Sample, 0, len(r.samples))
	for _, s := range r.samples {
		samples = append(samples, s)
	}
	r.mu.RUnlock()

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Address.Less(samples[j].Address)
	})

	return samples
}
