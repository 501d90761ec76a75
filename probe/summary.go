package probe

import (
	"bytes"
	"fmt"
	"net/netip"
	"time"
)

// summary is the per address outcome of an in-process backend, rendered in
// the same text form fping uses so that every backend goes through Parse.
type summary struct {
	addr     netip.Addr
	sent     int
	received int
	min      time.Duration
	avg      time.Duration
	max      time.Duration
}

// add records one reply.
func (s *summary) add(rtt time.Duration) {
	if s.received == 0 || rtt < s.min {
		s.min = rtt
	}
	if rtt > s.max {
		s.max = rtt
	}
	s.avg = (s.avg*time.Duration(s.received) + rtt) / time.Duration(s.received+1)
	s.received++
}

func (s summary) writeTo(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "%s : xmt/rcv/%%loss = %d/%d/%d%%",
		s.addr, s.sent, s.received, lossPercent(s.sent, s.received))
	if s.received > 0 {
		fmt.Fprintf(buf, ", min/avg/max = %s/%s/%s", millis(s.min), millis(s.avg), millis(s.max))
	}
	buf.WriteByte('\n')
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d)/float64(time.Millisecond))
}

func renderSummaries(summaries []summary) []byte {
	var buf bytes.Buffer
	for _, s := range summaries {
		if !s.addr.IsValid() {
			continue
		}
		s.writeTo(&buf)
	}
	return buf.Bytes()
}
