package probe

import (
	"math"
	"net/netip"
)

// RTT holds round trip time statistics in seconds.
type RTT struct {
	Min float64
	Avg float64
	Max float64
}

// Sample is the result of one probe cycle for one address.
// RTT is nil when no reply was received.
type Sample struct {
	Address     netip.Addr
	Sent        int
	Received    int
	LossPercent int
	RTT         *RTT
}

// lossPercent returns round(100*(sent-received)/sent), or 100 if nothing was sent.
func lossPercent(sent, received int) int {
	if sent <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(sent-received) / float64(sent)))
}
