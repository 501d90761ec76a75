package probe

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// fakeEcho answers echo requests according to reply. It records how many
// requests every address received.
type fakeEcho struct {
	mu    sync.Mutex
	calls map[string]int
	reply func(ctx context.Context, addr string, call int) (time.Duration, error)
}

func (f *fakeEcho) PingContext(ctx context.Context, remote *net.IPAddr) (time.Duration, error) {
	addr := remote.IP.String()

	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[addr]++
	call := f.calls[addr]
	f.mu.Unlock()

	return f.reply(ctx, addr, call)
}

func (f *fakeEcho) callsTo(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[addr]
}

func sampleMap(t *testing.T, out []byte) map[string]Sample {
	t.Helper()

	samples, failures := Parse(out)
	if len(failures) != 0 {
		t.Fatalf("unexpected parse failures: %v", failures)
	}

	m := make(map[string]Sample, len(samples))
	for _, s := range samples {
		m[s.Address.String()] = s
	}
	return m
}

func TestGoPing_probe(t *testing.T) {
	echo := &fakeEcho{
		reply: func(_ context.Context, addr string, call int) (time.Duration, error) {
			switch {
			case addr == "192.0.2.1":
				return 2 * time.Millisecond, nil
			case addr == "192.0.2.2" && call%2 == 1:
				return 0, errors.New("timeout")
			case addr == "192.0.2.2":
				return 4 * time.Millisecond, nil
			default:
				return 0, errors.New("timeout")
			}
		},
	}
	g := NewGoPing(Options{Count: 3, Retries: 1, Concurrency: 2})
	g.echo = echo

	out, err := g.Probe(context.Background(), testAddrs("192.0.2.1", "192.0.2.2", "192.0.2.3"))
	if err != nil {
		t.Fatalf("Probe() returned error: %v", err)
	}

	samples := sampleMap(t, out)
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3 (output %q)", len(samples), out)
	}

	tests := []struct {
		addr     string
		received int
		avg      float64
	}{
		{"192.0.2.1", 3, 0.002},
		{"192.0.2.2", 3, 0.004},
		{"192.0.2.3", 0, 0},
	}
	for _, tt := range tests {
		s := samples[tt.addr]
		if s.Sent != 3 || s.Received != tt.received {
			t.Errorf("%s: sent/received = %d/%d, want 3/%d", tt.addr, s.Sent, s.Received, tt.received)
		}
		if tt.received > 0 && (s.RTT == nil || s.RTT.Avg != tt.avg) {
			t.Errorf("%s: RTT = %+v, want avg %v", tt.addr, s.RTT, tt.avg)
		}
	}

	// every packet to the silent address is retried once
	if n := echo.callsTo("192.0.2.3"); n != 6 {
		t.Errorf("192.0.2.3 got %d requests, want 6", n)
	}
}

func TestGoPing_cancelledLeavesOutUnpinged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	echo := &fakeEcho{
		reply: func(ctx context.Context, addr string, _ int) (time.Duration, error) {
			if addr == "192.0.2.2" {
				cancel()
				<-ctx.Done()
				return 0, ctx.Err()
			}
			return time.Millisecond, nil
		},
	}
	g := NewGoPing(Options{Count: 2, Concurrency: 1})
	g.echo = echo

	out, err := g.Probe(ctx, testAddrs("192.0.2.1", "192.0.2.2", "192.0.2.3"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}

	samples := sampleMap(t, out)
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1 (output %q)", len(samples), out)
	}
	if s, ok := samples["192.0.2.1"]; !ok || s.Sent != 2 || s.Received != 2 {
		t.Errorf("192.0.2.1 = %+v, %t, want 2/2", s, ok)
	}
	if n := echo.callsTo("192.0.2.3"); n != 0 {
		t.Errorf("192.0.2.3 got %d requests after cancellation", n)
	}
}

func TestProBing_sendErrorStaysWithAddress(t *testing.T) {
	b := NewProBing(false, Options{Count: 3, Concurrency: 1})
	b.run = func(_ context.Context, addr netip.Addr) (*probing.Statistics, error) {
		if addr.String() == "192.0.2.2" {
			return nil, &net.OpError{Op: "write", Net: "udp", Err: os.NewSyscallError("sendto", syscall.EHOSTUNREACH)}
		}
		return &probing.Statistics{
			PacketsSent: 3,
			PacketsRecv: 3,
			MinRtt:      time.Millisecond,
			AvgRtt:      2 * time.Millisecond,
			MaxRtt:      3 * time.Millisecond,
		}, nil
	}

	out, err := b.Probe(context.Background(), testAddrs("192.0.2.1", "192.0.2.2", "192.0.2.3"))
	if err != nil {
		t.Fatalf("Probe() returned error: %v", err)
	}

	samples := sampleMap(t, out)
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3 (output %q)", len(samples), out)
	}
	if s := samples["192.0.2.2"]; s.Sent != 3 || s.Received != 0 || s.LossPercent != 100 {
		t.Errorf("192.0.2.2 = %+v, want 3 sent and full loss", s)
	}
	for _, a := range []string{"192.0.2.1", "192.0.2.3"} {
		if s := samples[a]; s.Received != 3 || s.RTT == nil || s.RTT.Max != 0.003 {
			t.Errorf("%s = %+v, want 3 replies", a, s)
		}
	}
}

func TestProBing_socketErrorIsLaunchFailure(t *testing.T) {
	b := NewProBing(false, Options{Count: 3, Concurrency: 4})
	b.run = func(context.Context, netip.Addr) (*probing.Statistics, error) {
		return nil, &net.OpError{Op: "listen", Net: "udp4", Err: os.NewSyscallError("socket", syscall.EACCES)}
	}

	out, err := b.Probe(context.Background(), testAddrs("192.0.2.1", "192.0.2.2"))
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("error = %v, want ErrLaunch", err)
	}
	if out != nil {
		t.Errorf("output = %q, want nil", out)
	}
}

func TestProBing_cancelledLeavesOutUnpinged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var pinged []string

	b := NewProBing(false, Options{Count: 1, Concurrency: 1})
	b.run = func(ctx context.Context, addr netip.Addr) (*probing.Statistics, error) {
		mu.Lock()
		pinged = append(pinged, addr.String())
		mu.Unlock()

		if addr.String() == "192.0.2.2" {
			cancel()
			return &probing.Statistics{}, nil
		}
		return &probing.Statistics{PacketsSent: 1, PacketsRecv: 1, MinRtt: time.Millisecond, AvgRtt: time.Millisecond, MaxRtt: time.Millisecond}, nil
	}

	out, err := b.Probe(ctx, testAddrs("192.0.2.1", "192.0.2.2", "192.0.2.3"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}

	samples := sampleMap(t, out)
	if _, ok := samples["192.0.2.1"]; !ok || len(samples) != 1 {
		t.Errorf("samples = %v, want only 192.0.2.1", samples)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, a := range pinged {
		if a == "192.0.2.3" {
			t.Error("192.0.2.3 was pinged after cancellation")
		}
	}
}

func TestIsSocketError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"listen", &net.OpError{Op: "listen", Err: syscall.EPERM}, true},
		{"wrapped listen", errors.Join(errors.New("run"), &net.OpError{Op: "listen", Err: syscall.EACCES}), true},
		{"write unreachable", &net.OpError{Op: "write", Err: syscall.EHOSTUNREACH}, false},
		{"write rejected", &net.OpError{Op: "write", Err: syscall.EPERM}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSocketError(tt.err); got != tt.want {
				t.Errorf("isSocketError(%v) = %t, want %t", tt.err, got, tt.want)
			}
		})
	}
}
