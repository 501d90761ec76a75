package probe

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"os"
	"os/exec"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// fping exit codes, see fping(8)
const (
	fpingSomeUnreachable = 1
	fpingUnknownHost     = 2
)

// waitDelay bounds how long fping may take to print its summaries after it
// was interrupted. It is killed once the delay has passed.
const waitDelay = time.Second

// fpingPeriod is the gap between two packets to the same address (fping -p).
const fpingPeriod = time.Second

// Fping drives the fping executable. Addresses are written to its stdin so
// the command line stays short for large blocks.
type Fping struct {
	path string
	opts Options
}

// NewFping returns a Prober calling the fping binary at path (looked up in
// PATH if it has no separators).
func NewFping(path string, opts Options) *Fping {
	if path == "" {
		path = "fping"
	}

	return &Fping{
		path: path,
		opts: opts.withDefaults(),
	}
}

func (f *Fping) args() []string {
	return []string{
		"-q",
		"-c", strconv.Itoa(f.opts.Count),
		"-r", strconv.Itoa(f.opts.Retries),
		"-t", strconv.FormatInt(f.opts.Timeout.Milliseconds(), 10),
		"-i", strconv.FormatInt(f.opts.PacketInterval.Milliseconds(), 10),
		"-p", strconv.FormatInt(fpingPeriod.Milliseconds(), 10),
	}
}

// Probe runs fping once for all addrs. fping prints its summaries to stderr,
// so both streams are returned together. A non-zero exit status is not an
// error; only a failure to start the process is.
//
// When ctx is done fping is interrupted rather than killed: on SIGINT it stops
// sending and prints the summaries of what it has so far, which are returned
// together with ctx.Err().
func (f *Fping) Probe(ctx context.Context, addrs []netip.Addr) ([]byte, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	var stdin bytes.Buffer
	for _, a := range addrs {
		stdin.WriteString(a.String())
		stdin.WriteByte('\n')
	}

	cmd := exec.CommandContext(ctx, f.path, f.args()...)
	cmd.Stdin = &stdin
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = waitDelay

	out, err := cmd.CombinedOutput()
	if err == nil {
		return out, nil
	}

	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch code := exitErr.ExitCode(); code {
		case fpingSomeUnreachable, fpingUnknownHost:
			log.Debugf("fping exited with status %d", code)
		default:
			log.Warnf("fping exited with status %d", code)
		}
		return out, nil
	}

	return nil, &LaunchError{Backend: BackendFping, Err: err}
}
