package probe

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// ErrParse is matched by every *ParseError.
var ErrParse = errors.New("unparseable probe output")

// summaryRegex matches the per address summary printed by fping -q -c, e.g.
//
//	1.1.1.1 : xmt/rcv/%loss = 5/5/0%, min/avg/max = 0.55/0.66/0.95
//	10.0.0.9 : xmt/rcv/%loss = 5/0/100%
var summaryRegex = regexp.MustCompile(
	`^(\S+)\s+:\s+xmt/rcv/%loss\s*=\s*(\d+)/(\d+)/\d+%` +
		`(?:,\s*min/avg/max\s*=\s*(\d+(?:\.\d*)?)/(\d+(?:\.\d*)?)/(\d+(?:\.\d*)?))?`)

// ParseError describes one output line that could not be turned into a Sample.
// Address is empty when the line did not name a usable address.
type ParseError struct {
	Line    string
	Address string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("could not parse result for %s: %v (line %q)", e.Address, e.Err, e.Line)
	}
	return fmt.Sprintf("could not parse line %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Parse converts the complete output of one probe run into samples. Every
// non-blank line yields either a Sample or a ParseError; a bad line never
// affects the others.
func Parse(output []byte) ([]Sample, []*ParseError) {
	var (
		samples  []Sample
		failures []*ParseError
	)

	sc := bufio.NewScanner(bytes.NewReader(output))
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		s, err := ParseLine(line)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				pe = &ParseError{Line: line, Err: err}
			}
			failures = append(failures, pe)
			continue
		}
		samples = append(samples, s)
	}

	if err := sc.Err(); err != nil {
		failures = append(failures, &ParseError{Err: err})
	}

	return samples, failures
}

// ParseLine parses a single summary line.
func ParseLine(line string) (Sample, error) {
	m := summaryRegex.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Sample{}, &ParseError{Line: line, Err: errors.New("not a summary line")}
	}

	fail := func(err error) (Sample, error) {
		return Sample{}, &ParseError{Line: line, Address: m[1], Err: err}
	}

	addr, err := netip.ParseAddr(m[1])
	if err != nil {
		return fail(err)
	}

	sent, err := strconv.Atoi(m[2])
	if err != nil {
		return fail(err)
	}
	received, err := strconv.Atoi(m[3])
	if err != nil {
		return fail(err)
	}
	if received > sent {
		return fail(fmt.Errorf("received %d exceeds sent %d", received, sent))
	}

	s := Sample{
		Address:     addr.Unmap(),
		Sent:        sent,
		Received:    received,
		LossPercent: lossPercent(sent, received),
	}

	hasRTT := m[4] != ""
	switch {
	case received > 0 && !hasRTT:
		return fail(errors.New("replies received but no round trip times reported"))
	case received == 0 && hasRTT:
		return fail(errors.New("round trip times reported without replies"))
	case !hasRTT:
		return s, nil
	}

	var rtt RTT
	for i, dst := range []*float64{&rtt.Min, &rtt.Avg, &rtt.Max} {
		v, err := millisToSeconds(m[4+i])
		if err != nil {
			return fail(err)
		}
		*dst = v
	}
	s.RTT = &rtt

	return s, nil
}

// millisToSeconds shifts the decimal exponent instead of dividing, so the
// result is the float closest to the printed value in seconds.
func millisToSeconds(ms string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSuffix(ms, ".")+"e-3", 64)
}
