// Package progress reports build-tracking milestones. Each line carries
// a monotonic sequence number and the time elapsed since the reporter
// was created, so the phases of one session (normalize, build, link,
// track) can be correlated even when the watch loop interleaves output
// from several goroutines.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Reporter writes milestone lines to a single destination. Safe for
// concurrent use; the builder's commit path and the watch loop share
// one reporter.
type Reporter struct {
	mu      sync.Mutex
	out     io.Writer
	start   time.Time
	seq     int
	verbose bool
}

// New creates a reporter writing to stderr.
func New(verbose bool) *Reporter {
	return NewTo(os.Stderr, verbose)
}

// NewTo creates a reporter writing to out; tests pass a buffer.
func NewTo(out io.Writer, verbose bool) *Reporter {
	return &Reporter{out: out, start: time.Now(), verbose: verbose}
}

// Log emits one milestone line.
func (r *Reporter) Log(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	fmt.Fprintf(r.out, "buildtrack %4d +%s | %s\n", r.seq, r.sinceStart(), fmt.Sprintf(format, args...))
}

// Verbose emits a milestone line only when verbose mode is on. Sequence
// numbers are not consumed by suppressed lines, so the visible stream
// stays gap-free either way.
func (r *Reporter) Verbose(format string, args ...any) {
	if !r.verbose {
		return
	}
	r.Log(format, args...)
}

// sinceStart renders the elapsed time at sub-second precision early in a
// session and second precision once runs get long. Callers hold r.mu.
func (r *Reporter) sinceStart() string {
	d := time.Since(r.start)
	if d < time.Minute {
		return d.Truncate(10 * time.Millisecond).String()
	}
	return d.Truncate(time.Second).String()
}

// Count formats n with thousands separators for milestone lines that
// report sizes, e.g. "materialized 12,482 links".
func Count(n int) string {
	return humanize.Comma(int64(n))
}
