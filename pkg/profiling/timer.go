// Package profiling records nested wall-clock spans of the indexing phases
// and exposes CPU and heap profiles to the command line.
package profiling

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stopper ends a span.
type Stopper interface {
	Stop()
}

type span struct {
	name     string
	start    time.Time
	duration time.Duration
	children []*span
	recorder *Recorder
}

func (s *span) Stop() {
	s.recorder.end(s)
}

// Recorder collects a tree of spans. Spans nest in the order they are
// started; stopping a span pops it together with any unstopped children.
// The zero Recorder is disabled.
type Recorder struct {
	mu      sync.Mutex
	enabled bool
	root    *span
	stack   []*span
}

// NewRecorder returns an enabled recorder.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.enable()
	return r
}

func (r *Recorder) enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		return
	}
	r.enabled = true
	r.root = &span{name: "total", start: time.Now(), recorder: r}
	r.stack = []*span{r.root}
}

// Start opens a span below the innermost open one.
func (r *Recorder) Start(name string) Stopper {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return noopStopper{}
	}
	parent := r.stack[len(r.stack)-1]
	s := &span{name: name, start: time.Now(), recorder: r}
	parent.children = append(parent.children, s)
	r.stack = append(r.stack, s)
	return s
}

func (r *Recorder) end(s *span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.duration == 0 {
		s.duration = time.Since(s.start)
	}
	for i := len(r.stack) - 1; i > 0; i-- {
		if r.stack[i] == s {
			r.stack = r.stack[:i]
			return
		}
	}
}

// Summarize writes the span tree with each span's share of the total.
func (r *Recorder) Summarize(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	total := time.Since(r.root.start)
	fmt.Fprintln(w, "--- timing ---")
	for _, c := range r.root.children {
		printSpan(w, c, 0, total)
	}
	fmt.Fprintf(w, "total %v\n", total.Round(100*time.Microsecond))
}

func printSpan(w io.Writer, s *span, depth int, total time.Duration) {
	d := s.duration
	open := ""
	if d == 0 {
		d = time.Since(s.start)
		open = " (open)"
	}
	pct := 0.0
	if total > 0 {
		pct = float64(d) / float64(total) * 100
	}
	fmt.Fprintf(w, "%s%s %v %.1f%%%s\n", strings.Repeat("  ", depth), s.name, d.Round(100*time.Microsecond), pct, open)

	children := append([]*span(nil), s.children...)
	sort.Slice(children, func(i, j int) bool { return children[i].start.Before(children[j].start) })
	for _, c := range children {
		printSpan(w, c, depth+1, total)
	}
}

type noopStopper struct{}

func (noopStopper) Stop() {}

var defaultRecorder = &Recorder{}

// Enable turns on the process-wide recorder.
func Enable() { defaultRecorder.enable() }

// Start opens a span on the process-wide recorder. It is a no-op until
// Enable is called.
func Start(name string) Stopper { return defaultRecorder.Start(name) }

// Summarize writes the process-wide span tree.
func Summarize(w io.Writer) { defaultRecorder.Summarize(w) }
