// Package timing measures the phases of a profile run: connecting, applying,
// waiting for a reboot, provisioning guests.
package timing

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Timer tracks durations of named phases.
type Timer struct {
	title  string
	start  time.Time
	last   time.Time
	phases []Phase
}

// Phase represents a timed phase with name and duration.
type Phase struct {
	Name     string
	Duration time.Duration
}

// New creates a Timer starting from now. title heads the report.
func New(title string) *Timer {
	now := time.Now()
	return &Timer{title: title, start: now, last: now}
}

// Mark records a named phase ending now, lasting since the previous mark.
func (t *Timer) Mark(name string) {
	now := time.Now()
	t.phases = append(t.phases, Phase{Name: name, Duration: now.Sub(t.last)})
	t.last = now
}

// Time runs fn and marks it as phase name, even when fn fails.
func (t *Timer) Time(name string, fn func() error) error {
	err := fn()
	t.Mark(name)
	return err
}

// Total returns the total elapsed time since timer creation.
func (t *Timer) Total() time.Duration {
	return time.Since(t.start)
}

// Phases returns all recorded phases.
func (t *Timer) Phases() []Phase {
	return t.phases
}

// Report prints a timing report to the given writer.
func (t *Timer) Report(w io.Writer) {
	header := fmt.Sprintf("=== %s Timing ===", t.title)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, header)
	for _, p := range t.phases {
		fmt.Fprintf(w, "  %-20s %s\n", p.Name+":", formatDuration(p.Duration))
	}
	fmt.Fprintf(w, "  %-20s %s\n", "TOTAL:", formatDuration(t.Total()))
	fmt.Fprintln(w, strings.Repeat("=", len(header)))
}

// Log writes one entry per phase and the total.
func (t *Timer) Log(log logr.Logger) {
	for _, p := range t.phases {
		log.Info("Phase finished", "phase", p.Name, "duration", formatDuration(p.Duration))
	}
	log.Info(t.title+" finished", "total", formatDuration(t.Total()))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}
