package timing

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
)

func TestTimerMark(t *testing.T) {
	timer := New("Apply")

	time.Sleep(10 * time.Millisecond)
	timer.Mark("connect")

	time.Sleep(15 * time.Millisecond)
	timer.Mark("apply")

	phases := timer.Phases()
	if len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(phases))
	}
	if phases[0].Name != "connect" || phases[0].Duration < 10*time.Millisecond {
		t.Errorf("phase 0 = %+v, want connect lasting at least 10ms", phases[0])
	}
	if phases[1].Name != "apply" || phases[1].Duration < 15*time.Millisecond {
		t.Errorf("phase 1 = %+v, want apply lasting at least 15ms", phases[1])
	}
	if timer.Total() < phases[0].Duration+phases[1].Duration {
		t.Errorf("total %v shorter than its phases", timer.Total())
	}
}

func TestTimerTime(t *testing.T) {
	timer := New("Revert")
	boom := errors.New("boom")

	if err := timer.Time("revert", func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Time() error = %v, want boom", err)
	}
	if phases := timer.Phases(); len(phases) != 1 || phases[0].Name != "revert" {
		t.Errorf("failed phase should still be marked, got %+v", phases)
	}
}

func TestTimerReport(t *testing.T) {
	timer := New("Apply")
	timer.Mark("connect")
	timer.Mark("wait-reboot")

	var buf bytes.Buffer
	timer.Report(&buf)
	output := buf.String()

	for _, want := range []string{"Apply Timing", "connect:", "wait-reboot:", "TOTAL:"} {
		if !strings.Contains(output, want) {
			t.Errorf("report missing %q:\n%s", want, output)
		}
	}
}

func TestTimerEmpty(t *testing.T) {
	timer := New("Info")

	if len(timer.Phases()) != 0 {
		t.Errorf("expected 0 phases, got %d", len(timer.Phases()))
	}

	var buf bytes.Buffer
	timer.Report(&buf)
	if !strings.Contains(buf.String(), "TOTAL:") {
		t.Error("empty report should still have total")
	}
}

func TestTimerLog(t *testing.T) {
	timer := New("Apply")
	timer.Mark("connect")

	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{})
	timer.Log(log)

	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], `"phase"="connect"`) {
		t.Errorf("phase line = %s", lines[0])
	}
	if !strings.Contains(lines[1], "Apply finished") {
		t.Errorf("total line = %s", lines[1])
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
		{2 * time.Second, "2.00s"},
		{3*time.Minute + 20400*time.Millisecond, "3m20s"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.d)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, expected %s", tt.d, result, tt.expected)
		}
	}
}
