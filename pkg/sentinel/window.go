package sentinel

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// persistWindow is the daily window during which accepted drafts are written.
// Outside the window items are still counted but not persisted unless the
// cycle carries PersistOverride.
type persistWindow struct {
	start  int // minutes since midnight, inclusive
	end    int // minutes since midnight, exclusive
	always bool
}

// parseWindow parses "HH:MM-HH:MM"; an empty spec means always persist.
// A start later than the end describes an overnight window.
func parseWindow(spec string) (*persistWindow, error) {
	if spec == "" {
		return &persistWindow{always: true}, nil
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid window %q, want HH:MM-HH:MM", spec)
	}

	start, err := parseClock(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid window start %q: %w", parts[0], err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid window end %q: %w", parts[1], err)
	}
	if start == end {
		return nil, fmt.Errorf("window %q is empty", spec)
	}

	return &persistWindow{start: start, end: end}, nil
}

// contains reports whether t falls inside the window using local time
func (w *persistWindow) contains(t time.Time) bool {
	if w.always {
		return true
	}

	minutes := t.Hour()*60 + t.Minute()
	if w.start < w.end {
		return minutes >= w.start && minutes < w.end
	}
	// overnight window, e.g. 22:00-06:00
	return minutes >= w.start || minutes < w.end
}

// parseClock converts "HH:MM" to minutes since midnight
func parseClock(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour %q", parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute %q", parts[1])
	}
	return h*60 + m, nil
}
