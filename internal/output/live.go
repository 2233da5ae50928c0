package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/torosent/pipebench/internal/coordinator"
	"github.com/torosent/pipebench/internal/metrics"
)

const (
	liveLines = 3
	// cursor up, erase line
	eraseLine = "\x1b[1A\x1b[2K"
)

// LiveSummary redraws a three-line summary in place on each Render.
type LiveSummary struct {
	mu   sync.Mutex
	w    io.Writer
	prev int
}

var _ coordinator.Renderer = (*LiveSummary)(nil)

func NewLiveSummary(w io.Writer) *LiveSummary {
	if w == nil {
		w = io.Discard
	}
	return &LiveSummary{w: w}
}

func (l *LiveSummary) Render(s coordinator.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	if l.prev > 0 {
		b.WriteString(strings.Repeat(eraseLine, l.prev))
		b.WriteByte('\r')
	}
	writeSummary(&b, s.Total, s.Elapsed)
	_, _ = io.WriteString(l.w, b.String())
	l.prev = liveLines
}

// Note prints msg on its own line below the current summary. The next
// Render starts after it instead of overwriting it.
func (l *LiveSummary) Note(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, msg)
	l.prev = 0
}

func writeSummary(b *strings.Builder, acc *metrics.Accumulator, elapsed time.Duration) {
	var rate float64
	if elapsed > 0 {
		rate = float64(acc.Requests()) / elapsed.Seconds()
	}
	fmt.Fprintf(b, "%-25stotal %d | rate: %.2f #/s | errors: %d\n",
		fmt.Sprintf("requests (elaps %s):", FormatElapsed(elapsed)),
		acc.Requests(), rate, acc.Errors())
	fmt.Fprintf(b, "%-25s%s\n", "response status:", statusLine(acc.Statuses()))
	fmt.Fprintf(b, "%-25smin %4.2f | max %4.2f | avg %4.2f\n", "response time(ms):",
		acc.MinLatencyMs(), acc.MaxLatencyMs(), acc.AvgLatencyMs())
}

// statusLine renders "code (count)" pairs in code order.
func statusLine(statuses map[int]uint64) string {
	codes := make([]int, 0, len(statuses))
	for code := range statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	parts := make([]string, 0, len(codes))
	for _, code := range codes {
		parts = append(parts, fmt.Sprintf("%d (%d)", code, statuses[code]))
	}
	return strings.Join(parts, " | ")
}

// FormatElapsed renders d in the largest unit it exceeds: seconds, minutes,
// hours or days, with two decimals.
func FormatElapsed(d time.Duration) string {
	switch {
	case d > 24*time.Hour:
		return fmt.Sprintf("%.2fd", d.Hours()/24)
	case d > time.Hour:
		return fmt.Sprintf("%.2fh", d.Hours())
	case d > time.Minute:
		return fmt.Sprintf("%.2fm", d.Minutes())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
