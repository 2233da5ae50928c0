package output

import (
	"fmt"
	"io"
	"strings"
)

// Header describes the run for the banner printed before workers start.
type Header struct {
	URL         string
	Processes   int
	Concurrency int
	RunID       string
}

// PrintHeader writes the configuration block framed by '=' rules as wide
// as its longest line.
func PrintHeader(w io.Writer, h Header) {
	lines := []string{
		headerLine("URL:", h.URL),
		headerLine("Processes:", h.Processes),
		headerLine("Concurrency:", h.Concurrency),
	}
	if h.RunID != "" {
		lines = append(lines, headerLine("Run ID:", h.RunID))
	}
	width := 0
	for _, l := range lines {
		if n := len([]rune(l)); n > width {
			width = n
		}
	}
	rule := strings.Repeat("=", width)
	fmt.Fprintf(w, "\n%s\n%s\n%s\n\n", rule, strings.Join(lines, "\n"), rule)
}

func headerLine(label string, value any) string {
	return fmt.Sprintf("%-15s%v", label, value)
}
