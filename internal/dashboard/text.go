package dashboard

import (
	"fmt"
	"io"
	"strings"
)

// ChartTitle heads the status code distribution in every renderer.
const ChartTitle = "HTTP Status Code Distribution"

const textBarWidth = 40

// RenderText writes the view as plain text: a loading line, a notice, or
// the summary cards followed by an ASCII bar chart.
func RenderText(w io.Writer, v *View) error {
	st := v.State()
	if st.Loading {
		_, err := fmt.Fprintln(w, "Loading statistics...")
		return err
	}

	var b strings.Builder
	if st.Notice != nil {
		fmt.Fprintf(&b, "%s: %s\n\n", st.Notice.Title, st.Notice.Description)
	}
	for _, c := range CardsFor(st.Snapshot) {
		fmt.Fprintf(&b, "%-15s %s\n", c.Title, c.Value)
	}
	b.WriteString("\n" + ChartTitle + "\n")
	b.WriteString(TextBars(BarsFor(st.Snapshot), textBarWidth))

	_, err := io.WriteString(w, b.String())
	return err
}

// TextBars draws one line per bar, scaled so 100% spans width cells.
func TextBars(bars []Bar, width int) string {
	if len(bars) == 0 {
		return "  (no results)\n"
	}
	var b strings.Builder
	for _, bar := range bars {
		n := int(bar.Percentage/100*float64(width) + 0.5)
		if n > width {
			n = width
		}
		if n < 0 {
			n = 0
		}
		fmt.Fprintf(&b, "  %3d | %-*s %5.1f%% (%d)\n",
			bar.Code, width, strings.Repeat("#", n), bar.Percentage, bar.Count)
	}
	return b.String()
}
