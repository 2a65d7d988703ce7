package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	apperrors "artsync/pkg/errors"
)

// RenderSummary draws the end-of-command panel: outcome counters followed by
// every drained failure so the user can resume by hand.
func RenderSummary(command string, counts map[string]int, failures []apperrors.Entry, elapsed time.Duration) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(command))
	b.WriteString(" " + Dim(elapsed.Round(time.Second).String()) + "\n")

	if len(counts) == 0 {
		b.WriteString(Dim("no artifacts processed") + "\n")
	} else {
		for _, kv := range strings.Split(FormatCounts(counts), " ") {
			k, v, _ := strings.Cut(kv, "=")
			b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Width(18).Render(k), valueStyle.Render(v)))
		}
	}

	if len(failures) > 0 {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("%d error(s)", len(failures))) + "\n")
		for _, e := range failures {
			b.WriteString(fmt.Sprintf("  %s %s\n", Orange("["+string(e.Type)+"]"), e.String()))
		}
	}

	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// PrintSummary writes RenderSummary to Out
func PrintSummary(command string, counts map[string]int, failures []apperrors.Entry, elapsed time.Duration) {
	fmt.Fprintln(Out, lipgloss.NewStyle().MarginTop(1).Render(RenderSummary(command, counts, failures, elapsed)))
}
