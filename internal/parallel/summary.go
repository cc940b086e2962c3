package parallel

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rileyhilliard/sshp/internal/session"
	"github.com/rileyhilliard/sshp/internal/ui"
	"github.com/rileyhilliard/sshp/internal/util"
)

// RenderSummaryTo prints per-host failures and run totals. Hosts that
// succeeded are counted, not listed.
func RenderSummaryTo(w io.Writer, result *Result, theme *ui.Theme) {
	if result == nil {
		return
	}
	if theme == nil {
		theme = ui.Plain(w)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, theme.Muted(strings.Repeat("─", 60)))

	for _, o := range result.PerHost {
		if o.Succeeded() {
			continue
		}
		symbol, style := ui.SymbolFail, theme.Failure
		if o.State == session.TimedOut || o.State == session.Signaled {
			symbol, style = ui.SymbolTimeout, theme.Warning
		}

		detail := fmt.Sprintf("%s %d", o.State, o.Code())
		if o.State == session.SpawnFailed && o.Err != nil {
			detail = "spawn failed"
		}

		fmt.Fprintf(w, "  %s %s %s %s\n",
			style(symbol),
			theme.Host(o.Host.Name),
			style(detail),
			theme.Muted(fmt.Sprintf("(%s)", formatDuration(o.Duration()))),
		)
	}

	fmt.Fprintf(w, "  %s %d succeeded  %s %d failed  %s %d signaled  %s %d timed out  %s %d spawn failed\n",
		theme.Success(ui.SymbolSuccess), result.Succeeded,
		theme.Failure(ui.SymbolFail), result.Failed,
		theme.Warning(ui.SymbolTimeout), result.Signaled,
		theme.Warning(ui.SymbolTimeout), result.TimedOut,
		theme.Failure(ui.SymbolFail), result.SpawnFailed,
	)

	fmt.Fprintf(w, "  %s %d %s, %s stdout, %s stderr %s\n",
		theme.Muted(ui.SymbolComplete),
		result.Total, util.Pluralize(result.Total, "host", "hosts"),
		humanize.Bytes(result.StdoutBytes),
		humanize.Bytes(result.StderrBytes),
		theme.Muted(fmt.Sprintf("(%s)", formatDuration(result.Duration))),
	)
}

// FormatBriefSummary returns a one-line summary for interrupt messages.
func FormatBriefSummary(result *Result) string {
	if result == nil {
		return ""
	}
	finished := len(result.PerHost)
	if finished == result.Total && result.Success() {
		return fmt.Sprintf("%d/%d %s succeeded", result.Succeeded, result.Total,
			util.Pluralize(result.Total, "host", "hosts"))
	}
	return fmt.Sprintf("%d/%d finished, %d succeeded, %d did not",
		finished, result.Total, result.Succeeded, finished-result.Succeeded)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
