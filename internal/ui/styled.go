package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const barWidth = 30

// StyledRenderer redraws a single progress line per stage and prints
// errors and the summary above it.
type StyledRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	styles  Styles
	stage   Stage
	drawing bool
}

// NewStyledRenderer creates a styled renderer on out.
func NewStyledRenderer(out io.Writer, styles Styles) *StyledRenderer {
	return &StyledRenderer{out: out, styles: styles, stage: -1}
}

// UpdateProgress redraws the progress bar, starting a new line when the
// stage changes.
func (r *StyledRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.stage && r.drawing {
		_, _ = fmt.Fprintln(r.out)
	}
	r.stage = event.Stage
	r.drawing = true

	label := r.styles.Stage.Render(fmt.Sprintf("%-9s", event.Stage.String()))
	if event.Total <= 0 {
		_, _ = fmt.Fprintf(r.out, "\r%s %s", label, r.styles.Label.Render(event.Message))
		return
	}
	_, _ = fmt.Fprintf(r.out, "\r%s %s %s",
		label,
		r.styles.Progress.Render(Bar(event.Current, event.Total, barWidth)),
		r.styles.Label.Render(fmt.Sprintf("%d/%d", event.Current, event.Total)))
}

// AddError prints the error on its own line.
func (r *StyledRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakLine()
	style, prefix := r.styles.Error, "✗"
	if event.IsWarn {
		style, prefix = r.styles.Warning, "!"
	}
	msg := event.Err.Error()
	if event.VehicleID != "" {
		msg = event.VehicleID + ": " + msg
	}
	_, _ = fmt.Fprintln(r.out, style.Render(prefix+" "+msg))
}

// Complete prints the summary.
func (r *StyledRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakLine()
	_, _ = fmt.Fprintln(r.out, r.styles.Success.Render("✓ "+completionLine(stats)))
	if stats.Model != "" {
		_, _ = fmt.Fprintln(r.out, r.styles.Dim.Render(fmt.Sprintf("  embedder %s, %d dims", stats.Model, stats.Dimensions)))
	}
}

func (r *StyledRenderer) breakLine() {
	if r.drawing {
		_, _ = fmt.Fprintln(r.out)
		r.drawing = false
	}
}

// Bar renders a width-cell bar filled in proportion to current/total.
func Bar(current, total, width int) string {
	if total <= 0 || width <= 0 {
		return strings.Repeat("░", max(width, 0))
	}
	filled := current * width / total
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
