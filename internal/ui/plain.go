package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain renderer on out.
func NewPlainRenderer(out io.Writer) *PlainRenderer {
	return &PlainRenderer{out: out}
}

// UpdateProgress writes "[STAGE] current/total - message".
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d", event.Stage.Icon(), event.Current, event.Total)
		if event.Message != "" {
			_, _ = fmt.Fprintf(r.out, " - %s", event.Message)
		}
		_, _ = fmt.Fprintln(r.out)
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	}
}

// AddError writes the error with an ERROR or WARN prefix.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.VehicleID != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.VehicleID, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete writes the summary.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprint(r.out, completionLine(stats))
	_, _ = fmt.Fprintln(r.out)
	if stats.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%d dims)\n", stats.Model, stats.Dimensions)
	}
}

func completionLine(stats CompletionStats) string {
	line := fmt.Sprintf("Seeded %d vehicles in %s", stats.Vehicles, stats.Duration.Round(100*time.Millisecond))
	if stats.Embed > 0 || stats.Store > 0 {
		line += fmt.Sprintf(" (embed %s, store %s)",
			stats.Embed.Round(100*time.Millisecond), stats.Store.Round(100*time.Millisecond))
	}
	if stats.Warnings > 0 {
		line += fmt.Sprintf(", %d warnings", stats.Warnings)
	}
	return line
}
