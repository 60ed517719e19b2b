// Package ui renders seeding progress to a terminal or a plain stream.
package ui

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a seeding stage.
type Stage int

const (
	StageLoading Stage = iota
	StageEmbedding
	StageStoring
	StageComplete
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "Loading"
	case StageEmbedding:
		return "Embedding"
	case StageStoring:
		return "Storing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short tag used in plain output.
func (s Stage) Icon() string {
	switch s {
	case StageLoading:
		return "LOAD"
	case StageEmbedding:
		return "EMBED"
	case StageStoring:
		return "STORE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is a progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// ErrorEvent is a failure while seeding. Warnings don't stop the run.
type ErrorEvent struct {
	VehicleID string
	Err       error
	IsWarn    bool
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Vehicles   int
	Duration   time.Duration
	Embed      time.Duration
	Store      time.Duration
	Model      string
	Dimensions int
	Warnings   int
}

// Renderer displays seeding progress. Implementations are safe for
// concurrent use.
type Renderer interface {
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
}

// NewRenderer returns a styled renderer for interactive terminals and a
// plain one for pipes, CI or when forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg.Output)
	}
	return NewStyledRenderer(cfg.Output, GetStyles(cfg.NoColor || DetectNoColor()))
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether a common CI variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// Nop discards all events.
type Nop struct{}

func (Nop) UpdateProgress(ProgressEvent) {}
func (Nop) AddError(ErrorEvent)          {}
func (Nop) Complete(CompletionStats)     {}
