package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/output"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/store"
)

// DefaultProbeTimeout bounds each collaborator probe.
const DefaultProbeTimeout = 5 * time.Second

// CheckStatus represents the result of a check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Probe checks one collaborator. Run returns a short success message.
// A failed optional probe is reported as a warning: the search pipeline
// degrades around it.
type Probe struct {
	Name     string
	Required bool
	Hint     string
	Run      func(ctx context.Context) (string, error)
}

// Checker performs environment checks for one data directory.
type Checker struct {
	dataDir      string
	probes       []Probe
	probeTimeout time.Duration
	verbose      bool
	out          io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithProbe registers a collaborator probe. Probes run in registration order.
func WithProbe(p Probe) Option {
	return func(c *Checker) {
		c.probes = append(c.probes, p)
	}
}

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// WithVerbose prints result details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.out = w
	}
}

// New creates a Checker for dataDir.
func New(dataDir string, opts ...Option) *Checker {
	c := &Checker{
		dataDir:      dataDir,
		probeTimeout: DefaultProbeTimeout,
		out:          os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs the local checks followed by every probe.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{c.CheckDataDir()}
	// Statfs needs an existing path.
	if results[0].Status != StatusFail {
		results = append(results, c.CheckDiskSpace())
	}
	results = append(results, c.CheckFileDescriptors(), c.CheckCatalog())

	for _, p := range c.probes {
		results = append(results, c.RunProbe(ctx, p))
	}
	return results
}

// RunProbe runs p under the probe timeout.
func (c *Checker) RunProbe(ctx context.Context, p Probe) CheckResult {
	result := CheckResult{Name: p.Name, Required: p.Required}

	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	msg, err := p.Run(probeCtx)
	if err != nil {
		result.Status = StatusWarn
		if p.Required {
			result.Status = StatusFail
		}
		result.Message = err.Error()
		result.Details = p.Hint
		return result
	}
	result.Status = StatusPass
	result.Message = msg
	return result
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints one line per result and the summary status.
func (c *Checker) PrintResults(results []CheckResult) {
	w := output.New(c.out)
	w.Header("Otto Doctor")
	w.Newline()

	for _, r := range results {
		line := fmt.Sprintf("%s: %s", r.Name, r.Message)
		switch r.Status {
		case StatusPass:
			w.Success(line)
		case StatusWarn:
			w.Warning(line)
		default:
			w.Error(line)
		}
		// Failures always show their hint.
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			w.Status("", r.Details)
		}
	}

	w.Newline()
	w.KeyValue("status", c.SummaryStatus(results))
}

// CheckDataDir creates the data directory if needed and verifies it is writable.
func (c *Checker) CheckDataDir() CheckResult {
	result := CheckResult{Name: "data_dir", Required: true, Details: c.dataDir}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create: %v", err)
		return result
	}

	f, err := os.CreateTemp(c.dataDir, ".otto-doctor-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("not writable: %v", err)
		return result
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	result.Status = StatusPass
	result.Message = "writable"
	return result
}

// CheckCatalog warns when the data directory has not been seeded.
func (c *Checker) CheckCatalog() CheckResult {
	result := CheckResult{Name: "catalog"}
	path := store.CatalogPath(c.dataDir)

	info, err := os.Stat(path)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "not seeded"
		result.Details = "Run 'otto seed <catalog.json>' to load vehicles"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%s)", store.CatalogFile, formatBytes(uint64(info.Size())))
	result.Details = path
	return result
}
