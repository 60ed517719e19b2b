package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal output. Plain errors are
// wrapped as internal errors so every line carries a code.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var oe *OttoError
	if !errors.As(err, &oe) {
		oe = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", oe.Message)
	if oe.Suggestion != "" {
		fmt.Fprintf(&sb, "  Suggestion: %s\n", oe.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", oe.Code)
	return sb.String()
}

// LogAttrs flattens an error into key-value pairs for slog.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var oe *OttoError
	if !errors.As(err, &oe) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error", oe.Error(),
		"error_code", oe.Code,
		"error_category", string(oe.Category),
		"retryable", oe.Retryable,
	}
	keys := make([]string, 0, len(oe.Details))
	for k := range oe.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, "detail_"+k, oe.Details[k])
	}
	return attrs
}
