package expand

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	oerrors "github.com/JB5579/Otto-Match-V2-sub001/internal/errors"
)

// payload is the exact shape the LLM must return.
type payload struct {
	ExpandedQuery    *string        `json:"expanded_query"`
	Synonyms         []string       `json:"synonyms"`
	ExtractedFilters map[string]any `json:"extracted_filters"`
	Confidence       *float64       `json:"confidence"`
}

// ParsePayload strictly parses raw LLM output into an ExpandedQuery for
// original. Unknown fields, wrong types, an empty expanded_query or a
// confidence outside [0,1] are schema mismatches.
func ParsePayload(original, raw string) (ExpandedQuery, error) {
	body := stripFences(raw)
	if body == "" {
		return ExpandedQuery{}, schemaError("empty response", nil)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var p payload
	if err := dec.Decode(&p); err != nil {
		return ExpandedQuery{}, schemaError("malformed expansion payload", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return ExpandedQuery{}, schemaError("trailing data after expansion payload", nil)
	}

	if p.ExpandedQuery == nil || strings.TrimSpace(*p.ExpandedQuery) == "" {
		return ExpandedQuery{}, schemaError("expanded_query missing or empty", nil)
	}
	if p.Confidence == nil {
		return ExpandedQuery{}, schemaError("confidence missing", nil)
	}
	c := *p.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return ExpandedQuery{}, schemaError(fmt.Sprintf("confidence %v outside [0,1]", c), nil)
	}

	synonyms := make([]string, 0, len(p.Synonyms))
	for _, s := range p.Synonyms {
		if s = strings.TrimSpace(s); s != "" {
			synonyms = append(synonyms, s)
		}
	}

	filters := make(map[string]any, len(p.ExtractedFilters))
	for k, v := range p.ExtractedFilters {
		if v == nil {
			continue
		}
		filters[k] = normalizeNumber(v)
	}

	return ExpandedQuery{
		Original:         original,
		Expanded:         strings.TrimSpace(*p.ExpandedQuery),
		Synonyms:         synonyms,
		ExtractedFilters: filters,
		Confidence:       c,
	}, nil
}

// normalizeNumber converts json.Number to int64 when integral, else float64.
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the language tag line (```json).
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func schemaError(msg string, cause error) error {
	return oerrors.New(oerrors.ErrCodeSchemaMismatch, msg, cause)
}
