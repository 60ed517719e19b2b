// Package vehicle holds the vehicle data model and the contextual text
// builder used for embedding input and re-ranking comparison text.
package vehicle

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// DefaultDescriptionLimit is the rune budget for description snippets.
const DefaultDescriptionLimit = 200

// Summary is the denormalized display and scoring view of a vehicle.
// It travels with every candidate through the pipeline.
type Summary struct {
	Year      int     `json:"year"`
	Make      string  `json:"make"`
	Model     string  `json:"model"`
	Trim      string  `json:"trim,omitempty"`
	BodyType  string  `json:"type,omitempty"`
	Price     float64 `json:"price"`
	Condition string  `json:"condition,omitempty"`
	Mileage   int     `json:"mileage,omitempty"`
	Snippet   string  `json:"snippet,omitempty"`
}

// Title returns "{year} {make} {model} {trim}" with empty parts omitted.
func (s Summary) Title() string {
	parts := make([]string, 0, 4)
	if s.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d", s.Year))
	}
	for _, p := range []string{s.Make, s.Model, s.Trim} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Record is a full catalog entry.
type Record struct {
	ID string `json:"id"`
	Summary
	Description string    `json:"description,omitempty"`
	ListedAt    time.Time `json:"listed_at"`
}

// ToSummary returns the record's summary with the description truncated
// into Snippet.
func (r Record) ToSummary() Summary {
	s := r.Summary
	if r.Description != "" {
		s.Snippet = Truncate(r.Description, DefaultDescriptionLimit)
	}
	return s
}

// LoadCatalog decodes a JSON array of records. IDs must be present and unique.
func LoadCatalog(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			return nil, fmt.Errorf("catalog entry %d: missing id", i)
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i, rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
	return records, nil
}
