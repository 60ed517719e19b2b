package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/JB5579/Otto-Match-V2-sub001/internal/search"
	"github.com/JB5579/Otto-Match-V2-sub001/internal/vehicle"
)

// Format is a search output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid options: text, json)", s)
	}
}

// WriteJSON writes resp as indented JSON.
func WriteJSON(out io.Writer, resp *search.Response) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// SearchResults prints a ranked list, the degraded stages and timings.
func (w *Writer) SearchResults(resp *search.Response) {
	if len(resp.Results) == 0 {
		w.Warningf("No vehicles matched %q", resp.Query)
	}

	for _, c := range resp.Results {
		title := c.Summary.Title()
		if title == "" {
			title = c.ID
		}
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %s\n", c.NewRank, w.styles.Header.Render(title), w.dim(c.ID))

		var facts []string
		if c.Summary.Price > 0 {
			facts = append(facts, FormatPrice(c.Summary.Price))
		}
		if c.Summary.Mileage > 0 {
			facts = append(facts, fmt.Sprintf("%s mi", groupThousands(c.Summary.Mileage)))
		}
		for _, s := range []string{c.Summary.BodyType, c.Summary.Condition} {
			if s != "" {
				facts = append(facts, s)
			}
		}
		score := fmt.Sprintf("fused %.4f", c.CombinedScore)
		if c.Scored {
			score = fmt.Sprintf("relevance %.3f, ", c.RelevanceScore) + score
		}
		facts = append(facts, score)
		_, _ = fmt.Fprintf(w.out, "    %s\n", strings.Join(facts, " · "))

		if c.Summary.Snippet != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.dim(vehicle.Truncate(c.Summary.Snippet, 100)))
		}
	}

	w.Newline()
	if resp.ExpandedQuery != nil && resp.ExpandedQuery.Expanded != resp.Query {
		w.KeyValue("expanded", resp.ExpandedQuery.Expanded)
	}
	if stages := resp.Degraded.Stages(); len(stages) > 0 {
		names := make([]string, len(stages))
		for i, s := range stages {
			names[i] = string(s)
		}
		w.Warningf("Degraded: %s", strings.Join(names, ", "))
	}
	w.KeyValue("candidates", resp.TotalCandidates)
	w.KeyValue("latency", fmt.Sprintf("%s (expand %s, retrieve %s, rerank %s)",
		resp.Latency.Total.Round(1e6), resp.Latency.Expansion.Round(1e6),
		resp.Latency.Retrieval.Round(1e6), resp.Latency.Reranking.Round(1e6)))
	w.KeyValue("request", resp.RequestID)
}

// FormatPrice renders a whole-dollar price with thousands separators.
func FormatPrice(p float64) string {
	return "$" + groupThousands(int(p+0.5))
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
