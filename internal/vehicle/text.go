package vehicle

import (
	"strings"
	"unicode"
)

// genericCategory is used when neither model nor make is mapped.
const genericCategory = "vehicle"

// makeCategories maps a lowercase make to a broad descriptor.
var makeCategories = map[string]string{
	"tesla":         "electric vehicle",
	"rivian":        "electric vehicle",
	"lucid":         "electric vehicle",
	"porsche":       "luxury performance vehicle",
	"ferrari":       "exotic sports car",
	"lamborghini":   "exotic sports car",
	"bmw":           "luxury vehicle",
	"mercedes-benz": "luxury vehicle",
	"audi":          "luxury vehicle",
	"lexus":         "luxury vehicle",
	"cadillac":      "luxury vehicle",
	"jeep":          "off-road vehicle",
	"ram":           "pickup truck",
}

// modelCategories maps "make model" (lowercase) to a specific descriptor.
// Entries here take precedence over makeCategories.
var modelCategories = map[string]string{
	"ford f-150":          "full-size pickup truck",
	"chevrolet silverado": "full-size pickup truck",
	"ram 1500":            "full-size pickup truck",
	"toyota tundra":       "full-size pickup truck",
	"toyota tacoma":       "mid-size pickup truck",
	"ford ranger":         "mid-size pickup truck",
	"honda civic":         "compact sedan",
	"toyota corolla":      "compact sedan",
	"honda accord":        "midsize sedan",
	"toyota camry":        "midsize sedan",
	"honda cr-v":          "compact suv",
	"toyota rav4":         "compact suv",
	"ford explorer":       "midsize suv",
	"jeep wrangler":       "off-road suv",
	"tesla model 3":       "electric sedan",
	"tesla model y":       "electric suv",
	"ford mustang":        "sports car",
	"chevrolet corvette":  "sports car",
	"porsche 911":         "luxury sports car",
	"honda odyssey":       "minivan",
	"toyota sienna":       "minivan",
}

// CategoryFor returns the category descriptor for make and model.
// Lookups are case-insensitive; unmapped vehicles get "vehicle".
func CategoryFor(vehicleMake, model string) string {
	mk := strings.ToLower(strings.TrimSpace(vehicleMake))
	md := strings.ToLower(strings.TrimSpace(model))
	if c, ok := modelCategories[mk+" "+md]; ok {
		return c
	}
	if c, ok := makeCategories[mk]; ok {
		return c
	}
	return genericCategory
}

// PriceQualifier buckets a price into budget, mid-range, premium or luxury.
// Non-positive prices have no qualifier.
func PriceQualifier(price float64) string {
	switch {
	case price <= 0:
		return ""
	case price < 20000:
		return "budget"
	case price < 40000:
		return "mid-range"
	case price < 70000:
		return "premium"
	default:
		return "luxury"
	}
}

// BuildVehicleText renders s as text for embedding or cross-encoder
// comparison. With includeContext the output leads with the category and
// condition/price qualifiers; without it, the body type follows the title.
func BuildVehicleText(s Summary, includeContext bool) string {
	var parts []string

	if includeContext {
		parts = append(parts, CategoryFor(s.Make, s.Model))

		var quals []string
		if c := strings.TrimSpace(s.Condition); c != "" {
			quals = append(quals, strings.ToLower(c)+" condition")
		}
		if p := PriceQualifier(s.Price); p != "" {
			quals = append(quals, p+" price")
		}
		if len(quals) > 0 {
			parts = append(parts, strings.Join(quals, ", "))
		}
	}

	if title := s.Title(); title != "" {
		parts = append(parts, title)
	}
	if !includeContext {
		if bt := strings.TrimSpace(s.BodyType); bt != "" {
			parts = append(parts, bt)
		}
	}
	if d := Truncate(s.Snippet, DefaultDescriptionLimit); d != "" {
		parts = append(parts, d)
	}

	return strings.Join(parts, ". ")
}

// BuildQueryText normalizes whitespace in a query. Queries never carry
// category context so they can match across categories.
func BuildQueryText(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// Truncate shortens s to at most limit runes, cutting back to the last
// word boundary and appending "...". Whitespace is collapsed first.
func Truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}

	cut := runes[:limit]
	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + "..."
}
