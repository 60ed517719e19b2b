package retrieval

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Filters is the typed view of a structured constraint map. Nil pointers
// and empty strings mean "unconstrained".
type Filters struct {
	PriceMin   *float64 `json:"price_min,omitempty"`
	PriceMax   *float64 `json:"price_max,omitempty"`
	YearMin    *int     `json:"year_min,omitempty"`
	YearMax    *int     `json:"year_max,omitempty"`
	Make       string   `json:"make,omitempty"`
	Condition  string   `json:"condition,omitempty"`
	BodyType   string   `json:"body_type,omitempty"`
	MileageMax *int     `json:"mileage_max,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (f Filters) IsEmpty() bool {
	return f == Filters{}
}

// String renders set constraints as sorted key=value pairs, for logs.
func (f Filters) String() string {
	var parts []string
	add := func(k string, v any) { parts = append(parts, fmt.Sprintf("%s=%v", k, v)) }
	if f.PriceMin != nil {
		add("price_min", *f.PriceMin)
	}
	if f.PriceMax != nil {
		add("price_max", *f.PriceMax)
	}
	if f.YearMin != nil {
		add("year_min", *f.YearMin)
	}
	if f.YearMax != nil {
		add("year_max", *f.YearMax)
	}
	if f.Make != "" {
		add("make", f.Make)
	}
	if f.Condition != "" {
		add("condition", f.Condition)
	}
	if f.BodyType != "" {
		add("body_type", f.BodyType)
	}
	if f.MileageMax != nil {
		add("mileage_max", *f.MileageMax)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// filterAliases maps accepted spellings to canonical keys.
var filterAliases = map[string]string{
	"price_min":   "price_min",
	"min_price":   "price_min",
	"price_max":   "price_max",
	"max_price":   "price_max",
	"year_min":    "year_min",
	"min_year":    "year_min",
	"year_max":    "year_max",
	"max_year":    "year_max",
	"make":        "make",
	"condition":   "condition",
	"body_type":   "body_type",
	"type":        "body_type",
	"mileage_max": "mileage_max",
	"max_mileage": "mileage_max",
}

// ParseFilters converts a loosely typed filter map, as produced by query
// expansion or a caller, into Filters. Unknown keys and values that don't
// coerce are ignored. Numbers may arrive as any numeric type, json.Number
// or a numeric string ("$25,000").
func ParseFilters(m map[string]any) Filters {
	var f Filters
	for rawKey, v := range m {
		key, ok := filterAliases[strings.ToLower(strings.TrimSpace(rawKey))]
		if !ok {
			continue
		}
		switch key {
		case "price_min":
			if n, ok := toFloat(v); ok {
				f.PriceMin = &n
			}
		case "price_max":
			if n, ok := toFloat(v); ok {
				f.PriceMax = &n
			}
		case "year_min":
			if n, ok := toInt(v); ok {
				f.YearMin = &n
			}
		case "year_max":
			if n, ok := toInt(v); ok {
				f.YearMax = &n
			}
		case "mileage_max":
			if n, ok := toInt(v); ok {
				f.MileageMax = &n
			}
		case "make":
			f.Make = toString(v)
		case "condition":
			f.Condition = toString(v)
		case "body_type":
			f.BodyType = toString(v)
		}
	}
	return f
}

// MergeFilterMaps returns extracted overlaid with caller, key by key.
// Neither input is modified.
func MergeFilterMaps(extracted, caller map[string]any) map[string]any {
	out := make(map[string]any, len(extracted)+len(caller))
	maps.Copy(out, extracted)
	maps.Copy(out, caller)
	return out
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(n)
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

func toString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
