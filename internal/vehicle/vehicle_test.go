package vehicle

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f150() Summary {
	return Summary{
		Year:      2020,
		Make:      "Ford",
		Model:     "F-150",
		Trim:      "XLT",
		BodyType:  "truck",
		Price:     32000,
		Condition: "Used",
		Snippet:   "One owner, tow package.",
	}
}

// =============================================================================
// Category and qualifiers
// =============================================================================

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		make, model, want string
	}{
		{"Ford", "F-150", "full-size pickup truck"},
		{"TESLA", "Model 3", "electric sedan"},
		{"Tesla", "Cybertruck", "electric vehicle"},
		{"Porsche", "911", "luxury sports car"},
		{"Porsche", "Macan", "luxury performance vehicle"},
		{"Yugo", "GV", "vehicle"},
		{"", "", "vehicle"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryFor(tt.make, tt.model), tt.make+" "+tt.model)
	}
}

func TestPriceQualifier(t *testing.T) {
	assert.Equal(t, "", PriceQualifier(0))
	assert.Equal(t, "budget", PriceQualifier(19999))
	assert.Equal(t, "mid-range", PriceQualifier(20000))
	assert.Equal(t, "premium", PriceQualifier(40000))
	assert.Equal(t, "luxury", PriceQualifier(70000))
}

// =============================================================================
// Text builder
// =============================================================================

func TestBuildVehicleText_WithContext(t *testing.T) {
	text := BuildVehicleText(f150(), true)

	assert.Equal(t,
		"full-size pickup truck. used condition, mid-range price. 2020 Ford F-150 XLT. One owner, tow package.",
		text)
}

func TestBuildVehicleText_WithoutContext(t *testing.T) {
	text := BuildVehicleText(f150(), false)

	assert.Equal(t, "2020 Ford F-150 XLT. truck. One owner, tow package.", text)
	assert.NotContains(t, text, "pickup")
}

func TestBuildVehicleText_UnmappedVehicleUsesGenericCategory(t *testing.T) {
	text := BuildVehicleText(Summary{Year: 1988, Make: "Yugo", Model: "GV"}, true)

	assert.Equal(t, "vehicle. 1988 Yugo GV", text)
}

func TestBuildVehicleText_TruncatesSnippet(t *testing.T) {
	s := f150()
	s.Snippet = strings.Repeat("spotless ", 60)

	text := BuildVehicleText(s, false)

	assert.True(t, strings.HasSuffix(text, "..."))
	assert.Less(t, utf8.RuneCountInString(text), 260)
}

func TestBuildQueryText_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "cheap truck", BuildQueryText("  cheap \t truck\n"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "hello...", Truncate("hello wonderful world", 12))
	assert.Equal(t, "abcdefghij...", Truncate("abcdefghijklmno", 10))
	assert.Equal(t, "héllo...", Truncate("héllo wörld again", 8))
}

// =============================================================================
// Records
// =============================================================================

func TestRecord_ToSummaryFillsSnippet(t *testing.T) {
	rec := Record{ID: "v1", Summary: f150(), Description: strings.Repeat("word ", 100)}

	s := rec.ToSummary()

	assert.LessOrEqual(t, utf8.RuneCountInString(s.Snippet), DefaultDescriptionLimit+3)
	assert.Equal(t, "Ford", s.Make)
}

func TestLoadCatalog(t *testing.T) {
	data := `[
		{"id":"v1","year":2020,"make":"Ford","model":"F-150","type":"truck","price":32000,"listed_at":"2026-01-02T00:00:00Z"},
		{"id":"v2","year":2019,"make":"Honda","model":"Civic","price":18000,"description":"Clean title"}
	]`

	records, err := LoadCatalog(strings.NewReader(data))

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "truck", records[0].BodyType)
	assert.Equal(t, 2026, records[0].ListedAt.Year())
	assert.Equal(t, "Clean title", records[1].Description)
}

func TestLoadCatalog_RejectsDuplicateAndMissingIDs(t *testing.T) {
	_, err := LoadCatalog(strings.NewReader(`[{"id":"a"},{"id":"a"}]`))
	assert.ErrorContains(t, err, "duplicate id")

	_, err = LoadCatalog(strings.NewReader(`[{"make":"Ford"}]`))
	assert.ErrorContains(t, err, "missing id")
}
