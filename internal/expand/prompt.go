package expand

import "fmt"

const promptTemplate = `You are a query understanding engine for a vehicle marketplace.
Rewrite the shopper's search into a richer search query and extract structured filters.

Respond with a single JSON object and nothing else, using exactly these fields:
{
  "expanded_query": string,       // descriptive rewrite of the search
  "synonyms": [string],           // alternative terms (e.g. "pickup" for "truck")
  "extracted_filters": {          // only constraints the shopper stated or clearly implied
    "price_min": number, "price_max": number,
    "year_min": number, "year_max": number,
    "make": string, "condition": string,
    "body_type": string, "mileage_max": number
  },
  "confidence": number            // 0.0 to 1.0
}
Omit filters that do not apply. Use an empty object when none apply.

Search: %q`

// BuildPrompt renders the structured-extraction prompt for a normalized query.
func BuildPrompt(query string) string {
	return fmt.Sprintf(promptTemplate, query)
}
