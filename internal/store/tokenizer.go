package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches words, keeping hyphen-joined runs like "f-150" together.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+(?:-[\p{L}\p{N}]+)*`)

// DefaultStopWords are filler words dropped from listings and queries.
var DefaultStopWords = []string{
	"a", "an", "and", "the", "of", "for", "with", "in", "on", "to",
	"is", "it", "this", "that", "my", "me", "i", "want", "looking",
	"need", "some", "any",
}

// Tokenize lowercases text and splits it into terms. A hyphenated run
// yields its parts plus the joined form, so "F-150" matches "f150",
// "f-150" and "150".
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(strings.ToLower(text), -1) {
		if !strings.Contains(word, "-") {
			tokens = append(tokens, word)
			continue
		}
		parts := strings.Split(word, "-")
		tokens = append(tokens, strings.Join(parts, ""))
		tokens = append(tokens, parts...)
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[token]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// searchTerms tokenizes text and synonyms into one de-duplicated term
// list in first-seen order.
func searchTerms(text string, synonyms []string, stopWords map[string]struct{}) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, s := range append([]string{text}, synonyms...) {
		for _, t := range FilterStopWords(Tokenize(s), stopWords) {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			terms = append(terms, t)
		}
	}
	return terms
}
