// Package lexical is the keyword side of thematic search: a whitespace
// tokenizer and an immutable in-memory BM25 index over chunk texts.
package lexical

import (
	"strings"
	"unicode"
)

// Tokenize lower-cases text, splits it on whitespace and trims surrounding
// punctuation from each word. Accents are kept; Portuguese inflection is
// not stemmed.
func Tokenize(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if w == "" {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}
