package text

import (
	"strings"
	"unicode"
)

// DefaultMaxInputLength bounds how many runes are segmented in one pass.
const DefaultMaxInputLength = 5_000_000

// Segmenter splits text into sentences in document order. Implementations
// return trimmed, non-empty sentences.
type Segmenter interface {
	Segment(text string) []string
}

// abbreviations never end a sentence when followed by a period.
var abbreviations = map[string]struct{}{
	"sr": {}, "sra": {}, "srs": {}, "sras": {}, "srta": {}, "dr": {}, "dra": {},
	"drs": {}, "d": {}, "v": {}, "exa": {}, "exmo": {}, "exma": {}, "prof": {},
	"profa": {}, "pe": {}, "fr": {}, "s": {}, "sto": {}, "sta": {}, "gal": {},
	"cel": {}, "cap": {}, "ten": {}, "sgt": {}, "pág": {}, "pag": {}, "págs": {},
	"p": {}, "pp": {}, "vol": {}, "ed": {}, "edit": {}, "trad": {}, "obs": {},
	"etc": {}, "ex": {}, "av": {}, "cf": {}, "op": {}, "cit": {}, "ibid": {},
	"n": {}, "nº": {}, "núm": {}, "séc": {}, "art": {}, "fl": {}, "fls": {},
	"ilmo": {}, "ilma": {}, "rev": {}, "revmo": {}, "snr": {},
}

// headings introduce a Roman numeral that ends a sentence, as in
// "Capítulo I." or "Livro V.".
var headings = map[string]struct{}{
	"capítulo": {}, "capitulo": {}, "cap": {}, "livro": {}, "parte": {},
	"canto": {}, "ato": {}, "cena": {}, "tomo": {}, "volume": {}, "vol": {},
	"seção": {}, "secção": {}, "título": {}, "titulo": {}, "episódio": {},
}

// RuleSegmenter splits on terminal punctuation followed by whitespace and on
// blank lines, skipping common Portuguese abbreviations and single initials.
type RuleSegmenter struct {
	MaxInputLength int
}

// NewRuleSegmenter returns a segmenter with the default input ceiling.
func NewRuleSegmenter() *RuleSegmenter {
	return &RuleSegmenter{MaxInputLength: DefaultMaxInputLength}
}

// Segment returns the sentences of text. Inputs longer than MaxInputLength
// runes are cut at line breaks and segmented window by window.
func (s *RuleSegmenter) Segment(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	limit := s.MaxInputLength
	if limit <= 0 || len(runes) <= limit {
		return segmentRunes(runes)
	}
	var out []string
	for len(runes) > 0 {
		cut := len(runes)
		if cut > limit {
			cut = limit
			for i := limit - 1; i > 0; i-- {
				if runes[i] == '\n' {
					cut = i + 1
					break
				}
			}
		}
		out = append(out, segmentRunes(runes[:cut])...)
		runes = runes[cut:]
	}
	return out
}

func segmentRunes(runes []rune) []string {
	var out []string
	n := len(runes)
	start := 0
	emit := func(end int) {
		if sentence := strings.Join(strings.Fields(string(runes[start:end])), " "); sentence != "" {
			out = append(out, sentence)
		}
		start = end
	}
	for i := 0; i < n; i++ {
		r := runes[i]
		switch {
		case r == '\n':
			j := i + 1
			for j < n && isHorizontalSpace(runes[j]) {
				j++
			}
			if j < n && runes[j] == '\n' {
				emit(i)
				start = j + 1
				i = j
			}
		case isTerminal(r):
			j := i + 1
			for j < n && isTerminal(runes[j]) {
				j++
			}
			for j < n && isCloser(runes[j]) {
				j++
			}
			if j < n && !unicode.IsSpace(runes[j]) {
				i = j - 1
				continue
			}
			if r == '.' && j == i+1 && endsWithAbbreviation(runes[start:i]) {
				continue
			}
			emit(j)
			i = j - 1
		}
	}
	emit(n)
	return out
}

func endsWithAbbreviation(prefix []rune) bool {
	k := len(prefix)
	for k > 0 && (unicode.IsLetter(prefix[k-1]) || prefix[k-1] == 'º') {
		k--
	}
	word := prefix[k:]
	if len(word) == 0 {
		return false
	}
	if len(word) == 1 && unicode.IsUpper(word[0]) {
		return !(isRomanNumeral(word[0]) && followsHeading(prefix[:k]))
	}
	_, ok := abbreviations[strings.ToLower(string(word))]
	return ok
}

// followsHeading reports whether prefix ends with a heading word such as
// "Capítulo" or "Cap.".
func followsHeading(prefix []rune) bool {
	k := len(prefix)
	for k > 0 && isHorizontalSpace(prefix[k-1]) {
		k--
	}
	if k == len(prefix) {
		return false
	}
	if k > 0 && prefix[k-1] == '.' {
		k--
	}
	end := k
	for k > 0 && unicode.IsLetter(prefix[k-1]) {
		k--
	}
	_, ok := headings[strings.ToLower(string(prefix[k:end]))]
	return ok
}

func isRomanNumeral(r rune) bool {
	switch r {
	case 'I', 'V', 'X', 'L', 'C', 'D', 'M':
		return true
	}
	return false
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	}
	return false
}

func isHorizontalSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\u00a0'
}
