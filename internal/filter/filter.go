// Package filter rejects chunks that are too long, too short or carry
// scanner and publisher boilerplate.
package filter

import (
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/chunker"
)

// Decision is the outcome of checking a single chunk.
type Decision int

const (
	Accept Decision = iota
	RejectOversized
	RejectTooShort
	RejectJunk
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accepted"
	case RejectOversized:
		return "oversized"
	case RejectTooShort:
		return "too_short"
	case RejectJunk:
		return "junk"
	default:
		return "unknown"
	}
}

// DefaultDenylist is the boilerplate found in digitised public-domain
// editions: links, scanner credits and catalogue data.
var DefaultDenylist = []string{
	"(cid:", "www.", "http:", "https:", ".br", ".com", ".org", ".pdf",
	"bibvirt", "ciberfil", "hpg.ig.com.br", "nead", "unama",
	"adobe acrobat", "e-mail:", "email:", "digitalizado por:",
	"isbn:", "cep:", "alcindo cacela", "série bom livro", "usp.br",
	"ministério da cultura", "biblioteca nacional", "departamento nacional do livro",
}

// Presets matching the two index flavors.
var (
	Granular = Filter{MinLength: 10, MaxLength: 10000, Denylist: DefaultDenylist}
	Context  = Filter{MinLength: 100, MaxLength: 10000, Denylist: DefaultDenylist}
)

// Stats counts decisions over one run. Accepted plus the rejections equals
// the number of chunks checked.
type Stats struct {
	Accepted  int `json:"accepted"`
	Oversized int `json:"oversized"`
	TooShort  int `json:"too_short"`
	Junk      int `json:"junk"`
}

// Add folds other into s.
func (s *Stats) Add(other Stats) {
	s.Accepted += other.Accepted
	s.Oversized += other.Oversized
	s.TooShort += other.TooShort
	s.Junk += other.Junk
}

// Total is the number of chunks seen.
func (s Stats) Total() int {
	return s.Accepted + s.Oversized + s.TooShort + s.Junk
}

// Filter holds length bounds in characters and a case-insensitive substring
// denylist. A zero MaxLength disables the upper bound.
type Filter struct {
	MinLength int
	MaxLength int
	Denylist  []string
}

// Check applies the rules in priority order: oversized, too short, junk.
func (f Filter) Check(text string) Decision {
	n := utf8.RuneCountInString(text)
	if f.MaxLength > 0 && n > f.MaxLength {
		return RejectOversized
	}
	if n < f.MinLength {
		return RejectTooShort
	}
	lower := strings.ToLower(text)
	for _, kw := range f.Denylist {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return RejectJunk
		}
	}
	return Accept
}

// Apply keeps accepted chunks in their original order.
func (f Filter) Apply(chunks []chunker.Chunk) ([]chunker.Chunk, Stats) {
	var stats Stats
	kept := make([]chunker.Chunk, 0, len(chunks))
	for _, c := range chunks {
		switch f.Check(c.Text) {
		case Accept:
			stats.Accepted++
			kept = append(kept, c)
		case RejectOversized:
			stats.Oversized++
		case RejectTooShort:
			stats.TooShort++
		case RejectJunk:
			stats.Junk++
		}
	}
	return kept, stats
}
