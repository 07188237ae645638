package filter

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/chunker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBoundaries(t *testing.T) {
	f := Filter{MinLength: 10, MaxLength: 20, Denylist: DefaultDenylist}
	tests := []struct {
		name string
		text string
		want Decision
	}{
		{"one below min", strings.Repeat("a", 9), RejectTooShort},
		{"exactly min", strings.Repeat("a", 10), Accept},
		{"exactly max", strings.Repeat("a", 20), Accept},
		{"one above max", strings.Repeat("a", 21), RejectOversized},
		{"runes not bytes", strings.Repeat("ç", 10), Accept},
		{"junk", "veja www.dominio", RejectJunk},
		{"junk case-insensitive", "Digitalizado POR: x", RejectJunk},
		{"oversized wins over junk", "http:" + strings.Repeat("a", 30), RejectOversized},
		{"short wins over junk", "isbn:", RejectTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Check(tt.text))
		})
	}
}

func TestApplyKeepsOrderAndCounts(t *testing.T) {
	chunks := []chunker.Chunk{
		{WorkID: 1, Text: "A manhã estava clara.", Position: 0},
		{WorkID: 1, Text: "Curta.", Position: 1},
		{WorkID: 1, Text: "Disponível em www.bibvirt.net", Position: 2},
		{WorkID: 1, Text: "O rio seguia lento.", Position: 3},
		{WorkID: 1, Text: strings.Repeat("x", 10001), Position: 4},
	}
	kept, stats := Granular.Apply(chunks)
	require.Len(t, kept, 2)
	assert.Equal(t, 0, kept[0].Position)
	assert.Equal(t, 3, kept[1].Position)
	assert.Equal(t, Stats{Accepted: 2, Oversized: 1, TooShort: 1, Junk: 1}, stats)
	assert.Equal(t, len(chunks), stats.Total())
}

func TestStatsAdd(t *testing.T) {
	s := Stats{Accepted: 1, Junk: 2}
	s.Add(Stats{Accepted: 3, TooShort: 1})
	assert.Equal(t, Stats{Accepted: 4, TooShort: 1, Junk: 2}, s)
}
