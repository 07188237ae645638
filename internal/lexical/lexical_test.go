package lexical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("Olá, Mundo! «Capitu» --- guarda-chuva café.")
	assert.Equal(t, []string{"olá", "mundo", "capitu", "guarda-chuva", "café"}, got)
	assert.Empty(t, Tokenize("  ... !! "))
}

func TestBuild(t *testing.T) {
	ix := Build([]string{"o mar azul", "o mar o mar", "a terra"})
	assert.Equal(t, 3, ix.Len())
	assert.InDelta(t, 3.0, ix.AvgDocLength(), 1e-9)
	assert.Equal(t, PostingList{{Doc: 0, Frequency: 1}, {Doc: 1, Frequency: 2}}, ix.Search("mar"))
	assert.Nil(t, ix.Search("céu"))
}

func TestScores(t *testing.T) {
	ix := Build([]string{"o mar azul", "o mar o mar", "a terra"})
	scores := ix.Scores([]string{"mar"})
	require.Len(t, scores, 3)

	idf := math.Log(1.0/2.5 + 1)
	assert.InDelta(t, idf, scores[0], 1e-9)
	assert.InDelta(t, idf*4.4/3.5, scores[1], 1e-9)
	assert.Equal(t, 0.0, scores[2])

	twice := ix.Scores([]string{"mar", "mar"})
	assert.InDelta(t, 2*scores[0], twice[0], 1e-9)

	assert.Equal(t, []float64{0, 0, 0}, ix.Scores([]string{"ausente"}))
}

func TestTopK(t *testing.T) {
	ix := Build([]string{"o mar azul", "o mar o mar", "a terra"})
	top := ix.TopK("Mar!", 5)
	require.Len(t, top, 2)
	assert.Equal(t, 1, top[0].Doc)
	assert.Equal(t, 0, top[1].Doc)
	assert.Equal(t, math.Round(top[1].Score*10000)/10000, top[1].Score)

	ties := Build([]string{"sol", "sol", "lua"}).TopK("sol", 1)
	require.Len(t, ties, 1)
	assert.Equal(t, 0, ties[0].Doc)
}

func TestEmptyIndex(t *testing.T) {
	ix := Build(nil)
	assert.Equal(t, 0, ix.Len())
	assert.Empty(t, ix.Scores([]string{"x"}))
	assert.Empty(t, ix.TopK("x", 3))
}
