package text

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"control characters", "\x00ab\x07c\x7f", "abc"},
		{"leading whitespace and form feed", "  \f\n texto", "texto"},
		{"double space", "a  b", "a \nb"},
		{"blank lines", "linha\n\n\nnova", "linha \nnova"},
		{"single newline kept", "a\nb", "a\nb"},
		{"non-breaking spaces", "a\u00a0\u00a0b", "a \nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestDecode(t *testing.T) {
	s, fallback := Decode([]byte("coração"))
	assert.Equal(t, "coração", s)
	assert.False(t, fallback)

	latin1 := []byte{'c', 'o', 'r', 'a', 0xe7, 0xe3, 'o'}
	s, fallback = Decode(latin1)
	assert.Equal(t, "coração", s)
	assert.True(t, fallback)

	s, _ = Decode([]byte("\xef\xbb\xbfIracema"))
	assert.Equal(t, "Iracema", s)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livro.txt")
	require.NoError(t, os.WriteFile(path, []byte{'p', 0xe1, 'g', 'i', 'n', 'a'}, 0o644))

	s, fallback, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "página", s)
	assert.True(t, fallback)

	_, _, err = ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestRuleSegmenter(t *testing.T) {
	seg := NewRuleSegmenter()
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "   ", nil},
		{"terminal punctuation", "Era uma vez. Ele saiu! Voltou? Sim.",
			[]string{"Era uma vez.", "Ele saiu!", "Voltou?", "Sim."}},
		{"abbreviation", "O Sr. Almeida chegou. Depois saiu.",
			[]string{"O Sr. Almeida chegou.", "Depois saiu."}},
		{"initials", "J. M. Machado escreveu. Fim.",
			[]string{"J. M. Machado escreveu.", "Fim."}},
		{"chapter numeral", "Capítulo I. Era uma vez.",
			[]string{"Capítulo I.", "Era uma vez."}},
		{"abbreviated heading", "Cap. V. O fim chegou.",
			[]string{"Cap. V.", "O fim chegou."}},
		{"numeral as initial", "Conheci D. Maria e C. Lopes. Fim.",
			[]string{"Conheci D. Maria e C. Lopes.", "Fim."}},
		{"closing quote", "Ela disse: \"Vá embora.\" Ele foi.",
			[]string{"Ela disse: \"Vá embora.\"", "Ele foi."}},
		{"decimal number", "Pi vale 3.14 aproximadamente. Sim",
			[]string{"Pi vale 3.14 aproximadamente.", "Sim"}},
		{"ellipsis", "Pensou... e calou-se. Fim",
			[]string{"Pensou...", "e calou-se.", "Fim"}},
		{"blank line", "Primeira linha\n\nSegunda linha",
			[]string{"Primeira linha", "Segunda linha"}},
		{"wrapped line", "uma frase\nque continua. Outra.",
			[]string{"uma frase que continua.", "Outra."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seg.Segment(tt.in))
		})
	}
}

func TestRuleSegmenterWindows(t *testing.T) {
	seg := &RuleSegmenter{MaxInputLength: 20}
	got := seg.Segment("Primeira frase.\nSegunda frase.\nTerceira.")
	assert.Equal(t, []string{"Primeira frase.", "Segunda frase.", "Terceira."}, got)
}

func TestSanitizeThenSegment(t *testing.T) {
	raw := "\f  Capítulo I  \n\nA casa era velha. O vento soprava."
	got := NewRuleSegmenter().Segment(Sanitize(raw))
	assert.Equal(t, []string{"Capítulo I A casa era velha.", "O vento soprava."}, got)
}
