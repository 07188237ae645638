package pipeline

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/chunker"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/filter"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
)

var tenSentences = []string{
	"Capitu tinha olhos de cigana oblíqua e dissimulada.",
	"Bentinho passava as tardes no quintal da casa.",
	"José Dias falava sempre em superlativos.",
	"A mãe prometera o filho ao seminário.",
	"Edição digitalizada, veja www.dominiopublico.gov.br para mais.",
	"O coqueiro velho ainda estava lá.",
	"Escobar era amigo do seminário.",
	"O mar de Glória engoliu o amigo.",
	"Ezequiel cresceu parecido com alguém.",
	"E o narrador atou as duas pontas da vida.",
}

func writeWork(t *testing.T, content []byte) (*Processor, *catalog.Work) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "corpus"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corpus", "dom_casmurro.txt"), content, 0o644))
	return NewProcessor(dir, nil), &catalog.Work{ID: 42, TextPath: "corpus/dom_casmurro.txt"}
}

func TestProcessGranularDropsJunk(t *testing.T) {
	p, w := writeWork(t, []byte(strings.Join(tenSentences, " ")))

	res, err := p.Process(w, Granular)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Sentences)
	assert.Len(t, res.Chunks, 9)
	assert.Equal(t, filter.Stats{Accepted: 9, Junk: 1}, res.Stats)
	assert.False(t, res.FallbackDecoded)
	for _, c := range res.Chunks {
		assert.Equal(t, int64(42), c.WorkID)
		assert.NotContains(t, c.Text, "www.")
	}
}

func TestProcessContextWindows(t *testing.T) {
	p, w := writeWork(t, []byte(strings.Join(tenSentences, " ")))

	res, err := p.Process(w, Policy{
		Chunk:  chunker.Context,
		Filter: filter.Filter{MinLength: 100, MaxLength: 10000},
	})
	require.NoError(t, err)
	// offsets 0 and 3; offset 6 would need sentences up to index 10
	require.Len(t, res.Chunks, 2)
	assert.True(t, strings.HasPrefix(res.Chunks[1].Text, "A mãe prometera"))
}

func TestProcessTooShort(t *testing.T) {
	p, w := writeWork(t, []byte("Uma frase só. E outra."))
	res, err := p.Process(w, Context)
	require.NoError(t, err)
	assert.True(t, res.TooShort)
	assert.Empty(t, res.Chunks)
	assert.Equal(t, 2, res.Sentences)
}

func TestProcessLogsTooShort(t *testing.T) {
	p, w := writeWork(t, []byte("Uma frase só. E outra."))
	var buf bytes.Buffer
	p.logger = slog.New(slog.NewTextHandler(&buf, nil))

	_, err := p.Process(w, Granular)
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = p.Process(w, Context)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "work too short for one window")
	assert.Contains(t, out, "work_id=42")
	assert.Contains(t, out, "sentences=2")
	assert.Contains(t, out, "window=5")
}

func TestProcessLatinFallback(t *testing.T) {
	p, w := writeWork(t, []byte{'A', ' ', 'n', 'a', 0xe7, 0xe3, 'o', ' ', 'i', 'n', 't', 'e', 'i', 'r', 'a', '.'})
	res, err := p.Process(w, Granular)
	require.NoError(t, err)
	assert.True(t, res.FallbackDecoded)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "A nação inteira.", res.Chunks[0].Text)
}

func TestProcessMissingFile(t *testing.T) {
	p := NewProcessor(t.TempDir(), nil)
	_, err := p.Process(&catalog.Work{ID: 1, TextPath: "corpus/nada.txt"}, Granular)
	assert.Error(t, err)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig("context", config.ChunkingConfig{Size: 5, Stride: 3, MinLength: 100, MaxLength: 10000}, nil)
	assert.Equal(t, chunker.Context, p.Chunk)
	assert.Equal(t, filter.DefaultDenylist, p.Filter.Denylist)
	assert.Equal(t, 100, p.Filter.MinLength)

	_, err := Apply(1, tenSentences, Policy{Chunk: chunker.Policy{Size: 2, Stride: 3}})
	assert.Error(t, err)
}
