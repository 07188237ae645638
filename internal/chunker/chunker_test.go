package chunker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentences(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("s%d.", i)
	}
	return out
}

func TestChunkCount(t *testing.T) {
	tests := []struct {
		n, size, stride int
		want            int
	}{
		{7, 3, 1, 5},
		{7, 1, 1, 7},
		{7, 5, 3, 1},
		{8, 5, 3, 2},
		{11, 5, 3, 3},
		{4, 5, 3, 0},
		{0, 1, 1, 0},
		{5, 5, 5, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("N=%d,S=%d,T=%d", tt.n, tt.size, tt.stride), func(t *testing.T) {
			p := Policy{Size: tt.size, Stride: tt.stride}
			chunks := Split(9, sentences(tt.n), p)
			assert.Len(t, chunks, tt.want)
			assert.Equal(t, tt.want, p.Count(tt.n))
		})
	}
}

func TestChunkWindows(t *testing.T) {
	chunks := Split(42, sentences(11), Context)
	require.Len(t, chunks, 3)
	assert.Equal(t, "s0. s1. s2. s3. s4.", chunks[0].Text)
	assert.Equal(t, "s3. s4. s5. s6. s7.", chunks[1].Text)
	assert.Equal(t, "s6. s7. s8. s9. s10.", chunks[2].Text)
	for i, c := range chunks {
		assert.Equal(t, int64(42), c.WorkID)
		assert.Equal(t, i, c.Position)
	}
}

func TestChunkGranularKeepsSentences(t *testing.T) {
	in := []string{"Uma.", "Duas.", "Três."}
	chunks := Split(1, in, Granular)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, in[i], c.Text)
	}
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, Granular.Validate())
	assert.NoError(t, Context.Validate())
	assert.Error(t, Policy{Size: 0, Stride: 1}.Validate())
	assert.Error(t, Policy{Size: 3, Stride: 0}.Validate())
	assert.Error(t, Policy{Size: 3, Stride: 4}.Validate())
}
