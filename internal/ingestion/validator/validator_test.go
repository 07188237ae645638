package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dom Casmurro", "dom_casmurro"},
		{"  Memórias Póstumas de Brás Cubas ", "mem_rias_p_stumas_de_br_s_cubas"},
		{"O Alienista (1882)", "o_alienista__1882_"},
		{"A-B.c", "a-b.c"},
		{"...", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeName(tt.in))
		})
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("livro.pdf"))
	assert.True(t, IsPDF("LIVRO.PDF"))
	assert.False(t, IsPDF("livro.txt"))
	assert.False(t, IsPDF("pdf"))
}

func TestValidateUpload(t *testing.T) {
	year := 1881
	require.NoError(t, ValidateUpload(&ingestion.UploadRequest{Title: "Dom Casmurro", Author: "Machado de Assis", Year: &year}))

	bad := 99
	err := ValidateUpload(&ingestion.UploadRequest{Title: " ", Year: &bad})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "author")
	assert.Contains(t, verr.Fields, "year")
	assert.Equal(t, "author:author is required; title:title is required; year:year must be between 1000 and 2100", verr.Error())
}
