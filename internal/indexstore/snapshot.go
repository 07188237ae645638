package indexstore

import "math"

// Meta is the text and owning work of one indexed row.
type Meta struct {
	WorkID int64  `json:"work_id"`
	Text   string `json:"text"`
}

// Record is one row to write: a chunk and its embedding.
type Record struct {
	WorkID int64
	Text   string
	Vector []float32
}

// Snapshot is an immutable in-memory view of a whole index. Row i is
// Vectors[i*Dim:(i+1)*Dim] paired with Chunks[i].
type Snapshot struct {
	Flavor     string
	Dim        int
	Generation uint64
	Vectors    []float32
	Norms      []float64
	Chunks     []Meta
}

// NewSnapshot builds a snapshot over row-major vectors and computes the row
// norms.
func NewSnapshot(flavor string, dim int, gen uint64, vectors []float32, metas []Meta) *Snapshot {
	s := &Snapshot{
		Flavor:     flavor,
		Dim:        dim,
		Generation: gen,
		Vectors:    vectors,
		Chunks:     metas,
		Norms:      make([]float64, len(metas)),
	}
	for i := range metas {
		var sum float64
		for _, x := range s.Vector(i) {
			sum += float64(x) * float64(x)
		}
		s.Norms[i] = math.Sqrt(sum)
	}
	return s
}

// Len is the number of rows.
func (s *Snapshot) Len() int {
	return len(s.Chunks)
}

// Vector returns row i's embedding without copying.
func (s *Snapshot) Vector(i int) []float32 {
	return s.Vectors[i*s.Dim : (i+1)*s.Dim]
}

// Texts returns every row's text in row order.
func (s *Snapshot) Texts() []string {
	out := make([]string, len(s.Chunks))
	for i, c := range s.Chunks {
		out[i] = c.Text
	}
	return out
}

// Records copies the snapshot back into writable records.
func (s *Snapshot) Records() []Record {
	out := make([]Record, len(s.Chunks))
	for i, c := range s.Chunks {
		vec := make([]float32, s.Dim)
		copy(vec, s.Vector(i))
		out[i] = Record{WorkID: c.WorkID, Text: c.Text, Vector: vec}
	}
	return out
}
