package lexical

import (
	"math"
	"sort"
)

const (
	k1 = 1.2
	b  = 0.75
)

// ScoredDoc is a document index with its BM25 score.
type ScoredDoc struct {
	Doc   int     `json:"doc"`
	Score float64 `json:"score"`
}

// Scores returns the BM25 score of every document for the query tokens, in
// document order. Repeated query tokens contribute once per occurrence.
func (ix *Index) Scores(queryTokens []string) []float64 {
	scores := make([]float64, len(ix.docLens))
	n := int64(len(ix.docLens))
	for _, term := range queryTokens {
		postings := ix.postings[term]
		if len(postings) == 0 {
			continue
		}
		idf := computeIDF(n, int64(len(postings)))
		for _, p := range postings {
			scores[p.Doc] += idf * computeTFNorm(
				float64(p.Frequency),
				float64(ix.docLens[p.Doc]),
				ix.avgDocLen,
			)
		}
	}
	return scores
}

// TopK tokenizes query and returns the k best matching documents with
// scores rounded to four decimals. Ties go to the lower document index and
// documents scoring zero are omitted.
func (ix *Index) TopK(query string, k int) []ScoredDoc {
	scores := ix.Scores(Tokenize(query))
	result := make([]ScoredDoc, 0, len(scores))
	for doc, score := range scores {
		if score <= 0 {
			continue
		}
		result = append(result, ScoredDoc{
			Doc:   doc,
			Score: math.Round(score*10000) / 10000,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Doc < result[j].Doc
	})
	if k > 0 && len(result) > k {
		result = result[:k]
	}
	return result
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
