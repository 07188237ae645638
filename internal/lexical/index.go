package lexical

// Posting records how often a term occurs in one document.
type Posting struct {
	Doc       int
	Frequency int
}

// PostingList is ordered by document index.
type PostingList []Posting

// Index is a BM25 index over a fixed list of documents addressed by their
// position in that list. It is never mutated after Build, so concurrent
// readers need no locking.
type Index struct {
	postings  map[string]PostingList
	docLens   []int
	avgDocLen float64
}

// Build tokenizes every text and indexes it under its slice position.
func Build(texts []string) *Index {
	ix := &Index{
		postings: make(map[string]PostingList),
		docLens:  make([]int, len(texts)),
	}
	var total int
	for doc, text := range texts {
		tokens := Tokenize(text)
		ix.docLens[doc] = len(tokens)
		total += len(tokens)

		freq := make(map[string]int, len(tokens))
		order := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			if freq[tok] == 0 {
				order = append(order, tok)
			}
			freq[tok]++
		}
		for _, term := range order {
			ix.postings[term] = append(ix.postings[term], Posting{Doc: doc, Frequency: freq[term]})
		}
	}
	if len(texts) > 0 {
		ix.avgDocLen = float64(total) / float64(len(texts))
	}
	return ix
}

// Search returns the postings for term.
func (ix *Index) Search(term string) PostingList {
	return ix.postings[term]
}

// Len is the number of indexed documents.
func (ix *Index) Len() int {
	return len(ix.docLens)
}

// Terms is the vocabulary size.
func (ix *Index) Terms() int {
	return len(ix.postings)
}

// AvgDocLength is the mean token count per document.
func (ix *Index) AvgDocLength() float64 {
	return ix.avgDocLen
}
