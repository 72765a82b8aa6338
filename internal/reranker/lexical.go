package reranker

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Lexical scores candidates by blending vector similarity with query-term
// overlap. It is the default pairwise model: cheap, deterministic, and good
// enough to promote exact-phrase matches above loosely related neighbors.
type Lexical struct {
	// SimilarityWeight balances the ANN score against term overlap.
	// Defaults to an even split.
	SimilarityWeight float64
}

// NewLexical creates a Lexical reranker with the default weighting.
func NewLexical() *Lexical {
	return &Lexical{SimilarityWeight: 0.5}
}

// Rerank scores every (query, document) pair and sorts descending. The
// context is checked between documents so a breaker timeout aborts promptly
// instead of finishing a doomed batch.
func (l *Lexical) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]Ranked, error) {
	if len(docs) == 0 {
		return []Ranked{}, nil
	}
	queryTerms := terms(query)
	if len(queryTerms) == 0 {
		return ANNOrder(docs, topK), nil
	}

	ranked := make([]Ranked, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		similarity := 1 - doc.Distance
		ranked[i] = Ranked{
			Document: doc,
			Score:    l.SimilarityWeight*similarity + (1-l.SimilarityWeight)*overlap(queryTerms, terms(doc.Text)),
			Reranked: true,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// Close implements Reranker. Lexical holds no resources.
func (l *Lexical) Close() error { return nil }

// terms lowercases and tokenizes text, dropping stopwords and fragments
// shorter than three runes.
func terms(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// overlap is the fraction of query terms present in the document.
func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for term := range query {
		if _, ok := doc[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"from": true, "was": true, "are": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "you": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
}
