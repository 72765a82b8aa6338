// Package reranker reorders ANN candidates with a more expensive relevance
// model, behind a circuit breaker that fails open under latency pressure.
package reranker

import "context"

// Document is one decrypted candidate entering the pipeline.
type Document struct {
	ID       string
	Text     string
	Distance float64 // ANN cosine distance, ascending = more similar
}

// Ranked is a document with its final position decided.
type Ranked struct {
	Document
	Score    float64 // relevance score, descending order
	Reranked bool    // false when the breaker fell back to ANN order
}

// Reranker scores (query, document) pairs and sorts descending.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]Ranked, error)
	Close() error
}

// Noop serves ANN order unconditionally, for deployments that disable
// reranking outright.
type Noop struct{}

// Rerank returns the documents in ANN order.
func (Noop) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]Ranked, error) {
	return ANNOrder(docs, topK), nil
}

// Close implements Reranker.
func (Noop) Close() error { return nil }

// ANNOrder returns documents in their original ANN order, scored by cosine
// similarity, marked as not reranked. This is the fail-open path and the
// empty-query fallback.
func ANNOrder(docs []Document, topK int) []Ranked {
	if topK <= 0 || topK > len(docs) {
		topK = len(docs)
	}
	out := make([]Ranked, topK)
	for i := 0; i < topK; i++ {
		out[i] = Ranked{Document: docs[i], Score: 1 - docs[i].Distance, Reranked: false}
	}
	return out
}
