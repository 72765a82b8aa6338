package reranker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
)

// Breaker wraps a Reranker with a fail-open circuit breaker. Relevance is a
// soft optimization and latency is a hard constraint: when the inner model
// exceeds the trip threshold or returns any error, the breaker discards its
// work entirely and returns the candidates in ANN order instead. A broken
// reranker can degrade result quality but can never fail a query.
type Breaker struct {
	inner  Reranker
	target time.Duration
	trip   time.Duration
	logger *logging.Logger
}

// NewBreaker wraps inner. target is the latency goal used for observation;
// trip is the hard cutoff at which the inner call is abandoned. When trip
// is not set it defaults to 1.6x target.
func NewBreaker(inner Reranker, target, trip time.Duration, logger *logging.Logger) *Breaker {
	if trip <= 0 {
		trip = time.Duration(float64(target) * 1.6)
	}
	return &Breaker{
		inner:  inner,
		target: target,
		trip:   trip,
		logger: logger.Named("reranker"),
	}
}

type rerankResult struct {
	ranked []Ranked
	err    error
}

// Rerank runs the inner model under the trip deadline. Timed-out or failed
// calls are discarded whole; their partial output is never merged into the
// ANN fallback.
func (b *Breaker) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]Ranked, error) {
	if len(docs) == 0 {
		return []Ranked{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	innerCtx, cancel := context.WithTimeout(ctx, b.trip)
	defer cancel()

	start := time.Now()
	// Buffered so a result arriving after the trip does not leak the
	// goroutine.
	ch := make(chan rerankResult, 1)
	go func() {
		ranked, err := b.inner.Rerank(innerCtx, query, docs, topK)
		ch <- rerankResult{ranked: ranked, err: err}
	}()

	select {
	case res := <-ch:
		elapsed := time.Since(start)
		rerankDuration.Observe(elapsed.Seconds())
		if res.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.skip(ctx, "error", elapsed, zap.Error(res.err))
			return ANNOrder(docs, topK), nil
		}
		if elapsed > b.target {
			b.logger.Warn(ctx, "reranking exceeded latency target",
				zap.Duration("elapsed", elapsed),
				zap.Duration("target", b.target))
		}
		return res.ranked, nil
	case <-innerCtx.Done():
		elapsed := time.Since(start)
		rerankDuration.Observe(elapsed.Seconds())
		if ctx.Err() != nil {
			// The request itself was cancelled; propagate rather than
			// fabricating a degraded result nobody will read.
			return nil, ctx.Err()
		}
		b.skip(ctx, "timeout", elapsed)
		return ANNOrder(docs, topK), nil
	}
}

func (b *Breaker) skip(ctx context.Context, reason string, elapsed time.Duration, fields ...zap.Field) {
	rerankSkippedTotal.WithLabelValues(reason).Inc()
	fields = append(fields,
		zap.String("reason", reason),
		zap.Duration("elapsed", elapsed),
		zap.Duration("trip_threshold", b.trip))
	b.logger.Warn(ctx, "reranking skipped, serving ANN order", fields...)
}

// Close closes the wrapped reranker.
func (b *Breaker) Close() error { return b.inner.Close() }
