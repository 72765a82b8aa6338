package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/memstore"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleIndex(c echo.Context) error {
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.svc.Index(c.Request().Context(), identity(c), memory.IndexRequest{
		DocID:      req.DocID,
		Source:     req.Source,
		ChunkIndex: req.ChunkIndex,
		Text:       req.Text,
		Metadata:   req.Metadata,
		Embedding:  req.Embedding,
		Tags:       req.Tags,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusCreated, IndexResponse{
		ChunkID:   res.ChunkID,
		CreatedAt: res.CreatedAt,
		Status:    res.Status,
	})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.svc.Query(c.Request().Context(), identity(c), memory.QueryRequest{
		Text: req.Text,
		K:    req.K,
		Filters: memstore.Filters{
			Tags:          req.Filters.Tags,
			Source:        req.Filters.Source,
			CreatedAfter:  req.Filters.CreatedAfter,
			CreatedBefore: req.Filters.CreatedBefore,
		},
	})
	if err != nil {
		return s.mapError(c, err)
	}

	hits := make([]QueryHit, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = QueryHit{
			ChunkID:  h.ChunkID,
			DocID:    h.DocID,
			Text:     h.Text,
			Metadata: h.Metadata,
			Score:    h.Score,
			Rank:     h.Rank,
			Reranked: h.Reranked,
		}
	}
	return c.JSON(http.StatusOK, QueryResponse{
		Results: hits,
		Latency: LatencyBreakdown{
			EmbedMS:   ms(res.Latency.Embed),
			SearchMS:  ms(res.Latency.Search),
			DecryptMS: ms(res.Latency.Decrypt),
			RerankMS:  ms(res.Latency.Rerank),
			TotalMS:   ms(res.Latency.Total),
		},
	})
}

func (s *Server) handleSummarize(c echo.Context) error {
	var req SummarizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.svc.Summarize(c.Request().Context(), identity(c), memory.SummarizeRequest{
		ChunkIDs:  req.ChunkIDs,
		Style:     req.Style,
		MaxLength: req.MaxLength,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, SummarizeResponse{
		Summary:   res.Summary,
		KeyPoints: res.KeyPoints,
		Entities:  toEntityDTOs(res.Entities),
	})
}

func (s *Server) handleEntities(c echo.Context) error {
	var req EntitiesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.svc.ExtractEntities(c.Request().Context(), identity(c), memory.EntitiesRequest{
		ChunkIDs:     req.ChunkIDs,
		Types:        req.Types,
		MinFrequency: req.MinFrequency,
	})
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, EntitiesResponse{Entities: toEntityDTOs(res.Entities)})
}

func (s *Server) handleDelete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid chunk id")
	}
	if err := s.svc.Delete(c.Request().Context(), identity(c), id); err != nil {
		return s.mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func toEntityDTOs(entities []memory.Entity) []EntityDTO {
	out := make([]EntityDTO, len(entities))
	for i, e := range entities {
		out[i] = EntityDTO{Text: e.Text, Type: e.Type, Frequency: e.Frequency, Contexts: e.Contexts}
	}
	return out
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
