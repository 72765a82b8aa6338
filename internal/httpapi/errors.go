package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/crypto"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/memstore"
)

// mapError translates the error taxonomy into HTTP responses. Responses
// never carry raw error detail: no storage engine text, no crypto cause,
// and no distinction between "not found" and "not yours".
func (s *Server) mapError(c echo.Context, err error) error {
	var verr *memory.ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())

	case errors.Is(err, memstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")

	case errors.Is(err, memstore.ErrDuplicateChunk):
		return echo.NewHTTPError(http.StatusConflict, "chunk already indexed")

	case errors.Is(err, memstore.ErrPolicyViolation):
		s.logger.Error(c.Request().Context(), "policy violation surfaced to http layer", zap.Error(err))
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")

	case errors.Is(err, crypto.ErrAuthenticationFailure):
		s.logger.Error(c.Request().Context(), "authentication failure surfaced to http layer")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")

	case errors.Is(err, memory.ErrUpstreamUnavailable), errors.Is(err, memstore.ErrUnavailable):
		s.logger.Warn(c.Request().Context(), "upstream unavailable", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")

	default:
		s.logger.Error(c.Request().Context(), "unhandled error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
