package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentarium/worldengine/pkg/session"
)

// mapServiceError writes the error response for a session-layer failure.
// Validation problems and impossible lifecycle transitions are client
// errors; unknown sessions are 404. Anything else is logged and hidden
// behind a generic 500.
func (s *Server) mapServiceError(c *gin.Context, err error) {
	switch {
	case session.IsValidationError(err), errors.Is(err, session.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrInvalidTransition):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		respondError(c, http.StatusNotFound, "session not found")
	default:
		s.logger.Error("Unexpected service error", "error", err)
		respondError(c, http.StatusInternalServerError, "internal server error")
	}
}
