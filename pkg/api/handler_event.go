package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agentarium/worldengine/pkg/world"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 100
)

// sessionEventsHandler handles GET /api/isolation/events/:sessionId. An
// optional type query narrows the read to one event type.
func (s *Server) sessionEventsHandler(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if _, err := s.mgr.Get(sessionID); err != nil {
		s.mapServiceError(c, err)
		return
	}

	ctx := c.Request.Context()
	limit := clampLimit(c.Query("limit"))

	var events []world.Event
	var err error
	if evType := c.Query("type"); evType != "" {
		events, err = s.store.GetByType(ctx, sessionID, evType)
		if err == nil && len(events) > limit {
			events = events[len(events)-limit:]
		}
	} else {
		events, err = s.store.GetRecent(ctx, sessionID, limit)
	}
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	respondOK(c, events)
}

// eventsAfterHandler handles GET
// /api/isolation/events/:sessionId/after/:sequence for incremental reads.
func (s *Server) eventsAfterHandler(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if _, err := s.mgr.Get(sessionID); err != nil {
		s.mapServiceError(c, err)
		return
	}

	seq, err := strconv.ParseInt(c.Param("sequence"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid sequence: must be an integer")
		return
	}

	events, err := s.store.GetAfterSequence(c.Request.Context(), sessionID, seq, clampLimit(c.Query("limit")))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	respondOK(c, events)
}

// agentViewHandler handles GET
// /api/isolation/events/:sessionId/agent-view. With an agentId query it
// returns the events that agent may observe; without one, only public
// events.
func (s *Server) agentViewHandler(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if _, err := s.mgr.Get(sessionID); err != nil {
		s.mapServiceError(c, err)
		return
	}

	events, err := s.store.GetAgentVisible(c.Request.Context(), sessionID,
		c.Query("agentId"), clampLimit(c.Query("limit")))
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	respondOK(c, events)
}

// clampLimit parses a limit query value and bounds it to [1,100]; absent
// or unparsable values select the default page size.
func clampLimit(raw string) int {
	if raw == "" {
		return defaultEventLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultEventLimit
	}
	switch {
	case n < 1:
		return 1
	case n > maxEventLimit:
		return maxEventLimit
	default:
		return n
	}
}
