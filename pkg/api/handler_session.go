package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentarium/worldengine/pkg/session"
)

// listSessionsHandler handles GET /api/isolation/sessions. An optional
// createdBy query narrows the list to one user's sessions.
func (s *Server) listSessionsHandler(c *gin.Context) {
	if user := c.Query("createdBy"); user != "" {
		respondOK(c, s.mgr.ListByUser(user))
		return
	}
	respondOK(c, s.mgr.List())
}

// createSessionHandler handles POST /api/isolation/sessions.
func (s *Server) createSessionHandler(c *gin.Context) {
	var req session.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, err := s.mgr.Create(c.Request.Context(), req)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	respondCreated(c, sess.Summary())
}

// getSessionHandler handles GET /api/isolation/sessions/:id. The response
// carries the summary fields, the current world state, and up to limit
// recent events.
func (s *Server) getSessionHandler(c *gin.Context) {
	sessionID := c.Param("id")
	sess, err := s.mgr.Get(sessionID)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	ctx := c.Request.Context()
	limit := clampLimit(c.Query("limit"))

	events, err := s.store.GetRecent(ctx, sessionID, limit)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}
	count, err := s.store.Count(ctx, sessionID)
	if err != nil {
		s.mapServiceError(c, err)
		return
	}

	respondOK(c, SessionDetail{
		Summary:    sess.Summary(),
		Agents:     sess.Agents,
		State:      sess.Engine().WorldState(),
		Events:     events,
		EventCount: count,
	})
}

// startSessionHandler handles POST /api/isolation/sessions/:id/start.
func (s *Server) startSessionHandler(c *gin.Context) {
	if err := s.mgr.Start(c.Param("id")); err != nil {
		s.mapServiceError(c, err)
		return
	}
	respondOK(c, nil)
}

// pauseSessionHandler handles POST /api/isolation/sessions/:id/pause.
func (s *Server) pauseSessionHandler(c *gin.Context) {
	if err := s.mgr.Pause(c.Param("id")); err != nil {
		s.mapServiceError(c, err)
		return
	}
	respondOK(c, nil)
}

// resumeSessionHandler handles POST /api/isolation/sessions/:id/resume.
func (s *Server) resumeSessionHandler(c *gin.Context) {
	if err := s.mgr.Resume(c.Param("id")); err != nil {
		s.mapServiceError(c, err)
		return
	}
	respondOK(c, nil)
}

// endSessionHandler handles POST /api/isolation/sessions/:id/end. The body
// is optional; a missing or empty body ends the session with the default
// reason.
func (s *Server) endSessionHandler(c *gin.Context) {
	var req endRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.mgr.End(c.Param("id"), req.Reason); err != nil {
		s.mapServiceError(c, err)
		return
	}
	respondOK(c, nil)
}

// deleteSessionHandler handles DELETE /api/isolation/sessions/:id.
func (s *Server) deleteSessionHandler(c *gin.Context) {
	if err := s.mgr.Delete(c.Param("id")); err != nil {
		s.mapServiceError(c, err)
		return
	}
	respondOK(c, nil)
}
