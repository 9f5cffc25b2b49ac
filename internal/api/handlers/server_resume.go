package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResumeSubmission handles GET /submissions/resume/:token.
// A stale token is indistinguishable from a missing submission: both 404.
func (s *Server) ResumeSubmission(c *gin.Context) {
	view, err := s.manager.GetByResumeToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type resumedRequest struct {
	Actor *actorPayload `json:"actor"`
}

// MarkResumed handles POST /submissions/resume/:token/resumed.
// Called by the form client once a handed-off session is actually opened.
func (s *Server) MarkResumed(c *gin.Context) {
	var req resumedRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := s.manager.EmitHandoffResumed(c.Request.Context(), c.Param("token"), actor); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type handoffRequest struct {
	Actor *actorPayload `json:"actor"`
}

// GenerateHandoff handles POST /submissions/:submissionId/handoff.
// Rotates the resume token and returns a URL embedding the fresh one.
func (s *Server) GenerateHandoff(c *gin.Context) {
	var req handoffRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := s.manager.GenerateHandoffURL(c.Request.Context(),
		c.Param("submissionId"), tenantOf(c), actor)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type cancelRequest struct {
	ResumeToken string        `json:"resumeToken"`
	Actor       *actorPayload `json:"actor"`
	Reason      string        `json:"reason"`
}

// CancelSubmission handles POST /submissions/:submissionId/cancel.
func (s *Server) CancelSubmission(c *gin.Context) {
	var req cancelRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	p, err := s.mutateParams(c, req.ResumeToken, req.Actor)
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := s.manager.Cancel(c.Request.Context(), p, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
