package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amitpaz1/formbridge-sub001/internal/approval"
)

type reviewRequest struct {
	ResumeToken string        `json:"resumeToken"`
	Actor       *actorPayload `json:"actor"`
	Comment     string        `json:"comment"`
}

func (s *Server) reviewParams(c *gin.Context) (approval.ActionParams, error) {
	var req reviewRequest
	if err := bindJSON(c, &req); err != nil {
		return approval.ActionParams{}, err
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		return approval.ActionParams{}, err
	}
	return approval.ActionParams{
		SubmissionID: c.Param("submissionId"),
		TenantID:     tenantOf(c),
		ResumeToken:  req.ResumeToken,
		Actor:        actor,
		Comment:      req.Comment,
	}, nil
}

// ApproveSubmission handles POST /submissions/:submissionId/approve.
func (s *Server) ApproveSubmission(c *gin.Context) {
	p, err := s.reviewParams(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	res, err := s.approvals.Approve(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RejectSubmission handles POST /submissions/:submissionId/reject.
func (s *Server) RejectSubmission(c *gin.Context) {
	p, err := s.reviewParams(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	res, err := s.approvals.Reject(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RequestChanges handles POST /submissions/:submissionId/request-changes.
// Reopens the submission for edits instead of deciding it.
func (s *Server) RequestChanges(c *gin.Context) {
	p, err := s.reviewParams(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	res, err := s.approvals.RequestChanges(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
