package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amitpaz1/formbridge-sub001/internal/submission"
)

type uploadRequest struct {
	ResumeToken string        `json:"resumeToken"`
	Actor       *actorPayload `json:"actor"`
	Field       string        `json:"field"`
	Filename    string        `json:"filename"`
	MimeType    string        `json:"mimeType"`
	SizeBytes   int64         `json:"sizeBytes"`
}

// RequestUpload handles POST /submissions/:submissionId/uploads.
// Negotiates a presigned upload URL for a file field.
func (s *Server) RequestUpload(c *gin.Context) {
	var req uploadRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		_ = c.Error(err)
		return
	}

	grant, err := s.manager.RequestUpload(c.Request.Context(), submission.UploadRequest{
		SubmissionID: c.Param("submissionId"),
		TenantID:     tenantOf(c),
		ResumeToken:  req.ResumeToken,
		Field:        req.Field,
		Filename:     req.Filename,
		MimeType:     req.MimeType,
		SizeBytes:    req.SizeBytes,
		Actor:        actor,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// ConfirmUpload handles POST /submissions/:submissionId/uploads/:uploadId/confirm.
func (s *Server) ConfirmUpload(c *gin.Context) {
	var req tokenRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	p, err := s.mutateParams(c, req.ResumeToken, req.Actor)
	if err != nil {
		_ = c.Error(err)
		return
	}

	outcome, err := s.manager.ConfirmUpload(c.Request.Context(), p, c.Param("uploadId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}
