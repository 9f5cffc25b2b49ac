package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amitpaz1/formbridge-sub001/internal/submission"
)

type createRequest struct {
	Actor          *actorPayload  `json:"actor"`
	InitialFields  map[string]any `json:"initialFields"`
	IdempotencyKey string         `json:"idempotencyKey"`
}

// CreateSubmission handles POST /intake/:intakeId/submissions.
func (s *Server) CreateSubmission(c *gin.Context) {
	var req createRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := s.manager.Create(c.Request.Context(), submission.CreateParams{
		IntakeID:       c.Param("intakeId"),
		TenantID:       tenantOf(c),
		Actor:          actor,
		InitialFields:  req.InitialFields,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GetSubmission handles GET /intake/:intakeId/submissions/:submissionId.
func (s *Server) GetSubmission(c *gin.Context) {
	view, err := s.manager.Get(c.Request.Context(),
		c.Param("intakeId"), c.Param("submissionId"), tenantOf(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type setFieldsRequest struct {
	ResumeToken string         `json:"resumeToken"`
	Actor       *actorPayload  `json:"actor"`
	Fields      map[string]any `json:"fields"`
}

// SetFields handles PATCH /intake/:intakeId/submissions/:submissionId.
func (s *Server) SetFields(c *gin.Context) {
	var req setFieldsRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	p, err := s.mutateParams(c, req.ResumeToken, req.Actor)
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := s.manager.SetFields(c.Request.Context(), p, req.Fields)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type tokenRequest struct {
	ResumeToken string        `json:"resumeToken"`
	Actor       *actorPayload `json:"actor"`
}

// ValidateSubmission handles POST /intake/:intakeId/submissions/:submissionId/validate.
func (s *Server) ValidateSubmission(c *gin.Context) {
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

	res, err := s.manager.Validate(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type submitRequest struct {
	ResumeToken    string        `json:"resumeToken"`
	Actor          *actorPayload `json:"actor"`
	IdempotencyKey string        `json:"idempotencyKey"`
}

// SubmitSubmission handles POST /intake/:intakeId/submissions/:submissionId/submit.
// Returns 202 when an approval gate routed the submission into review.
func (s *Server) SubmitSubmission(c *gin.Context) {
	var req submitRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	p, err := s.mutateParams(c, req.ResumeToken, req.Actor)
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := s.manager.Submit(c.Request.Context(), p, req.IdempotencyKey)
	if err != nil {
		_ = c.Error(err)
		return
	}
	status := http.StatusOK
	if res.NeedsApproval {
		status = http.StatusAccepted
	}
	c.JSON(status, res)
}

func (s *Server) mutateParams(c *gin.Context, token string, actor *actorPayload) (submission.MutateParams, error) {
	a, err := actor.toActor()
	if err != nil {
		return submission.MutateParams{}, err
	}
	return submission.MutateParams{
		SubmissionID: c.Param("submissionId"),
		TenantID:     tenantOf(c),
		ResumeToken:  token,
		Actor:        a,
	}, nil
}
