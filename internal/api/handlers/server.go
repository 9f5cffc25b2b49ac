// Package handlers implements the HTTP surface of FormBridge.
//
// Every mutating route returns either a success body carrying the rotated
// resume token or the shared error envelope rendered by the error-handler
// middleware.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/amitpaz1/formbridge-sub001/internal/api/middleware"
	"github.com/amitpaz1/formbridge-sub001/internal/approval"
	"github.com/amitpaz1/formbridge-sub001/internal/delivery"
	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/registry"
	"github.com/amitpaz1/formbridge-sub001/internal/submission"
	"github.com/amitpaz1/formbridge-sub001/internal/toolsurface"
)

// Server holds the handler dependencies.
type Server struct {
	registry  *registry.Registry
	manager   *submission.Manager
	approvals *approval.Manager
	engine    *delivery.Engine
	tools     *toolsurface.Adapter
}

// ServerDeps holds all dependencies for creating a Server.
// Manual DI, no Wire/Dig.
type ServerDeps struct {
	Registry  *registry.Registry
	Manager   *submission.Manager
	Approvals *approval.Manager
	Engine    *delivery.Engine
	Tools     *toolsurface.Adapter
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		registry:  deps.Registry,
		manager:   deps.Manager,
		approvals: deps.Approvals,
		engine:    deps.Engine,
		tools:     deps.Tools,
	}
}

// actorPayload is the optional actor block accepted on mutating requests.
type actorPayload struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// toActor converts the request actor, defaulting to an anonymous human.
// Agent callers normally arrive through the tool surface instead.
func (a *actorPayload) toActor() (domain.Actor, error) {
	if a == nil || (a.Kind == "" && a.ID == "") {
		return domain.Actor{Kind: domain.ActorHuman, ID: "anonymous"}, nil
	}
	actor := domain.Actor{Kind: domain.ActorKind(a.Kind), ID: a.ID, Name: a.Name}
	if err := actor.Validate(); err != nil {
		return domain.Actor{}, apperrors.InvalidRequest(err.Error())
	}
	return actor, nil
}

func tenantOf(c *gin.Context) string {
	return middleware.GetTenantID(c.Request.Context())
}

// bindJSON decodes the request body, tolerating an empty body when the
// target has no required members.
func bindJSON(c *gin.Context, out any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(out); err != nil {
		return apperrors.InvalidRequest("request body is not valid JSON: " + err.Error())
	}
	return nil
}
