// Package toolsurface exposes each registered intake as six named machine
// operations for agent tool protocols. The adapter validates input shape,
// routes to the submission manager and serializes responses; errors come
// back in the flat tool shape, never the HTTP envelope.
package toolsurface

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
	"github.com/amitpaz1/formbridge-sub001/internal/registry"
	"github.com/amitpaz1/formbridge-sub001/internal/submission"
)

// The six operation suffixes every intake exposes.
const (
	OpCreate        = "create"
	OpSet           = "set"
	OpValidate      = "validate"
	OpSubmit        = "submit"
	OpRequestUpload = "requestUpload"
	OpConfirmUpload = "confirmUpload"
)

var validOps = map[string]bool{
	OpCreate:        true,
	OpSet:           true,
	OpValidate:      true,
	OpSubmit:        true,
	OpRequestUpload: true,
	OpConfirmUpload: true,
}

// Response is the tool-protocol result wrapper. IsError mirrors the
// transport's error flag; Content is the flat error when IsError is set.
type Response struct {
	IsError bool `json:"isError"`
	Content any  `json:"content"`
}

// Tool describes one exposed operation for tool listings.
type Tool struct {
	Name        string `json:"name"`
	IntakeID    string `json:"intakeId"`
	Operation   string `json:"operation"`
	Description string `json:"description"`
}

// Adapter routes tool calls to the submission manager.
type Adapter struct {
	registry *registry.Registry
	manager  *submission.Manager
}

// NewAdapter creates a tool-surface adapter.
func NewAdapter(reg *registry.Registry, mgr *submission.Manager) *Adapter {
	return &Adapter{registry: reg, manager: mgr}
}

// ParseName splits a tool name into intake ID and operation on the last
// underscore. Intake IDs may themselves contain underscores.
func ParseName(name string) (intakeID, op string, err error) {
	idx := strings.LastIndex(name, "_")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", apperrors.InvalidRequest(fmt.Sprintf("tool name %q is not of the form {intakeId}_{operation}", name))
	}
	intakeID, op = name[:idx], name[idx+1:]
	if !validOps[op] {
		return "", "", apperrors.InvalidRequest(fmt.Sprintf("unknown operation %q in tool name %q", op, name))
	}
	return intakeID, op, nil
}

// ListTools enumerates the six operations of every registered intake.
func (a *Adapter) ListTools() []Tool {
	ops := []struct{ op, desc string }{
		{OpCreate, "Start a new submission, optionally with initial fields"},
		{OpSet, "Merge fields into an open submission"},
		{OpValidate, "Run full validation without submitting"},
		{OpSubmit, "Validate and submit for delivery or review"},
		{OpRequestUpload, "Negotiate an upload URL for a file field"},
		{OpConfirmUpload, "Confirm a negotiated upload landed"},
	}

	var tools []Tool
	for _, id := range a.registry.ListIDs() {
		for _, o := range ops {
			tools = append(tools, Tool{
				Name:        id + "_" + o.op,
				IntakeID:    id,
				Operation:   o.op,
				Description: o.desc,
			})
		}
	}
	return tools
}

// Execute runs one named tool call with a JSON-shaped argument map.
func (a *Adapter) Execute(ctx context.Context, name string, args map[string]any) Response {
	intakeID, op, err := ParseName(name)
	if err != nil {
		return errResponse(err)
	}
	if !a.registry.Has(intakeID) {
		return errResponse(apperrors.NotFound(fmt.Sprintf("intake %q is not registered", intakeID)))
	}

	var result any
	switch op {
	case OpCreate:
		result, err = a.create(ctx, intakeID, args)
	case OpSet:
		result, err = a.set(ctx, args)
	case OpValidate:
		result, err = a.validate(ctx, args)
	case OpSubmit:
		result, err = a.submit(ctx, args)
	case OpRequestUpload:
		result, err = a.requestUpload(ctx, args)
	case OpConfirmUpload:
		result, err = a.confirmUpload(ctx, args)
	}
	if err != nil {
		return errResponse(err)
	}
	return Response{Content: result}
}

func errResponse(err error) Response {
	appErr, ok := apperrors.IsAppError(err)
	if !ok {
		appErr = apperrors.Internal(err.Error())
	}
	return Response{
		IsError: true,
		Content: apperrors.ToFlat(appErr, time.Now().UTC()),
	}
}

// argument extraction

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", apperrors.InvalidRequest(fmt.Sprintf("missing required argument %q", key))
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", apperrors.InvalidRequest(fmt.Sprintf("argument %q must be a non-empty string", key))
	}
	return s, nil
}

func optionalStringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", apperrors.InvalidRequest(fmt.Sprintf("argument %q must be a string", key))
	}
	return s, nil
}

func mapArg(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apperrors.InvalidRequest(fmt.Sprintf("argument %q must be an object", key))
	}
	return m, nil
}

func actorArg(args map[string]any) (domain.Actor, error) {
	raw, err := mapArg(args, "actor")
	if err != nil {
		return domain.Actor{}, err
	}
	if raw == nil {
		// Tool callers are agents unless they say otherwise.
		return domain.Actor{Kind: domain.ActorAgent, ID: "tool-client"}, nil
	}
	actor := domain.Actor{
		Kind: domain.ActorKind(asString(raw["kind"])),
		ID:   asString(raw["id"]),
		Name: asString(raw["name"]),
	}
	if err := actor.Validate(); err != nil {
		return domain.Actor{}, apperrors.InvalidRequest(err.Error())
	}
	return actor, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// mutateParams pulls the submissionId/resumeToken/actor triple every
// post-create operation needs.
func mutateParams(args map[string]any) (submission.MutateParams, error) {
	var p submission.MutateParams
	var err error
	if p.SubmissionID, err = stringArg(args, "submissionId"); err != nil {
		return p, err
	}
	if p.ResumeToken, err = stringArg(args, "resumeToken"); err != nil {
		return p, err
	}
	if p.TenantID, err = optionalStringArg(args, "tenantId"); err != nil {
		return p, err
	}
	p.Actor, err = actorArg(args)
	return p, err
}

func (a *Adapter) create(ctx context.Context, intakeID string, args map[string]any) (any, error) {
	fields, err := mapArg(args, "initialFields")
	if err != nil {
		return nil, err
	}
	actor, err := actorArg(args)
	if err != nil {
		return nil, err
	}
	tenantID, err := optionalStringArg(args, "tenantId")
	if err != nil {
		return nil, err
	}
	idemKey, err := optionalStringArg(args, "idempotencyKey")
	if err != nil {
		return nil, err
	}
	return a.manager.Create(ctx, submission.CreateParams{
		IntakeID:       intakeID,
		TenantID:       tenantID,
		Actor:          actor,
		InitialFields:  fields,
		IdempotencyKey: idemKey,
	})
}

func (a *Adapter) set(ctx context.Context, args map[string]any) (any, error) {
	p, err := mutateParams(args)
	if err != nil {
		return nil, err
	}
	fields, err := mapArg(args, "fields")
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, apperrors.InvalidRequest(`missing required argument "fields"`)
	}
	return a.manager.SetFields(ctx, p, fields)
}

func (a *Adapter) validate(ctx context.Context, args map[string]any) (any, error) {
	p, err := mutateParams(args)
	if err != nil {
		return nil, err
	}
	return a.manager.Validate(ctx, p)
}

func (a *Adapter) submit(ctx context.Context, args map[string]any) (any, error) {
	p, err := mutateParams(args)
	if err != nil {
		return nil, err
	}
	idemKey, err := optionalStringArg(args, "idempotencyKey")
	if err != nil {
		return nil, err
	}
	return a.manager.Submit(ctx, p, idemKey)
}

func (a *Adapter) requestUpload(ctx context.Context, args map[string]any) (any, error) {
	p, err := mutateParams(args)
	if err != nil {
		return nil, err
	}
	field, err := stringArg(args, "field")
	if err != nil {
		return nil, err
	}
	filename, err := stringArg(args, "filename")
	if err != nil {
		return nil, err
	}
	mimeType, err := stringArg(args, "mimeType")
	if err != nil {
		return nil, err
	}
	var sizeBytes int64
	if v, ok := args["sizeBytes"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 {
			return nil, apperrors.InvalidRequest(`argument "sizeBytes" must be a non-negative number`)
		}
		sizeBytes = int64(f)
	}
	return a.manager.RequestUpload(ctx, submission.UploadRequest{
		SubmissionID: p.SubmissionID,
		TenantID:     p.TenantID,
		ResumeToken:  p.ResumeToken,
		Field:        field,
		Filename:     filename,
		MimeType:     mimeType,
		SizeBytes:    sizeBytes,
		Actor:        p.Actor,
	})
}

func (a *Adapter) confirmUpload(ctx context.Context, args map[string]any) (any, error) {
	p, err := mutateParams(args)
	if err != nil {
		return nil, err
	}
	uploadID, err := stringArg(args, "uploadId")
	if err != nil {
		return nil, err
	}
	return a.manager.ConfirmUpload(ctx, p, uploadID)
}
