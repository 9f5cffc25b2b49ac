// Package registry holds the in-memory catalog of intake definitions.
// Definitions are registered at startup from already-normalized schemas.
package registry

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
)

var intakeIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ConditionValidator compiles approval gate conditions against a schema so
// malformed gates are rejected at registration, not at first submit.
type ConditionValidator interface {
	ValidateCondition(schema *domain.FieldSchema, condition string) error
}

// Registry is a process-wide map of intake definitions keyed by ID.
type Registry struct {
	mu         sync.RWMutex
	intakes    map[string]*domain.IntakeDefinition
	conditions ConditionValidator
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{intakes: make(map[string]*domain.IntakeDefinition)}
}

// SetConditionValidator enables gate condition checking on Register.
func (r *Registry) SetConditionValidator(v ConditionValidator) {
	r.conditions = v
}

// Register validates and stores a definition. Re-registering an ID replaces
// the previous definition (used for startup reloads).
func (r *Registry) Register(def *domain.IntakeDefinition) error {
	if def == nil {
		return fmt.Errorf("intake definition is nil")
	}
	if !intakeIDPattern.MatchString(def.ID) {
		return fmt.Errorf("intake id %q must match %s", def.ID, intakeIDPattern.String())
	}
	if _, err := semver.NewVersion(def.Version); err != nil {
		return fmt.Errorf("intake %s version %q is not semantic: %w", def.ID, def.Version, err)
	}
	if def.Schema == nil {
		return fmt.Errorf("intake %s has no schema", def.ID)
	}
	if def.Destination == nil {
		return fmt.Errorf("intake %s has no destination", def.ID)
	}
	if r.conditions != nil {
		for _, gate := range def.ApprovalGates {
			if err := r.conditions.ValidateCondition(def.Schema, gate.Condition); err != nil {
				return fmt.Errorf("intake %s gate %s: %w", def.ID, gate.ID, err)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.intakes[def.ID] = def
	return nil
}

// Get returns the definition for id, or a not_found error.
func (r *Registry) Get(id string) (*domain.IntakeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.intakes[id]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("intake %q is not registered", id))
	}
	return def, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.intakes[id]
	return ok
}

// ListIDs returns all registered intake IDs in sorted order.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.intakes))
	for id := range r.intakes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
