// Package approval implements approval gates: a restricted CEL evaluator
// for gate conditions over submission fields, and the reviewer workflow
// (approve, reject, request-changes).
package approval

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	apperrors "github.com/amitpaz1/formbridge-sub001/internal/pkg/errors"
)

// ConditionEvaluator compiles and evaluates gate condition expressions.
// Conditions reference the intake's top-level fields by bare name
// (`annual_revenue > 1000000`, `contact.email == "x"`); the environment
// declares only those names, so any other identifier fails at compile time.
// Compiled programs are cached per (field set, expression).
type ConditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewConditionEvaluator creates an evaluator with an empty program cache.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{cache: make(map[string]cel.Program)}
}

// fieldNames returns the schema's top-level property names, sorted.
func fieldNames(schema *domain.FieldSchema) []string {
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *ConditionEvaluator) compile(condition string, names []string) (cel.Program, error) {
	key := condition + "\x00" + strings.Join(names, ",")

	e.mu.RLock()
	prg, hit := e.cache[key]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[key]; hit {
		return prg, nil
	}

	// JSON numbers decode as doubles; conditions compare them against int
	// literals, so cross-type numeric comparison must be on.
	opts := make([]cel.EnvOption, 0, len(names)+1)
	opts = append(opts, cel.CrossTypeNumericComparisons(true))
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeInternalError, "condition environment setup failed")
	}

	ast, issues := env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, apperrors.InvalidRequest(fmt.Sprintf("invalid gate condition %q: %v", condition, issues.Err()))
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperrors.InvalidRequest(fmt.Sprintf("gate condition %q must evaluate to a boolean, got %s", condition, ast.OutputType()))
	}

	prg, err = env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, apperrors.InvalidRequest(fmt.Sprintf("invalid gate condition %q: %v", condition, err))
	}
	e.cache[key] = prg
	return prg, nil
}

// ValidateCondition compiles a condition against a schema without
// evaluating it. The registry calls this so a malformed gate is rejected at
// registration, not at first submit.
func (e *ConditionEvaluator) ValidateCondition(schema *domain.FieldSchema, condition string) error {
	if strings.TrimSpace(condition) == "" {
		return apperrors.InvalidRequest("gate condition must not be empty")
	}
	_, err := e.compile(condition, fieldNames(schema))
	return err
}

// Evaluate runs a gate condition over the submission's field map. Fields
// absent from the submission are passed as CEL null, so comparisons against
// unset fields come out false rather than erroring.
func (e *ConditionEvaluator) Evaluate(schema *domain.FieldSchema, condition string, fields map[string]any) (bool, error) {
	names := fieldNames(schema)
	prg, err := e.compile(condition, names)
	if err != nil {
		return false, err
	}

	input := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := fields[name]; ok {
			input[name] = v
		} else {
			input[name] = nil
		}
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, apperrors.InvalidRequest(fmt.Sprintf("gate condition %q failed to evaluate: %v", condition, err))
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, apperrors.InvalidRequest(fmt.Sprintf("gate condition %q did not produce a boolean", condition))
	}
	return val, nil
}

// MatchingGates evaluates every gate of an intake against the fields and
// returns the IDs of gates whose condition holds. An evaluation error on a
// required gate fails closed: the gate is treated as matching.
func (e *ConditionEvaluator) MatchingGates(intake *domain.IntakeDefinition, fields map[string]any) ([]string, error) {
	var matched []string
	for _, gate := range intake.ApprovalGates {
		ok, err := e.Evaluate(intake.Schema, gate.Condition, fields)
		if err != nil {
			if gate.Required {
				matched = append(matched, gate.ID)
				continue
			}
			return nil, err
		}
		if ok {
			matched = append(matched, gate.ID)
		}
	}
	return matched, nil
}
