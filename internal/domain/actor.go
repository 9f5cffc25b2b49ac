// Package domain holds the FormBridge submission model: actors, intake
// definitions, submissions, the lifecycle state machine and the event types
// emitted by every state-affecting action.
package domain

import "fmt"

// ActorKind discriminates the three classes of actors that can touch a
// submission.
type ActorKind string

const (
	ActorAgent  ActorKind = "agent"
	ActorHuman  ActorKind = "human"
	ActorSystem ActorKind = "system"
)

// Actor identifies who performed a state-mutating operation. Immutable once
// recorded on an event or in field attribution.
type Actor struct {
	Kind     ActorKind      `json:"kind"`
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the actor is well-formed.
func (a Actor) Validate() error {
	switch a.Kind {
	case ActorAgent, ActorHuman, ActorSystem:
	default:
		return fmt.Errorf("actor kind %q is not one of agent, human, system", a.Kind)
	}
	if a.ID == "" {
		return fmt.Errorf("actor id is required")
	}
	return nil
}

// SystemActor is the actor recorded on operations the service performs on
// its own behalf (expiry, delivery finalization).
func SystemActor() Actor {
	return Actor{Kind: ActorSystem, ID: "formbridge"}
}
