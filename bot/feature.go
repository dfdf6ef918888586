package bot

import (
	"context"
	"fmt"
)

// CapabilityAnyIdentified marks a feature open to any identified user.
const CapabilityAnyIdentified = "*"

// MasterCapability unlocks every feature regardless of its requirement.
const MasterCapability = "SailSetuMaster"

// Feature is a self-contained conversational dialog with its own internal
// state machine, pluggable into the dialog engine.
//
// RequiredCapability returns "" for an unrestricted feature,
// CapabilityAnyIdentified for "any identified user", or an exact
// capability token otherwise.
//
// Select is the entry point; it must start from cleared feature state
// (the engine clears Session.State before calling it). Handle receives
// every subsequent message while the feature owns the session.
type Feature interface {
	ID() string
	Name() string
	Description() string
	RequiredCapability() string
	Select(ctx context.Context, turn *Turn) error
	Handle(ctx context.Context, turn *Turn, text string) error
}

// Registry is the process-wide catalog of features. It is constructed
// explicitly and injected into each engine; it is not mutated after
// startup.
type Registry struct {
	features []Feature
	index    map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a feature. Duplicate ids are rejected: a collision is a
// wiring bug, not a supersede mechanism.
func (r *Registry) Register(f Feature) error {
	if f == nil {
		return fmt.Errorf("feature is nil")
	}
	id := f.ID()
	if id == "" {
		return fmt.Errorf("feature id is required")
	}
	if _, ok := r.index[id]; ok {
		return fmt.Errorf("feature %q is already registered", id)
	}
	r.index[id] = len(r.features)
	r.features = append(r.features, f)
	return nil
}

func (r *Registry) Get(id string) (Feature, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.features[i], true
}

// All returns the features in registration order.
func (r *Registry) All() []Feature {
	out := make([]Feature, len(r.features))
	copy(out, r.features)
	return out
}

func (r *Registry) Len() int { return len(r.features) }
