// Package actions holds the action dictionary: named callable units the flow
// engine can defer to through an "action" event. Actions are registered
// explicitly at startup.
package actions

import (
	"github.com/pkg/errors"

	"github.com/flowchat-io/flowchat/flow"
)

// Action is one callable unit of the action dictionary.
type Action interface {
	// Name returns the key the flow configuration refers to this action by.
	Name() string

	// Call evaluates the action against the current conversation state.
	Call(intent *flow.Intent, entities []flow.Entity, slots flow.Slots) flow.EventOutput
}

// Registry is the immutable action dictionary, assembled once at startup.
type Registry struct {
	actions map[string]Action
}

// NewRegistry builds a registry from the given actions. Duplicate names are a
// configuration error.
func NewRegistry(acts ...Action) (*Registry, error) {
	r := &Registry{actions: make(map[string]Action, len(acts))}
	for _, action := range acts {
		name := action.Name()
		if name == "" {
			return nil, errors.New("action with empty name")
		}
		if _, ok := r.actions[name]; ok {
			return nil, errors.Errorf("duplicate action %q", name)
		}
		r.actions[name] = action
	}
	return r, nil
}

// Get looks up an action by name.
func (r *Registry) Get(name string) (Action, bool) {
	action, ok := r.actions[name]
	return action, ok
}

// Builtin builds the registry with the two required built-in actions plus any
// extras.
func Builtin(d *flow.Domain, titles map[string]string, extras ...Action) (*Registry, error) {
	defaultAction, err := NewDefaultAction(d, titles)
	if err != nil {
		return nil, err
	}
	acts := append([]Action{defaultAction, NewRestartAction()}, extras...)
	return NewRegistry(acts...)
}
