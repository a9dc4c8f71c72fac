package flow

import (
	"github.com/pkg/errors"
)

// Trigger is a guarded bundle of effects: it fires its events, in declared
// order, iff every condition holds.
type Trigger struct {
	conditions []Condition
	events     []Event
	spec       TriggerSpec
}

// NewTrigger builds a trigger from its raw spec. At least one event is
// required.
func NewTrigger(spec TriggerSpec, d *Domain) (*Trigger, error) {
	return newTrigger(spec, d, true)
}

// NewOptionTrigger builds the trigger behind a button option. Options that
// only declare synonyms carry no events and fire an empty output.
func NewOptionTrigger(spec TriggerSpec, d *Domain) (*Trigger, error) {
	return newTrigger(spec, d, false)
}

func newTrigger(spec TriggerSpec, d *Domain, requireEvents bool) (*Trigger, error) {
	t := &Trigger{spec: spec}
	for _, step := range spec.Steps {
		switch {
		case isConditionKind(step.Kind):
			condition, err := newCondition(step.Kind, step.Spec, d)
			if err != nil {
				return nil, err
			}
			t.conditions = append(t.conditions, condition)
		case isEventKind(step.Kind):
			event, err := newEvent(step.Kind, step.Spec, d)
			if err != nil {
				return nil, err
			}
			t.events = append(t.events, event)
		default:
			return nil, errors.Errorf("trigger: unknown step %q", step.Kind)
		}
	}
	if requireEvents && len(t.events) == 0 {
		return nil, errors.Errorf("trigger must declare at least one event, at %v", spec.Steps)
	}
	return t, nil
}

// Eval returns the merged output of all events when every condition holds.
// The second return value distinguishes "did not fire" from "fired with an
// empty output".
func (t *Trigger) Eval(intent *Intent, entities []Entity, slots Slots) (EventOutput, bool) {
	for _, condition := range t.conditions {
		if !condition.Holds(intent, entities, slots) {
			return EventOutput{}, false
		}
	}
	var out EventOutput
	for _, event := range t.events {
		out.Append(event.Eval(intent, entities, slots))
	}
	return out, true
}

// Spec returns the raw form the trigger was built from.
func (t *Trigger) Spec() TriggerSpec {
	return t.spec
}
