package flow

import (
	"github.com/pkg/errors"
)

// Condition is a pure predicate over the current conversation state. All
// variants are immutable after construction and safe to share across
// conversations.
type Condition interface {
	// Holds reports whether the condition is satisfied by the given state.
	Holds(intent *Intent, entities []Entity, slots Slots) bool

	Kind() string
	Spec() any
}

func newCondition(kind string, spec any, d *Domain) (Condition, error) {
	switch kind {
	case KindSlotCondition:
		return NewSlotCondition(spec, d)
	case KindEntityCondition:
		return NewEntityCondition(spec, d)
	case KindIntentCondition:
		return NewIntentCondition(spec, d)
	}
	return nil, errors.Errorf("unknown condition kind %q", kind)
}

// SlotCondition checks slot presence or value equality. Per entry: true means
// the slot must be set, false means it must not be, a string must equal the
// current value.
type SlotCondition struct {
	checks map[string]any
	spec   any
}

func NewSlotCondition(spec any, d *Domain) (*SlotCondition, error) {
	checks, ok := specMap(spec)
	if !ok {
		return nil, errors.Errorf("slot condition must be a mapping, got %v", spec)
	}
	for name, expected := range checks {
		if !d.HasSlot(name) {
			return nil, errors.Errorf("slot condition: slot %q is not an available slot", name)
		}
		switch expected.(type) {
		case bool, string:
		default:
			return nil, errors.Errorf("slot condition: slot %q expects bool or string, got %v", name, expected)
		}
	}
	return &SlotCondition{checks: checks, spec: spec}, nil
}

func (c *SlotCondition) Holds(_ *Intent, _ []Entity, slots Slots) bool {
	for name, expected := range c.checks {
		switch want := expected.(type) {
		case bool:
			if want != slots.IsSet(name) {
				return false
			}
		case string:
			value, ok := slots[name]
			if !ok || value != want {
				return false
			}
		}
	}
	return true
}

func (c *SlotCondition) Kind() string { return KindSlotCondition }
func (c *SlotCondition) Spec() any    { return c.spec }

// EntityCondition checks the extracted entities of the current utterance.
// Per entry: false means no entity of that name may be present, a string
// means some entity of that name must carry that exact text.
type EntityCondition struct {
	checks map[string]any
	spec   any
}

func NewEntityCondition(spec any, d *Domain) (*EntityCondition, error) {
	checks, ok := specMap(spec)
	if !ok {
		return nil, errors.Errorf("entity condition must be a mapping, got %v", spec)
	}
	for name, expected := range checks {
		if !d.HasEntity(name) {
			return nil, errors.Errorf("entity condition: entity %q is not an available entity", name)
		}
		switch want := expected.(type) {
		case string:
		case bool:
			if want {
				return nil, errors.Errorf("entity condition: entity %q: bare true is not supported, use a text value", name)
			}
		default:
			return nil, errors.Errorf("entity condition: entity %q expects false or string, got %v", name, expected)
		}
	}
	return &EntityCondition{checks: checks, spec: spec}, nil
}

func (c *EntityCondition) Holds(_ *Intent, entities []Entity, _ Slots) bool {
	for name, expected := range c.checks {
		switch want := expected.(type) {
		case bool: // always false, true is rejected at construction
			for _, entity := range entities {
				if entity.Name == name {
					return false
				}
			}
		case string:
			found := false
			for _, entity := range entities {
				if entity.Name == name && entity.Text == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (c *EntityCondition) Kind() string { return KindEntityCondition }
func (c *EntityCondition) Spec() any    { return c.spec }

// IntentCondition constrains the current intent by name equality and/or a
// maximum priority bound.
type IntentCondition struct {
	name        string
	hasName     bool
	maxPriority int
	hasPriority bool
	spec        any
}

func NewIntentCondition(spec any, d *Domain) (*IntentCondition, error) {
	checks, ok := specMap(spec)
	if !ok {
		return nil, errors.Errorf("intent condition must be a mapping, got %v", spec)
	}
	c := &IntentCondition{spec: spec}
	for key, value := range checks {
		switch key {
		case "intent_name":
			name, ok := specString(value)
			if !ok {
				return nil, errors.Errorf("intent condition: intent_name must be a string, got %v", value)
			}
			if !d.HasIntent(name) {
				return nil, errors.Errorf("intent condition: intent %q is not an available intent", name)
			}
			c.name = name
			c.hasName = true
		case "priority":
			bound, ok := specInt(value)
			if !ok {
				return nil, errors.Errorf("intent condition: priority must be an integer, got %v", value)
			}
			c.maxPriority = bound
			c.hasPriority = true
		default:
			return nil, errors.Errorf("intent condition: unknown key %q", key)
		}
	}
	return c, nil
}

func (c *IntentCondition) Holds(intent *Intent, _ []Entity, _ Slots) bool {
	if c.hasName && intent.Name != c.name {
		return false
	}
	if c.hasPriority && intent.Priority > c.maxPriority {
		return false
	}
	return true
}

func (c *IntentCondition) Kind() string { return KindIntentCondition }
func (c *IntentCondition) Spec() any    { return c.spec }
