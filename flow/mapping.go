package flow

import (
	"github.com/pkg/errors"
)

// ActionSpec is the raw configuration of one ActionMap entry.
type ActionSpec struct {
	Intent   string        `yaml:"intent" json:"intent"`
	Priority *int          `yaml:"priority" json:"priority,omitempty"`
	Set      any           `yaml:"set" json:"set,omitempty"`
	SetSlot  any           `yaml:"set_slot" json:"set_slot,omitempty"`
	Triggers []TriggerSpec `yaml:"triggers" json:"triggers"`
}

// ActionMap is the compiled rule set executed when an intent is (re)entered:
// optional pre-step slot assignments that always fire, then the first trigger
// whose conditions all hold.
type ActionMap struct {
	Intent   string
	Priority int

	slotToSet *SetSlotEvent
	setSlot   *SetSlotEvent
	triggers  []*Trigger
}

func NewActionMap(spec ActionSpec, d *Domain) (*ActionMap, error) {
	if spec.Intent == "" {
		return nil, errors.New("actions_map entry is missing an intent")
	}
	if !d.HasIntent(spec.Intent) {
		return nil, errors.Errorf("actions_map: intent %q is not an available intent", spec.Intent)
	}
	if len(spec.Triggers) == 0 {
		return nil, errors.Errorf("actions_map: intent %q declares no triggers", spec.Intent)
	}

	m := &ActionMap{Intent: spec.Intent, Priority: 1}
	if spec.Priority != nil {
		m.Priority = *spec.Priority
	}

	var err error
	if spec.Set != nil {
		if m.slotToSet, err = NewSetSlotEvent(spec.Set, d); err != nil {
			return nil, errors.Wrapf(err, "actions_map: intent %q: set", spec.Intent)
		}
	}
	if spec.SetSlot != nil {
		if m.setSlot, err = NewSetSlotEvent(spec.SetSlot, d); err != nil {
			return nil, errors.Wrapf(err, "actions_map: intent %q: set_slot", spec.Intent)
		}
	}
	for i, triggerSpec := range spec.Triggers {
		trigger, err := NewTrigger(triggerSpec, d)
		if err != nil {
			return nil, errors.Wrapf(err, "actions_map: intent %q: trigger %d", spec.Intent, i)
		}
		m.triggers = append(m.triggers, trigger)
	}
	return m, nil
}

// Eval runs the action map against the current state. The pre-step slot
// assignments are applied to slots in place so that later triggers observe
// them; the first firing trigger wins.
func (m *ActionMap) Eval(intent *Intent, entities []Entity, slots Slots) EventOutput {
	intent.Priority = m.Priority

	var out EventOutput
	for _, preStep := range []*SetSlotEvent{m.slotToSet, m.setSlot} {
		if preStep == nil {
			continue
		}
		assigned := preStep.Eval(intent, entities, slots)
		slots.Apply(assigned.SetSlot)
		out.Append(assigned)
	}

	for _, trigger := range m.triggers {
		if fired, ok := trigger.Eval(intent, entities, slots); ok {
			out.Append(fired)
			return out
		}
	}
	return out
}

// RequestSpec is the raw configuration of one RequestMap entry.
type RequestSpec struct {
	Slot     string        `yaml:"slot" json:"slot"`
	SetSlot  any           `yaml:"set_slot" json:"set_slot,omitempty"`
	Text     any           `yaml:"text" json:"text,omitempty"`
	Button   any           `yaml:"button" json:"button,omitempty"`
	Redirect []TriggerSpec `yaml:"redirect" json:"redirect"`
}

// RequestMap is the compiled rule set executed while a slot is being
// solicited: on first entry it emits the prompt and records the pending
// request; once the user has answered it evaluates the redirect triggers.
type RequestMap struct {
	Slot string

	setSlot    *SetSlotEvent
	prompt     Event
	startup    *SlotCondition
	startupSet *SetSlotEvent
	redirect   []*Trigger
}

func NewRequestMap(spec RequestSpec, d *Domain) (*RequestMap, error) {
	if spec.Slot == "" {
		return nil, errors.New("requests_map entry is missing a slot")
	}
	if !d.HasSlot(spec.Slot) {
		return nil, errors.Errorf("requests_map: slot %q is not an available slot", spec.Slot)
	}

	m := &RequestMap{Slot: spec.Slot}

	var err error
	if spec.SetSlot != nil {
		if m.setSlot, err = NewSetSlotEvent(spec.SetSlot, d); err != nil {
			return nil, errors.Wrapf(err, "requests_map: slot %q: set_slot", spec.Slot)
		}
	}

	switch {
	case spec.Text != nil && spec.Button != nil:
		return nil, errors.Errorf("requests_map: slot %q declares both text and button prompts", spec.Slot)
	case spec.Text != nil:
		if m.prompt, err = NewTextEvent(spec.Text, d); err != nil {
			return nil, errors.Wrapf(err, "requests_map: slot %q: text", spec.Slot)
		}
	case spec.Button != nil:
		if m.prompt, err = NewButtonEvent(spec.Button, d); err != nil {
			return nil, errors.Wrapf(err, "requests_map: slot %q: button", spec.Slot)
		}
	default:
		return nil, errors.Errorf("requests_map: slot %q is missing a prompt (text or button)", spec.Slot)
	}

	if len(spec.Redirect) == 0 {
		return nil, errors.Errorf("requests_map: slot %q declares no redirect triggers", spec.Slot)
	}
	for i, triggerSpec := range spec.Redirect {
		trigger, err := NewTrigger(triggerSpec, d)
		if err != nil {
			return nil, errors.Wrapf(err, "requests_map: slot %q: redirect %d", spec.Slot, i)
		}
		m.redirect = append(m.redirect, trigger)
	}

	// Startup: fire the prompt only when neither the target slot nor a
	// pending request is set, and record which slot is being asked for.
	if m.startup, err = NewSlotCondition(map[string]any{m.Slot: false, RequestSlotName: false}, d); err != nil {
		return nil, err
	}
	if m.startupSet, err = NewSetSlotEvent(map[string]any{RequestSlotName: m.Slot}, d); err != nil {
		return nil, err
	}
	return m, nil
}

// Eval runs the request map against the current state.
func (m *RequestMap) Eval(intent *Intent, entities []Entity, slots Slots) EventOutput {
	var out EventOutput
	if m.setSlot != nil {
		assigned := m.setSlot.Eval(intent, entities, slots)
		slots.Apply(assigned.SetSlot)
		out.Append(assigned)
	}

	if m.startup.Holds(intent, entities, slots) {
		out.Append(m.prompt.Eval(intent, entities, slots))
		out.Append(m.startupSet.Eval(intent, entities, slots))
		return out
	}

	for _, trigger := range m.redirect {
		if fired, ok := trigger.Eval(intent, entities, slots); ok {
			out.Append(fired)
			return out
		}
	}
	return out
}
