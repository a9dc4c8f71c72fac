package flow

import (
	"math/rand"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// EventOutput accumulates the effects emitted during one reduction pass.
// Append merges a later output into an earlier one: scalar effects replace,
// slot patches shallow-merge.
type EventOutput struct {
	Text          string        `json:"text,omitempty"`
	SetSlot       SlotPatch     `json:"set_slot,omitempty"`
	RequestSlot   string        `json:"request_slot,omitempty"`
	TriggerIntent string        `json:"trigger_intent,omitempty"`
	Action        string        `json:"action,omitempty"`
	Button        *ButtonOutput `json:"button,omitempty"`
}

// Append merges other into o.
func (o *EventOutput) Append(other EventOutput) {
	if other.Text != "" {
		o.Text = other.Text
	}
	if len(other.SetSlot) > 0 {
		if o.SetSlot == nil {
			o.SetSlot = make(SlotPatch, len(other.SetSlot))
		}
		for name, value := range other.SetSlot {
			o.SetSlot[name] = value
		}
	}
	if other.RequestSlot != "" {
		o.RequestSlot = other.RequestSlot
	}
	if other.TriggerIntent != "" {
		o.TriggerIntent = other.TriggerIntent
	}
	if other.Action != "" {
		o.Action = other.Action
	}
	if other.Button != nil {
		o.Button = other.Button
	}
}

// Empty reports whether no effect is pending.
func (o *EventOutput) Empty() bool {
	return o.Text == "" && len(o.SetSlot) == 0 && o.RequestSlot == "" &&
		o.TriggerIntent == "" && o.Action == "" && o.Button == nil
}

// Clone returns an independent copy.
func (o *EventOutput) Clone() EventOutput {
	out := *o
	out.SetSlot = o.SetSlot.Clone()
	return out
}

// Event produces an EventOutput from the current conversation state. All
// variants are immutable after construction.
type Event interface {
	Eval(intent *Intent, entities []Entity, slots Slots) EventOutput

	Kind() string
	Spec() any
}

func newEvent(kind string, spec any, d *Domain) (Event, error) {
	switch kind {
	case KindText:
		return NewTextEvent(spec, d)
	case KindButton:
		return NewButtonEvent(spec, d)
	case KindSetSlot:
		return NewSetSlotEvent(spec, d)
	case KindRequestSlot:
		return NewRequestSlotEvent(spec, d)
	case KindTriggerIntent:
		return NewTriggerIntentEvent(spec, d)
	case KindAction:
		return NewActionEvent(spec)
	}
	return nil, errors.Errorf("unknown event kind %q", kind)
}

// TextEvent picks one of its templates uniformly at random and interpolates
// slot values into tokens of the form <delim>slot<delim>.
type TextEvent struct {
	templates []string
	tokens    [][]string // slot names referenced per template
	delim     string
	spec      any
}

var slotTokenName = `[\w][\w ]*?`

func NewTextEvent(spec any, d *Domain) (*TextEvent, error) {
	templates, ok := specStringList(spec)
	if !ok || len(templates) == 0 {
		return nil, errors.Errorf("text event must be a non-empty list of strings, got %v", spec)
	}
	delim := d.Delimiter
	pattern, err := regexp.Compile(regexp.QuoteMeta(delim) + "(" + slotTokenName + ")" + regexp.QuoteMeta(delim))
	if err != nil {
		return nil, errors.Wrap(err, "text event: slot token pattern")
	}

	e := &TextEvent{templates: templates, delim: delim, spec: spec}
	for _, template := range templates {
		var names []string
		for _, match := range pattern.FindAllStringSubmatch(template, -1) {
			name := match[1]
			if !d.HasSlot(name) {
				return nil, errors.Errorf("text event: slot %q in template %q is not an available slot", name, template)
			}
			names = append(names, name)
		}
		e.tokens = append(e.tokens, names)
	}
	return e, nil
}

func (e *TextEvent) Eval(_ *Intent, _ []Entity, slots Slots) EventOutput {
	idx := 0
	if len(e.templates) > 1 {
		idx = rand.Intn(len(e.templates))
	}
	text := e.templates[idx]
	for _, name := range e.tokens[idx] {
		if value, ok := slots[name]; ok {
			text = strings.ReplaceAll(text, e.delim+name+e.delim, value)
		}
	}
	return EventOutput{Text: text}
}

func (e *TextEvent) Kind() string { return KindText }
func (e *TextEvent) Spec() any    { return e.spec }

// SetSlotEvent computes a slot patch from per-slot directives: a literal
// string, an explicit null (clear), from_intent, or from_entity.
type SetSlotEvent struct {
	assignments []slotAssignment
	spec        any
}

type slotAssignment struct {
	slot      string
	kind      assignmentKind
	literal   string
	intentMap map[string]string // from_intent value map, nil means "use intent name"
	entityMap map[string]any    // entity name -> true | replacement string
}

type assignmentKind int

const (
	assignLiteral assignmentKind = iota
	assignClear
	assignFromIntent
	assignFromEntity
)

func NewSetSlotEvent(spec any, d *Domain) (*SetSlotEvent, error) {
	directives, ok := specMap(spec)
	if !ok {
		return nil, errors.Errorf("set_slot event must be a mapping, got %v", spec)
	}
	e := &SetSlotEvent{spec: spec}
	for _, slot := range sortedKeys(directives) {
		if !d.HasSlot(slot) {
			return nil, errors.Errorf("set_slot event: slot %q is not an available slot", slot)
		}
		assignment, err := parseSlotDirective(slot, directives[slot], d)
		if err != nil {
			return nil, err
		}
		e.assignments = append(e.assignments, assignment)
	}
	return e, nil
}

func parseSlotDirective(slot string, directive any, d *Domain) (slotAssignment, error) {
	a := slotAssignment{slot: slot}

	switch value := directive.(type) {
	case nil:
		a.kind = assignClear
		return a, nil
	case string:
		a.kind = assignLiteral
		a.literal = value
		return a, nil
	case map[string]any:
		if fromIntent, ok := value["from_intent"]; ok {
			a.kind = assignFromIntent
			switch source := fromIntent.(type) {
			case bool:
				if !source {
					return a, errors.Errorf("set_slot event: slot %q: from_intent false has no meaning", slot)
				}
				return a, nil
			case map[string]any:
				a.intentMap = make(map[string]string, len(source))
				for intentName, mapped := range source {
					if !d.HasIntent(intentName) {
						return a, errors.Errorf("set_slot event: slot %q: intent %q is not an available intent", slot, intentName)
					}
					text, ok := specString(mapped)
					if !ok {
						return a, errors.Errorf("set_slot event: slot %q: from_intent value for %q must be a string, got %v", slot, intentName, mapped)
					}
					a.intentMap[intentName] = text
				}
				return a, nil
			}
			return a, errors.Errorf("set_slot event: slot %q: from_intent must be true or a mapping, got %v", slot, fromIntent)
		}
		if fromEntity, ok := value["from_entity"]; ok {
			source, ok := specMap(fromEntity)
			if !ok {
				return a, errors.Errorf("set_slot event: slot %q: from_entity must be a mapping, got %v", slot, fromEntity)
			}
			a.kind = assignFromEntity
			a.entityMap = make(map[string]any, len(source))
			for entityName, mapped := range source {
				if !d.HasEntity(entityName) {
					return a, errors.Errorf("set_slot event: slot %q: entity %q is not an available entity", slot, entityName)
				}
				switch mappedValue := mapped.(type) {
				case bool:
					if !mappedValue {
						return a, errors.Errorf("set_slot event: slot %q: from_entity value for %q cannot be false", slot, entityName)
					}
				case string:
				default:
					return a, errors.Errorf("set_slot event: slot %q: from_entity value for %q must be true or a string, got %v", slot, entityName, mapped)
				}
				a.entityMap[entityName] = mapped
			}
			return a, nil
		}
		return a, errors.Errorf("set_slot event: slot %q: mapping directive must carry from_intent or from_entity", slot)
	}
	return a, errors.Errorf("set_slot event: slot %q: unsupported directive %v", slot, directive)
}

func (e *SetSlotEvent) Eval(intent *Intent, entities []Entity, _ Slots) EventOutput {
	patch := make(SlotPatch)
	for _, a := range e.assignments {
		switch a.kind {
		case assignLiteral:
			patch[a.slot] = StringPtr(a.literal)
		case assignClear:
			patch[a.slot] = nil
		case assignFromIntent:
			if a.intentMap == nil {
				patch[a.slot] = StringPtr(intent.Name)
				continue
			}
			if mapped, ok := a.intentMap[intent.Name]; ok {
				patch[a.slot] = StringPtr(mapped)
			}
		case assignFromEntity:
			for _, entity := range entities {
				mapped, ok := a.entityMap[entity.Name]
				if !ok {
					continue
				}
				if use, isBool := mapped.(bool); isBool && use {
					patch[a.slot] = StringPtr(entity.Text)
					break
				}
				patch[a.slot] = StringPtr(mapped.(string))
			}
		}
	}
	return EventOutput{SetSlot: patch}
}

func (e *SetSlotEvent) Kind() string { return KindSetSlot }
func (e *SetSlotEvent) Spec() any    { return e.spec }

// RequestSlotEvent marks a slot as the one to solicit from the user next.
type RequestSlotEvent struct {
	slot string
}

func NewRequestSlotEvent(spec any, d *Domain) (*RequestSlotEvent, error) {
	slot, ok := specString(spec)
	if !ok {
		return nil, errors.Errorf("request_slot event must be a slot name, got %v", spec)
	}
	if !d.HasSlot(slot) {
		return nil, errors.Errorf("request_slot event: slot %q is not an available slot", slot)
	}
	return &RequestSlotEvent{slot: slot}, nil
}

func (e *RequestSlotEvent) Eval(_ *Intent, _ []Entity, _ Slots) EventOutput {
	return EventOutput{RequestSlot: e.slot}
}

func (e *RequestSlotEvent) Kind() string { return KindRequestSlot }
func (e *RequestSlotEvent) Spec() any    { return e.slot }

// TriggerIntentEvent redirects the flow to another intent, either a fixed one
// or one read from a slot at call time. An unset slot resolves to the
// fallback intent.
type TriggerIntentEvent struct {
	name     string
	fromSlot string
	spec     any
}

func NewTriggerIntentEvent(spec any, d *Domain) (*TriggerIntentEvent, error) {
	switch value := spec.(type) {
	case string:
		if !d.HasIntent(value) {
			return nil, errors.Errorf("trigger_intent event: intent %q is not an available intent", value)
		}
		return &TriggerIntentEvent{name: value, spec: spec}, nil
	case map[string]any:
		fromSlot, ok := value["from_slot"]
		if !ok {
			return nil, errors.Errorf("trigger_intent event: only a fixed intent or from_slot is supported, got %v", spec)
		}
		slot, ok := specString(fromSlot)
		if !ok {
			return nil, errors.Errorf("trigger_intent event: from_slot must be a slot name, got %v", fromSlot)
		}
		if !d.HasSlot(slot) {
			return nil, errors.Errorf("trigger_intent event: slot %q is not an available slot", slot)
		}
		return &TriggerIntentEvent{fromSlot: slot, spec: spec}, nil
	}
	return nil, errors.Errorf("trigger_intent event: unsupported payload %v", spec)
}

func (e *TriggerIntentEvent) Eval(_ *Intent, _ []Entity, slots Slots) EventOutput {
	name := e.name
	if e.fromSlot != "" {
		value, ok := slots[e.fromSlot]
		if !ok || value == "" {
			name = DefaultIntent
		} else {
			name = value
		}
	}
	return EventOutput{TriggerIntent: name}
}

func (e *TriggerIntentEvent) Kind() string { return KindTriggerIntent }
func (e *TriggerIntentEvent) Spec() any    { return e.spec }

// ActionEvent defers to a named action from the action dictionary. Action
// names live outside the domain; an unknown name is handled by the driver at
// dispatch time.
type ActionEvent struct {
	name string
}

func NewActionEvent(spec any) (*ActionEvent, error) {
	name, ok := specString(spec)
	if !ok || name == "" {
		return nil, errors.Errorf("action event must be a non-empty action name, got %v", spec)
	}
	return &ActionEvent{name: name}, nil
}

func (e *ActionEvent) Eval(_ *Intent, _ []Entity, _ Slots) EventOutput {
	return EventOutput{Action: e.name}
}

func (e *ActionEvent) Kind() string { return KindAction }
func (e *ActionEvent) Spec() any    { return e.name }
