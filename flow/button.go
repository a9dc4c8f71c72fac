package flow

import (
	"strings"

	"github.com/pkg/errors"
)

// ButtonOutput is the payload of a button effect: a prompt text, the option
// titles in declared order, one trigger per title, and a synonym table for
// alternate accepted titles. Synonym keys are stored case-folded; matching is
// case-insensitive exact equality.
type ButtonOutput struct {
	Text     string                 `json:"text"`
	Titles   []string               `json:"titles"`
	Specs    map[string]TriggerSpec `json:"triggers"`
	Synonyms map[string]string      `json:"synonyms,omitempty"`

	triggers map[string]*Trigger
}

// Trigger resolves a title (case-insensitive) to its trigger.
func (b *ButtonOutput) Trigger(title string) (*Trigger, bool) {
	for key, trigger := range b.triggers {
		if strings.EqualFold(key, title) {
			return trigger, true
		}
	}
	return nil, false
}

// ResolveSynonym translates an alternate title to its canonical one.
func (b *ButtonOutput) ResolveSynonym(message string) (string, bool) {
	title, ok := b.Synonyms[strings.ToLower(message)]
	return title, ok
}

// Rehydrate rebuilds the runtime triggers from the persisted specs. Needed
// after a ButtonOutput is decoded from a conversation snapshot.
func (b *ButtonOutput) Rehydrate(d *Domain) error {
	b.triggers = make(map[string]*Trigger, len(b.Specs))
	for title, spec := range b.Specs {
		trigger, err := NewOptionTrigger(spec, d)
		if err != nil {
			return errors.Wrapf(err, "button option %q", title)
		}
		b.triggers[title] = trigger
	}
	return nil
}

// ButtonEvent prompts the user with a list of selectable options. Each option
// carries a title, optional synonyms, and an optional effect bundle fired
// when the option is chosen.
type ButtonEvent struct {
	text    string
	options []buttonOption
	spec    any
}

type buttonOption struct {
	title    string
	synonyms []string
	spec     TriggerSpec
	trigger  *Trigger
}

// Option sub-payloads are restricted to these effect kinds.
var buttonOptionKinds = []string{KindText, KindSetSlot, KindTriggerIntent}

func NewButtonEvent(spec any, d *Domain) (*ButtonEvent, error) {
	payload, ok := specMap(spec)
	if !ok {
		return nil, errors.Errorf("button event must be a mapping, got %v", spec)
	}
	text, ok := specString(payload["text"])
	if !ok || text == "" {
		return nil, errors.Errorf("button event must carry a text prompt, at %v", spec)
	}
	rawOptions, ok := specList(payload["button"])
	if !ok || len(rawOptions) == 0 {
		return nil, errors.Errorf("button event must carry a non-empty option list, at %v", spec)
	}

	e := &ButtonEvent{text: text, spec: spec}
	for _, rawOption := range rawOptions {
		optionMap, ok := specMap(rawOption)
		if !ok {
			return nil, errors.Errorf("button option must be a mapping, got %v", rawOption)
		}
		option, err := parseButtonOption(optionMap, d)
		if err != nil {
			return nil, err
		}
		e.options = append(e.options, option)
	}
	return e, nil
}

func parseButtonOption(optionMap map[string]any, d *Domain) (buttonOption, error) {
	var option buttonOption

	title, ok := specString(optionMap["title"])
	if !ok || title == "" {
		return option, errors.Errorf("button option is missing a title, at %v", optionMap)
	}
	option.title = title

	if raw, ok := optionMap["synonym"]; ok {
		synonyms, ok := specStringList(raw)
		if !ok {
			return option, errors.Errorf("button option %q: synonym must be a list of strings, got %v", title, raw)
		}
		option.synonyms = synonyms
	}

	for _, kind := range buttonOptionKinds {
		if payload, ok := optionMap[kind]; ok {
			option.spec.Steps = append(option.spec.Steps, Step{Kind: kind, Spec: payload})
		}
	}
	for key := range optionMap {
		switch key {
		case "title", "synonym", KindText, KindSetSlot, KindTriggerIntent:
		default:
			return option, errors.Errorf("button option %q: unsupported key %q", title, key)
		}
	}

	trigger, err := NewOptionTrigger(option.spec, d)
	if err != nil {
		return option, errors.Wrapf(err, "button option %q", title)
	}
	option.trigger = trigger
	return option, nil
}

func (e *ButtonEvent) Eval(_ *Intent, _ []Entity, _ Slots) EventOutput {
	out := &ButtonOutput{
		Text:     e.text,
		Specs:    make(map[string]TriggerSpec, len(e.options)),
		triggers: make(map[string]*Trigger, len(e.options)),
	}
	for _, option := range e.options {
		out.Titles = append(out.Titles, option.title)
		out.Specs[option.title] = option.spec
		out.triggers[option.title] = option.trigger
		for _, synonym := range option.synonyms {
			if out.Synonyms == nil {
				out.Synonyms = make(map[string]string)
			}
			out.Synonyms[strings.ToLower(synonym)] = option.title
		}
	}
	return EventOutput{Button: out}
}

func (e *ButtonEvent) Kind() string { return KindButton }
func (e *ButtonEvent) Spec() any    { return e.spec }
