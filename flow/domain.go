// Package flow implements the declarative dialogue flow engine: a domain of
// recognised intent/entity/slot names, condition and event primitives, and the
// compiled ActionMap/RequestMap registry that drives a conversation.
package flow

import (
	"github.com/pkg/errors"
)

const (
	// DefaultIntent is the fallback intent. Every domain must declare it.
	DefaultIntent = "default"

	// RequestSlotName is the reserved slot that records which slot is
	// currently being asked for.
	RequestSlotName = "request_slot"

	// DefaultDelimiter wraps slot names inside text templates, e.g. __name__.
	DefaultDelimiter = "__"
)

// Domain is the read-only triplet of recognised intent, entity and slot names.
// Every flow component validates its configuration against it at construction.
type Domain struct {
	Intents  []string `yaml:"intents"`
	Entities []string `yaml:"entities"`
	Slots    []string `yaml:"slots"`

	// Delimiter used for slot interpolation in text templates.
	Delimiter string `yaml:"delimiter"`

	intentSet map[string]struct{}
	entitySet map[string]struct{}
	slotSet   map[string]struct{}
}

// NewDomain builds a validated domain. The "default" intent is mandatory and
// the reserved "request_slot" slot is registered implicitly.
func NewDomain(intents, entities, slots []string) (*Domain, error) {
	d := &Domain{
		Intents:   intents,
		Entities:  entities,
		Slots:     slots,
		Delimiter: DefaultDelimiter,
	}
	if err := d.build(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Domain) build() error {
	if d.Delimiter == "" {
		d.Delimiter = DefaultDelimiter
	}

	d.intentSet = make(map[string]struct{}, len(d.Intents))
	for _, name := range d.Intents {
		if name == "" {
			return errors.New("domain: empty intent name")
		}
		d.intentSet[name] = struct{}{}
	}
	if _, ok := d.intentSet[DefaultIntent]; !ok {
		return errors.Errorf("domain: required intent %q is missing", DefaultIntent)
	}

	d.entitySet = make(map[string]struct{}, len(d.Entities))
	for _, name := range d.Entities {
		if name == "" {
			return errors.New("domain: empty entity name")
		}
		d.entitySet[name] = struct{}{}
	}

	d.slotSet = make(map[string]struct{}, len(d.Slots)+1)
	for _, name := range d.Slots {
		if name == "" {
			return errors.New("domain: empty slot name")
		}
		d.slotSet[name] = struct{}{}
	}
	if _, ok := d.slotSet[RequestSlotName]; !ok {
		d.Slots = append(d.Slots, RequestSlotName)
		d.slotSet[RequestSlotName] = struct{}{}
	}

	return nil
}

func (d *Domain) HasIntent(name string) bool {
	_, ok := d.intentSet[name]
	return ok
}

func (d *Domain) HasEntity(name string) bool {
	_, ok := d.entitySet[name]
	return ok
}

func (d *Domain) HasSlot(name string) bool {
	_, ok := d.slotSet[name]
	return ok
}

// Intent is the classification of the latest user utterance.
type Intent struct {
	Name     string             `json:"name"`
	Ranking  map[string]float64 `json:"intent_ranking"`
	Priority int                `json:"priority"`
}

// Entity is a named span extracted from the user utterance.
type Entity struct {
	Name    string `json:"entity_name"`
	Text    string `json:"text"`
	Start   int    `json:"start,omitempty"`
	End     int    `json:"end,omitempty"`
	Synonym string `json:"synonym,omitempty"`
}

// Slots holds the named persistent values of a conversation. A slot is "set"
// when its key is present.
type Slots map[string]string

// SlotPatch is a pending batch of slot assignments. A nil value clears the
// slot; the distinction survives JSON round-trips.
type SlotPatch map[string]*string

// IsSet reports whether the named slot currently holds a value.
func (s Slots) IsSet(name string) bool {
	_, ok := s[name]
	return ok
}

// Apply merges the patch into the slots, deleting cleared entries.
func (s Slots) Apply(patch SlotPatch) {
	for name, value := range patch {
		if value == nil {
			delete(s, name)
			continue
		}
		s[name] = *value
	}
}

// Clone returns an independent copy of the slots.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of the patch.
func (p SlotPatch) Clone() SlotPatch {
	if p == nil {
		return nil
	}
	out := make(SlotPatch, len(p))
	for k, v := range p {
		if v == nil {
			out[k] = nil
			continue
		}
		value := *v
		out[k] = &value
	}
	return out
}

// StringPtr is a convenience for building slot patches.
func StringPtr(s string) *string {
	return &s
}
