// Package dialog drives conversations: it owns the per-user conversation
// state, the turn reducer, and the bounded in-memory working set backed by
// the durable store.
package dialog

import (
	"github.com/pkg/errors"

	"github.com/flowchat-io/flowchat/flow"
)

// LoopMax bounds the number of flow reductions within one user turn.
const LoopMax = 10

// MessageOutput is the user-visible result of one turn: a text and, for
// button prompts, the option titles in declared order.
type MessageOutput struct {
	Text   string   `json:"text"`
	Button []string `json:"button,omitempty"`
}

// ConversationState is the running state of one user's conversation. It is
// mutated only inside the driver during a single turn and must be owned by
// one turn at a time.
type ConversationState struct {
	UserID   string
	UserName string
	Version  string

	Intent   flow.Intent
	Entities []flow.Entity
	Slots    flow.Slots

	// Events is the pending effects queue carried between reductions.
	Events flow.EventOutput

	// Button maps option titles to their triggers while a button prompt is
	// outstanding; ButtonSpecs carries the raw form for persistence and
	// Synonyms the case-folded alternate titles. All three are set and
	// cleared together.
	Button      map[string]*flow.Trigger
	ButtonSpecs map[string]flow.TriggerSpec
	Synonyms    map[string]string

	LoopStack int
	Response  *MessageOutput
}

// NewConversationState creates a fresh state with the fallback intent.
func NewConversationState(userID, userName, version string) *ConversationState {
	return &ConversationState{
		UserID:   userID,
		UserName: userName,
		Version:  version,
		Intent:   flow.Intent{Name: flow.DefaultIntent, Ranking: map[string]float64{}, Priority: 0},
		Slots:    make(flow.Slots),
	}
}

func (s *ConversationState) setButton(button *flow.ButtonOutput) {
	s.Button = make(map[string]*flow.Trigger, len(button.Titles))
	s.ButtonSpecs = make(map[string]flow.TriggerSpec, len(button.Titles))
	for title, spec := range button.Specs {
		trigger, _ := button.Trigger(title)
		s.Button[title] = trigger
		s.ButtonSpecs[title] = spec
	}
	s.Synonyms = button.Synonyms
}

func (s *ConversationState) clearButton() {
	s.Button = nil
	s.ButtonSpecs = nil
	s.Synonyms = nil
}

// clone returns a deep copy. The driver reduces a clone so a cancelled turn
// leaves the original state untouched.
func (s *ConversationState) clone() *ConversationState {
	out := &ConversationState{
		UserID:    s.UserID,
		UserName:  s.UserName,
		Version:   s.Version,
		Intent:    s.Intent,
		Slots:     s.Slots.Clone(),
		Events:    s.Events.Clone(),
		LoopStack: s.LoopStack,
	}
	out.Intent.Ranking = make(map[string]float64, len(s.Intent.Ranking))
	for k, v := range s.Intent.Ranking {
		out.Intent.Ranking[k] = v
	}
	out.Entities = append([]flow.Entity(nil), s.Entities...)
	if s.Button != nil {
		out.Button = make(map[string]*flow.Trigger, len(s.Button))
		out.ButtonSpecs = make(map[string]flow.TriggerSpec, len(s.ButtonSpecs))
		for title, trigger := range s.Button {
			out.Button[title] = trigger
			out.ButtonSpecs[title] = s.ButtonSpecs[title]
		}
	}
	if s.Synonyms != nil {
		out.Synonyms = make(map[string]string, len(s.Synonyms))
		for k, v := range s.Synonyms {
			out.Synonyms[k] = v
		}
	}
	if s.Response != nil {
		response := *s.Response
		response.Button = append([]string(nil), s.Response.Button...)
		out.Response = &response
	}
	return out
}

// replaceWith copies the reduced clone back into the receiver.
func (s *ConversationState) replaceWith(other *ConversationState) {
	*s = *other
}

// Snapshot is the serializable export of a ConversationState. Importing a
// snapshot yields an equivalent state: same invariants, same behavior under
// the driver.
type Snapshot struct {
	UserID    string                      `json:"user_id"`
	UserName  string                      `json:"user_name"`
	Version   string                      `json:"version"`
	Intent    flow.Intent                 `json:"intent"`
	Entities  []flow.Entity               `json:"entities"`
	Slots     flow.Slots                  `json:"slots"`
	Events    flow.EventOutput            `json:"events"`
	Button    map[string]flow.TriggerSpec `json:"button,omitempty"`
	Synonyms  map[string]string           `json:"synonym_dict,omitempty"`
	LoopStack int                         `json:"loop_stack"`
	Response  *MessageOutput              `json:"response,omitempty"`
}

// Export produces the serializable form of the state.
func (s *ConversationState) Export() Snapshot {
	return Snapshot{
		UserID:    s.UserID,
		UserName:  s.UserName,
		Version:   s.Version,
		Intent:    s.Intent,
		Entities:  s.Entities,
		Slots:     s.Slots,
		Events:    s.Events,
		Button:    s.ButtonSpecs,
		Synonyms:  s.Synonyms,
		LoopStack: s.LoopStack,
		Response:  s.Response,
	}
}

// NewStateFromSnapshot validates a snapshot against the domain and rebuilds
// the runtime state, including the button triggers.
func NewStateFromSnapshot(snap Snapshot, d *flow.Domain) (*ConversationState, error) {
	if snap.UserID == "" {
		return nil, errors.New("snapshot: user_id required")
	}
	if snap.Intent.Name == "" {
		snap.Intent = flow.Intent{Name: flow.DefaultIntent, Ranking: map[string]float64{}}
	}
	if !d.HasIntent(snap.Intent.Name) {
		return nil, errors.Errorf("snapshot: intent %q is not an available intent", snap.Intent.Name)
	}
	for name := range snap.Intent.Ranking {
		if !d.HasIntent(name) {
			return nil, errors.Errorf("snapshot: ranked intent %q is not an available intent", name)
		}
	}
	for _, entity := range snap.Entities {
		if !d.HasEntity(entity.Name) {
			return nil, errors.Errorf("snapshot: entity %q is not an available entity", entity.Name)
		}
	}
	for name := range snap.Slots {
		if !d.HasSlot(name) {
			return nil, errors.Errorf("snapshot: slot %q is not an available slot", name)
		}
	}
	if snap.LoopStack < 0 || snap.LoopStack > LoopMax {
		return nil, errors.Errorf("snapshot: loop_stack %d out of range [0, %d]", snap.LoopStack, LoopMax)
	}

	s := &ConversationState{
		UserID:    snap.UserID,
		UserName:  snap.UserName,
		Version:   snap.Version,
		Intent:    snap.Intent,
		Entities:  snap.Entities,
		Slots:     snap.Slots,
		Events:    snap.Events,
		LoopStack: snap.LoopStack,
		Response:  snap.Response,
	}
	if s.Intent.Ranking == nil {
		s.Intent.Ranking = map[string]float64{}
	}
	if s.Slots == nil {
		s.Slots = make(flow.Slots)
	}
	if s.Events.Button != nil {
		if err := s.Events.Button.Rehydrate(d); err != nil {
			return nil, errors.Wrap(err, "snapshot: pending button")
		}
	}

	if snap.Button != nil {
		s.Button = make(map[string]*flow.Trigger, len(snap.Button))
		s.ButtonSpecs = snap.Button
		for title, spec := range snap.Button {
			trigger, err := flow.NewOptionTrigger(spec, d)
			if err != nil {
				return nil, errors.Wrapf(err, "snapshot: button option %q", title)
			}
			s.Button[title] = trigger
		}
		for synonym, title := range snap.Synonyms {
			if _, ok := snap.Button[title]; !ok {
				return nil, errors.Errorf("snapshot: synonym %q points to unknown option %q", synonym, title)
			}
		}
		s.Synonyms = snap.Synonyms
	} else if len(snap.Synonyms) > 0 {
		return nil, errors.New("snapshot: synonym_dict without button")
	}

	return s, nil
}
