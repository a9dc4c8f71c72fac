package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeActionSpec(t *testing.T, src string) ActionSpec {
	t.Helper()
	var spec ActionSpec
	require.NoError(t, yaml.Unmarshal([]byte(src), &spec))
	return spec
}

func decodeRequestSpec(t *testing.T, src string) RequestSpec {
	t.Helper()
	var spec RequestSpec
	require.NoError(t, yaml.Unmarshal([]byte(src), &spec))
	return spec
}

func TestActionMapFirstFiringTriggerWins(t *testing.T) {
	d := testDomain(t)
	spec := decodeActionSpec(t, `
intent: book
triggers:
  - slot:
      city: "berlin"
    text:
      - "city trip"
  - text:
      - "generic trip"
`)
	m, err := NewActionMap(spec, d)
	require.NoError(t, err)

	intent := &Intent{Name: "book"}
	out := m.Eval(intent, nil, Slots{"city": "berlin"})
	assert.Equal(t, "city trip", out.Text)

	out = m.Eval(intent, nil, Slots{})
	assert.Equal(t, "generic trip", out.Text)
}

func TestActionMapPreStepsVisibleToTriggers(t *testing.T) {
	d := testDomain(t)
	spec := decodeActionSpec(t, `
intent: book
set_slot:
  city:
    from_entity:
      city: true
triggers:
  - slot:
      city: true
    text:
      - "going to __city__"
  - request_slot: city
`)
	m, err := NewActionMap(spec, d)
	require.NoError(t, err)

	intent := &Intent{Name: "book"}

	// With an extracted entity the pre-step fills the slot and the first
	// trigger observes it within the same evaluation.
	slots := Slots{}
	out := m.Eval(intent, []Entity{{Name: "city", Text: "Berlin"}}, slots)
	assert.Equal(t, "going to Berlin", out.Text)
	assert.Equal(t, "Berlin", slots["city"])
	require.NotNil(t, out.SetSlot["city"], "the assignment is also reported upstream")

	// Without the entity the request_slot fallback fires.
	out = m.Eval(intent, nil, Slots{})
	assert.Equal(t, "city", out.RequestSlot)
}

func TestActionMapPriority(t *testing.T) {
	d := testDomain(t)

	m, err := NewActionMap(decodeActionSpec(t, `
intent: book
priority: 3
triggers:
  - text:
      - "hi"
`), d)
	require.NoError(t, err)
	intent := &Intent{Name: "book"}
	m.Eval(intent, nil, Slots{})
	assert.Equal(t, 3, intent.Priority)

	// Default priority is 1.
	m, err = NewActionMap(decodeActionSpec(t, `
intent: greet
triggers:
  - text:
      - "hi"
`), d)
	require.NoError(t, err)
	m.Eval(intent, nil, Slots{})
	assert.Equal(t, 1, intent.Priority)
}

func TestActionMapValidation(t *testing.T) {
	d := testDomain(t)

	_, err := NewActionMap(decodeActionSpec(t, `
intent: unknown
triggers:
  - text:
      - "hi"
`), d)
	assert.Error(t, err)

	_, err = NewActionMap(decodeActionSpec(t, `
intent: book
triggers: []
`), d)
	assert.Error(t, err)
}

func TestRequestMapStartupPrompts(t *testing.T) {
	d := testDomain(t)
	m, err := NewRequestMap(decodeRequestSpec(t, `
slot: city
text:
  - "Which city?"
redirect:
  - slot:
      city: true
    set_slot:
      request_slot: null
    trigger_intent: book
`), d)
	require.NoError(t, err)

	intent := &Intent{Name: "book"}

	// First entry: neither city nor request_slot set, the prompt fires and the
	// pending request is recorded.
	out := m.Eval(intent, nil, Slots{})
	assert.Equal(t, "Which city?", out.Text)
	require.NotNil(t, out.SetSlot[RequestSlotName])
	assert.Equal(t, "city", *out.SetSlot[RequestSlotName])
}

func TestRequestMapRedirect(t *testing.T) {
	d := testDomain(t)
	m, err := NewRequestMap(decodeRequestSpec(t, `
slot: city
text:
  - "Which city?"
redirect:
  - slot:
      city: true
    set_slot:
      request_slot: null
    trigger_intent: book
`), d)
	require.NoError(t, err)

	intent := &Intent{Name: "book"}

	slots := Slots{"city": "berlin", RequestSlotName: "city"}
	out := m.Eval(intent, nil, slots)
	assert.Equal(t, "book", out.TriggerIntent)
	require.Contains(t, out.SetSlot, RequestSlotName)
	assert.Nil(t, out.SetSlot[RequestSlotName], "the pending request is cleared")
}

func TestRequestMapValidation(t *testing.T) {
	d := testDomain(t)

	// Both prompts at once.
	_, err := NewRequestMap(decodeRequestSpec(t, `
slot: city
text:
  - "Which city?"
button:
  text: "Which city?"
  button:
    - title: "Berlin"
redirect:
  - trigger_intent: book
`), d)
	assert.Error(t, err)

	// No prompt at all.
	_, err = NewRequestMap(decodeRequestSpec(t, `
slot: city
redirect:
  - trigger_intent: book
`), d)
	assert.Error(t, err)

	// No redirect triggers.
	_, err = NewRequestMap(decodeRequestSpec(t, `
slot: city
text:
  - "Which city?"
redirect: []
`), d)
	assert.Error(t, err)
}
