package dialog

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flowchat-io/flowchat/flow"
	"github.com/flowchat-io/flowchat/flow/actions"
	"github.com/flowchat-io/flowchat/nlu"
)

const testFlowConfig = `
actions_map:
  - intent: default
    triggers:
      - action: default
  - intent: restart
    triggers:
      - action: restart
  - intent: greet
    priority: 2
    triggers:
      - text:
          - "hi there"
  - intent: book
    set_slot:
      city:
        from_entity:
          city: true
    triggers:
      - slot:
          city: true
        text:
          - "booked for __city__"
      - request_slot: city
  - intent: loop
    triggers:
      - trigger_intent: loop
requests_map:
  - slot: city
    button:
      text: "Which city?"
      button:
        - title: "Berlin"
          synonym:
            - "the german one"
          set_slot:
            city: "berlin"
        - title: "Paris"
          set_slot:
            city: "paris"
    redirect:
      - slot:
          city: true
        set_slot:
          request_slot: null
        trigger_intent: book
`

func testDomain(t *testing.T) *flow.Domain {
	t.Helper()
	d, err := flow.NewDomain(
		[]string{"default", "greet", "restart", "book", "loop"},
		[]string{"city"},
		[]string{"city"},
	)
	require.NoError(t, err)
	return d
}

func testFlowMap(t *testing.T) *flow.FlowMap {
	t.Helper()
	var cfg flow.Config
	require.NoError(t, yaml.Unmarshal([]byte(testFlowConfig), &cfg))
	f, err := flow.NewFlowMap(&cfg, testDomain(t))
	require.NoError(t, err)
	return f
}

func testRegistry(t *testing.T, d *flow.Domain) *actions.Registry {
	t.Helper()
	registry, err := actions.Builtin(d, map[string]string{
		"book":  "Book a trip",
		"greet": "Greetings",
	})
	require.NoError(t, err)
	return registry
}

// stubClassifier returns canned results in order and fails when exhausted.
type stubClassifier struct {
	results []*nlu.Result
	errs    []error
	calls   int
}

func (s *stubClassifier) Classify(_ context.Context, _ string) (*nlu.Result, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx < len(s.results) {
		return s.results[idx], nil
	}
	return nil, errors.New("no more canned results")
}

func newTestController(t *testing.T, classifier nlu.Classifier) *Controller {
	t.Helper()
	f := testFlowMap(t)
	c, err := NewController(f, classifier, testRegistry(t, f.Domain), "test")
	require.NoError(t, err)
	return c
}

func TestRespondTextIntent(t *testing.T) {
	classifier := &stubClassifier{results: []*nlu.Result{
		{Intent: "greet", Ranking: map[string]float64{"greet": 0.9}},
	}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")

	out, err := c.Respond(context.Background(), state, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out.Text)
	assert.Empty(t, out.Button)
	assert.Equal(t, 0, state.LoopStack)
	assert.Equal(t, "greet", state.Intent.Name)
	assert.Equal(t, 2, state.Intent.Priority)
	assert.Equal(t, 1, classifier.calls, "the oracle is consulted once per turn")
}

func TestRespondEntityFillsSlot(t *testing.T) {
	classifier := &stubClassifier{results: []*nlu.Result{
		{
			Intent:   "book",
			Ranking:  map[string]float64{"book": 0.8},
			Entities: []flow.Entity{{Name: "city", Text: "berlin"}},
		},
	}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")

	out, err := c.Respond(context.Background(), state, "book a trip to berlin")
	require.NoError(t, err)
	assert.Equal(t, "booked for berlin", out.Text)
	assert.Equal(t, "berlin", state.Slots["city"])
}

func TestRespondSlotSolicitation(t *testing.T) {
	classifier := &stubClassifier{results: []*nlu.Result{
		{Intent: "book", Ranking: map[string]float64{"book": 0.8}},
	}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")

	// Turn 1: no entity, the flow asks for the city with options.
	out, err := c.Respond(context.Background(), state, "book a trip")
	require.NoError(t, err)
	assert.Equal(t, "Which city?", out.Text)
	assert.Equal(t, []string{"Berlin", "Paris"}, out.Button)
	assert.Equal(t, "city", state.Slots[flow.RequestSlotName])
	require.NotNil(t, state.Button)

	// Turn 2: the answer matches an option title, no classification happens.
	out, err = c.Respond(context.Background(), state, "berlin")
	require.NoError(t, err)
	assert.Equal(t, "booked for berlin", out.Text)
	assert.Equal(t, "berlin", state.Slots["city"])
	assert.False(t, state.Slots.IsSet(flow.RequestSlotName), "the pending request is cleared")
	assert.Nil(t, state.Button, "the option list is consumed")
	assert.Equal(t, 1, classifier.calls)
}

func TestRespondButtonSynonym(t *testing.T) {
	classifier := &stubClassifier{results: []*nlu.Result{
		{Intent: "book", Ranking: map[string]float64{"book": 0.8}},
	}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")

	_, err := c.Respond(context.Background(), state, "book a trip")
	require.NoError(t, err)

	out, err := c.Respond(context.Background(), state, "The German One")
	require.NoError(t, err)
	assert.Equal(t, "booked for berlin", out.Text)
}

func TestRespondButtonMismatchFallsThroughToNLU(t *testing.T) {
	classifier := &stubClassifier{results: []*nlu.Result{
		{Intent: "book", Ranking: map[string]float64{"book": 0.8}},
		{Intent: "greet", Ranking: map[string]float64{"greet": 0.9}},
	}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")

	_, err := c.Respond(context.Background(), state, "book a trip")
	require.NoError(t, err)

	// The reply matches no option, so it is classified normally.
	out, err := c.Respond(context.Background(), state, "hello again")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out.Text)
	assert.Equal(t, 2, classifier.calls)
}

func TestRespondUnknownIntentFallsBack(t *testing.T) {
	classifier := &stubClassifier{results: []*nlu.Result{
		{Intent: "nonsense", Ranking: map[string]float64{"book": 0.7, "greet": 0.3}},
	}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")

	out, err := c.Respond(context.Background(), state, "gibberish")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I don't understand, what do you mean?", out.Text)
	assert.Equal(t, []string{"Book a trip", "Greetings", "Restart"}, out.Button)
	assert.Equal(t, flow.DefaultIntent, state.Intent.Name)
}

func TestRespondClassifierFailure(t *testing.T) {
	classifier := &stubClassifier{errs: []error{errors.New("oracle down")}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")
	state.Slots["city"] = "berlin"

	out, err := c.Respond(context.Background(), state, "anything")
	require.NoError(t, err, "a classifier failure degrades to the fallback flow")
	assert.NotEmpty(t, out.Text)
	assert.Equal(t, flow.DefaultIntent, state.Intent.Name)
	assert.Equal(t, "berlin", state.Slots["city"], "slots survive classification failures")
}

func TestRespondLoopGuard(t *testing.T) {
	classifier := &stubClassifier{results: []*nlu.Result{
		{Intent: "loop", Ranking: map[string]float64{"loop": 1}},
	}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")

	// The loop intent re-triggers itself forever; the guard must cut it off
	// and the fallback flow still produces a user-visible response.
	out, err := c.Respond(context.Background(), state, "loop")
	require.NoError(t, err)
	assert.NotEmpty(t, out.Text)
	assert.LessOrEqual(t, state.LoopStack, LoopMax)
}

func TestRespondLoopGuardHardStop(t *testing.T) {
	// A flow whose fallback intent also loops forces the second guard trip.
	var cfg flow.Config
	require.NoError(t, yaml.Unmarshal([]byte(`
actions_map:
  - intent: default
    triggers:
      - trigger_intent: default
  - intent: restart
    triggers:
      - action: restart
`), &cfg))
	d, err := flow.NewDomain([]string{"default", "restart"}, nil, nil)
	require.NoError(t, err)
	f, err := flow.NewFlowMap(&cfg, d)
	require.NoError(t, err)
	registry, err := actions.Builtin(d, map[string]string{})
	require.NoError(t, err)
	c, err := NewController(f, registry2Classifier(), registry, "test")
	require.NoError(t, err)

	state := NewConversationState("u1", "Alice", "test")
	out, err := c.Respond(context.Background(), state, "anything")
	require.NoError(t, err)
	assert.Equal(t, fallbackText, out.Text)
	assert.Equal(t, 0, state.LoopStack)
}

func registry2Classifier() nlu.Classifier {
	return &stubClassifier{results: []*nlu.Result{
		{Intent: "default", Ranking: map[string]float64{}},
	}}
}

func TestRespondCancelledContextLeavesStateUntouched(t *testing.T) {
	classifier := &stubClassifier{results: []*nlu.Result{
		{Intent: "greet", Ranking: map[string]float64{"greet": 0.9}},
	}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Respond(ctx, state, "hello")
	require.Error(t, err)
	assert.Equal(t, flow.DefaultIntent, state.Intent.Name)
	assert.Empty(t, state.Slots)
}
