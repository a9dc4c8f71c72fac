package dialog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowchat-io/flowchat/flow"
	"github.com/flowchat-io/flowchat/nlu"
)

func TestSnapshotRoundTrip(t *testing.T) {
	d := testDomain(t)

	state := NewConversationState("u1", "Alice", "v1")
	state.Intent = flow.Intent{Name: "book", Ranking: map[string]float64{"book": 0.8}, Priority: 1}
	state.Entities = []flow.Entity{{Name: "city", Text: "berlin"}}
	state.Slots["city"] = "berlin"
	state.LoopStack = 3
	state.Response = &MessageOutput{Text: "booked for berlin"}

	data, err := json.Marshal(state.Export())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, err := NewStateFromSnapshot(snap, d)
	require.NoError(t, err)
	assert.Equal(t, state.UserID, restored.UserID)
	assert.Equal(t, state.Intent.Name, restored.Intent.Name)
	assert.Equal(t, state.Slots, restored.Slots)
	assert.Equal(t, state.LoopStack, restored.LoopStack)
	require.NotNil(t, restored.Response)
	assert.Equal(t, "booked for berlin", restored.Response.Text)
}

func TestSnapshotRoundTripWithButton(t *testing.T) {
	// Run a turn that leaves a button pending, persist the state, restore it,
	// and answer the button on the restored state.
	classifier := &stubClassifier{results: []*nlu.Result{
		{Intent: "book", Ranking: map[string]float64{"book": 0.8}},
	}}
	c := newTestController(t, classifier)
	state := NewConversationState("u1", "Alice", "test")

	_, err := c.Respond(context.Background(), state, "book a trip")
	require.NoError(t, err)
	require.NotNil(t, state.Button)

	data, err := json.Marshal(state.Export())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	restored, err := NewStateFromSnapshot(snap, testDomain(t))
	require.NoError(t, err)
	require.NotNil(t, restored.Button)

	out, err := c.Respond(context.Background(), restored, "paris")
	require.NoError(t, err)
	assert.Equal(t, "booked for paris", out.Text)
}

func TestSnapshotValidation(t *testing.T) {
	d := testDomain(t)

	_, err := NewStateFromSnapshot(Snapshot{}, d)
	assert.Error(t, err, "user_id is required")

	_, err = NewStateFromSnapshot(Snapshot{
		UserID: "u1",
		Intent: flow.Intent{Name: "martian"},
	}, d)
	assert.Error(t, err, "unknown intent")

	_, err = NewStateFromSnapshot(Snapshot{
		UserID: "u1",
		Slots:  flow.Slots{"martian": "x"},
	}, d)
	assert.Error(t, err, "unknown slot")

	_, err = NewStateFromSnapshot(Snapshot{
		UserID:    "u1",
		LoopStack: LoopMax + 1,
	}, d)
	assert.Error(t, err, "loop stack out of range")

	_, err = NewStateFromSnapshot(Snapshot{
		UserID:   "u1",
		Synonyms: map[string]string{"x": "y"},
	}, d)
	assert.Error(t, err, "synonyms without a button")
}

func TestSnapshotDefaults(t *testing.T) {
	d := testDomain(t)

	restored, err := NewStateFromSnapshot(Snapshot{UserID: "u1"}, d)
	require.NoError(t, err)
	assert.Equal(t, flow.DefaultIntent, restored.Intent.Name)
	assert.NotNil(t, restored.Slots)
	assert.NotNil(t, restored.Intent.Ranking)
}

func TestCloneIsolation(t *testing.T) {
	state := NewConversationState("u1", "Alice", "v1")
	state.Slots["city"] = "berlin"
	state.Events = flow.EventOutput{SetSlot: flow.SlotPatch{"city": flow.StringPtr("paris")}}

	clone := state.clone()
	clone.Slots["city"] = "rome"
	clone.Events.SetSlot["city"] = nil
	clone.Intent.Ranking["greet"] = 1

	assert.Equal(t, "berlin", state.Slots["city"])
	require.NotNil(t, state.Events.SetSlot["city"])
	assert.Equal(t, "paris", *state.Events.SetSlot["city"])
	assert.Empty(t, state.Intent.Ranking)
}
