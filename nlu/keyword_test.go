package nlu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowchat-io/flowchat/flow"
)

func testRules() ([]KeywordRule, []EntityRule) {
	rules := []KeywordRule{
		{Intent: "greet", Keywords: []string{"hello", "hi"}},
		{Intent: "book", Keywords: []string{"book", "trip"}},
	}
	entities := []EntityRule{
		{Entity: "city", Keywords: []string{"berlin", "paris"}},
	}
	return rules, entities
}

func TestKeywordClassifier(t *testing.T) {
	rules, entityRules := testRules()
	c := NewKeywordClassifier(rules, entityRules)

	result, err := c.Classify(context.Background(), "Hello there")
	require.NoError(t, err)
	assert.Equal(t, "greet", result.Intent)
	assert.InDelta(t, 0.5, result.Ranking["greet"], 0.001, "one of two keywords matched")

	result, err = c.Classify(context.Background(), "book a trip")
	require.NoError(t, err)
	assert.Equal(t, "book", result.Intent)
	assert.InDelta(t, 1.0, result.Ranking["book"], 0.001)
}

func TestKeywordClassifierEntities(t *testing.T) {
	rules, entityRules := testRules()
	c := NewKeywordClassifier(rules, entityRules)

	result, err := c.Classify(context.Background(), "book a trip to Berlin")
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	entity := result.Entities[0]
	assert.Equal(t, "city", entity.Name)
	assert.Equal(t, "Berlin", entity.Text, "the original casing is preserved")
	assert.Equal(t, "Berlin", "book a trip to Berlin"[entity.Start:entity.End])
}

func TestKeywordClassifierEntityOffsetsUnicode(t *testing.T) {
	c := NewKeywordClassifier(nil, []EntityRule{
		{Entity: "city", Keywords: []string{"berlin", "istanbul"}},
	})

	// "İ" grows by a byte under case folding; the span offsets must index
	// the original utterance, not a folded copy.
	utterance := "İzmir or BERLIN"
	result, err := c.Classify(context.Background(), utterance)
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	entity := result.Entities[0]
	assert.Equal(t, "BERLIN", entity.Text)
	assert.Equal(t, "BERLIN", utterance[entity.Start:entity.End])

	// A fold that changes byte length is a miss, never a corrupted span.
	result, err = c.Classify(context.Background(), "fly to İSTANBUL")
	require.NoError(t, err)
	assert.Empty(t, result.Entities)
}

func TestKeywordClassifierNoMatch(t *testing.T) {
	rules, entityRules := testRules()
	c := NewKeywordClassifier(rules, entityRules)

	result, err := c.Classify(context.Background(), "completely unrelated")
	require.NoError(t, err)
	assert.Empty(t, result.Intent)
	assert.Empty(t, result.Ranking)
	assert.Empty(t, result.Entities)
}

func TestDomainRules(t *testing.T) {
	d, err := flow.NewDomain(
		[]string{"default", "sick_leave"},
		[]string{"working_type"},
		nil,
	)
	require.NoError(t, err)

	rules, entityRules := DomainRules(d)
	require.Len(t, rules, 1, "the default intent gets no rule")
	assert.Equal(t, "sick_leave", rules[0].Intent)
	assert.Equal(t, []string{"sick leave"}, rules[0].Keywords)
	require.Len(t, entityRules, 1)
	assert.Equal(t, "working_type", entityRules[0].Entity)

	c := NewKeywordClassifier(rules, entityRules)
	result, err := c.Classify(context.Background(), "how do I take sick leave?")
	require.NoError(t, err)
	assert.Equal(t, "sick_leave", result.Intent)
}
