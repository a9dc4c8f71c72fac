package flow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testFlowConfig = `
actions_map:
  - intent: default
    triggers:
      - action: default
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
requests_map:
  - slot: city
    text:
      - "Which city?"
    redirect:
      - slot:
          city: true
        set_slot:
          request_slot: null
        trigger_intent: book
`

func testFlowMap(t *testing.T) *FlowMap {
	t.Helper()
	d := testDomain(t)
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(testFlowConfig), &cfg))
	f, err := NewFlowMap(&cfg, d)
	require.NoError(t, err)
	return f
}

func TestFlowMapLookups(t *testing.T) {
	f := testFlowMap(t)

	_, ok := f.Action("book")
	assert.True(t, ok)
	_, ok = f.Action("unknown")
	assert.False(t, ok)

	_, ok = f.Request("city")
	assert.True(t, ok)
	_, ok = f.Request("guest")
	assert.False(t, ok)

	priority, ok := f.Priority("greet")
	require.True(t, ok)
	assert.Equal(t, 2, priority)
	priority, ok = f.Priority("book")
	require.True(t, ok)
	assert.Equal(t, 1, priority)
	_, ok = f.Priority("restart")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"default", "greet", "book"}, f.IntentNames())
}

func TestFlowMapDuplicateEntries(t *testing.T) {
	d := testDomain(t)

	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(`
actions_map:
  - intent: greet
    triggers:
      - text:
          - "hi"
  - intent: greet
    triggers:
      - text:
          - "hello"
`), &cfg))
	_, err := NewFlowMap(&cfg, d)
	assert.Error(t, err)
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()

	domainYAML := `
intents:
  - default
  - greet
  - restart
  - book
entities:
  - city
slots:
  - city
  - guest
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "domain.yaml"), []byte(domainYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flow.yaml"), []byte(testFlowConfig), 0o600))

	loader := NewLoader(dir)
	f, err := loader.LoadFlowMap("domain.yaml", "flow.yaml")
	require.NoError(t, err)
	assert.True(t, f.Domain.HasIntent("book"))
	assert.True(t, f.Domain.HasSlot(RequestSlotName), "reserved slot is registered implicitly")

	_, err = loader.LoadFlowMap("missing.yaml", "flow.yaml")
	assert.Error(t, err)
}

func TestDomainValidation(t *testing.T) {
	_, err := NewDomain([]string{"greet"}, nil, nil)
	assert.Error(t, err, "the default intent is mandatory")

	d, err := NewDomain([]string{"default"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, d.HasSlot(RequestSlotName))
	assert.Equal(t, DefaultDelimiter, d.Delimiter)
}
