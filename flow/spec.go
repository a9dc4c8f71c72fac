package flow

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Step kinds. Conditions and events share one namespace inside a trigger
// mapping; the parser dispatches on the key.
const (
	KindSlotCondition   = "slot"
	KindEntityCondition = "entity"
	KindIntentCondition = "intent"

	KindText          = "text"
	KindButton        = "button"
	KindSetSlot       = "set_slot"
	KindRequestSlot   = "request_slot"
	KindTriggerIntent = "trigger_intent"
	KindAction        = "action"
)

func isConditionKind(kind string) bool {
	switch kind {
	case KindSlotCondition, KindEntityCondition, KindIntentCondition:
		return true
	}
	return false
}

func isEventKind(kind string) bool {
	switch kind {
	case KindText, KindButton, KindSetSlot, KindRequestSlot, KindTriggerIntent, KindAction:
		return true
	}
	return false
}

// Step is one declared condition or event inside a trigger, kept in its raw
// configuration form so triggers can be re-built from persisted state.
type Step struct {
	Kind string `json:"kind"`
	Spec any    `json:"spec"`
}

// TriggerSpec is the ordered raw form of a trigger. YAML decodes it from a
// mapping whose key order is preserved; JSON round-trips it as an array so
// the order also survives persistence.
type TriggerSpec struct {
	Steps []Step
}

// UnmarshalYAML decodes a trigger mapping, preserving the declared order of
// its keys.
func (t *TriggerSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("trigger must be a mapping, got yaml node kind %d", node.Kind)
	}
	t.Steps = t.Steps[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var key string
		if err := keyNode.Decode(&key); err != nil {
			return errors.Wrap(err, "trigger key")
		}
		var value any
		if err := valueNode.Decode(&value); err != nil {
			return errors.Wrapf(err, "trigger step %q", key)
		}
		t.Steps = append(t.Steps, Step{Kind: key, Spec: value})
	}
	return nil
}

// MarshalYAML re-emits the trigger as a mapping in declared order.
func (t TriggerSpec) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, step := range t.Steps {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(step.Kind); err != nil {
			return nil, err
		}
		valueNode := &yaml.Node{}
		if err := valueNode.Encode(step.Spec); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valueNode)
	}
	return node, nil
}

func (t TriggerSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Steps)
}

func (t *TriggerSpec) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &t.Steps)
}

// Coercion helpers for the loosely typed config payloads. YAML and JSON both
// decode into any; numbers arrive as int or float64 depending on the codec.

func specString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func specInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func specMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func specList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

func specStringList(v any) ([]string, bool) {
	switch l := v.(type) {
	case []string:
		return l, true
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// sortedKeys gives deterministic iteration over spec maps.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
