package flow

import (
	"github.com/pkg/errors"
)

// Config is the raw flow configuration: the ordered ActionMap and RequestMap
// specs.
type Config struct {
	ActionsMap  []ActionSpec  `yaml:"actions_map" json:"actions_map"`
	RequestsMap []RequestSpec `yaml:"requests_map" json:"requests_map"`
}

// FlowMap is the root registry mapping intent names to ActionMaps and slot
// names to RequestMaps. It is built once at startup and immutable afterwards,
// so it is safe to share across all conversations.
type FlowMap struct {
	Domain *Domain

	actions  map[string]*ActionMap
	requests map[string]*RequestMap
}

func NewFlowMap(cfg *Config, d *Domain) (*FlowMap, error) {
	if cfg == nil {
		return nil, errors.New("flow map requires a config")
	}
	if d == nil {
		return nil, errors.New("flow map requires a domain")
	}

	f := &FlowMap{
		Domain:   d,
		actions:  make(map[string]*ActionMap, len(cfg.ActionsMap)),
		requests: make(map[string]*RequestMap, len(cfg.RequestsMap)),
	}
	for _, spec := range cfg.ActionsMap {
		actionMap, err := NewActionMap(spec, d)
		if err != nil {
			return nil, err
		}
		if _, ok := f.actions[actionMap.Intent]; ok {
			return nil, errors.Errorf("actions_map: duplicate intent %q", actionMap.Intent)
		}
		f.actions[actionMap.Intent] = actionMap
	}
	for _, spec := range cfg.RequestsMap {
		requestMap, err := NewRequestMap(spec, d)
		if err != nil {
			return nil, err
		}
		if _, ok := f.requests[requestMap.Slot]; ok {
			return nil, errors.Errorf("requests_map: duplicate slot %q", requestMap.Slot)
		}
		f.requests[requestMap.Slot] = requestMap
	}
	return f, nil
}

// Action looks up the ActionMap for an intent.
func (f *FlowMap) Action(intent string) (*ActionMap, bool) {
	m, ok := f.actions[intent]
	return m, ok
}

// Request looks up the RequestMap for a slot.
func (f *FlowMap) Request(slot string) (*RequestMap, bool) {
	m, ok := f.requests[slot]
	return m, ok
}

// Priority returns the configured priority for an intent, when it has an
// ActionMap.
func (f *FlowMap) Priority(intent string) (int, bool) {
	m, ok := f.actions[intent]
	if !ok {
		return 0, false
	}
	return m.Priority, true
}

// IntentNames lists all intents that carry an ActionMap.
func (f *FlowMap) IntentNames() []string {
	names := make([]string, 0, len(f.actions))
	for name := range f.actions {
		names = append(names, name)
	}
	return names
}
