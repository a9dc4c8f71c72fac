package dialog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/flowchat-io/flowchat/flow"
	"github.com/flowchat-io/flowchat/flow/actions"
	"github.com/flowchat-io/flowchat/nlu"
)

// fallbackText is the hard stop when even the fallback flow fails to produce
// a user-visible response.
const fallbackText = "Sorry, I don't understand, what do you mean?"

// Controller is the re-entrant turn reducer: it consumes one user message,
// consults the NLU oracle at most once, and reduces the conversation state
// through the flow map until a user-visible response is produced.
type Controller struct {
	flowMap    *flow.FlowMap
	classifier nlu.Classifier
	actions    *actions.Registry
	version    string
}

func NewController(flowMap *flow.FlowMap, classifier nlu.Classifier, registry *actions.Registry, version string) (*Controller, error) {
	if flowMap == nil {
		return nil, errors.New("controller requires a flow map")
	}
	if classifier == nil {
		return nil, errors.New("controller requires a classifier")
	}
	if registry == nil {
		return nil, errors.New("controller requires an action registry")
	}
	if _, ok := registry.Get(actions.DefaultActionName); !ok {
		return nil, errors.Errorf("controller requires the %q action", actions.DefaultActionName)
	}
	return &Controller{flowMap: flowMap, classifier: classifier, actions: registry, version: version}, nil
}

// Respond runs one turn. The reduction happens on a clone of the state; a
// cancelled context leaves the original state untouched.
func (c *Controller) Respond(ctx context.Context, state *ConversationState, message string) (*MessageOutput, error) {
	st := state.clone()
	out, err := c.reduce(ctx, st, message)
	if err != nil {
		return nil, err
	}
	state.replaceWith(st)
	return out, nil
}

func (c *Controller) reduce(ctx context.Context, st *ConversationState, message string) (*MessageOutput, error) {
	msg := strings.TrimSpace(message)
	guardTripped := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Loop guard: a runaway flow is cut off with the fallback intent. A
		// second trip within the same turn short-circuits entirely.
		if st.LoopStack >= LoopMax {
			if guardTripped {
				st.Events = flow.EventOutput{}
				st.clearButton()
				st.LoopStack = 0
				st.Response = &MessageOutput{Text: fallbackText}
				slog.Warn("dialog: loop guard tripped twice, hard fallback", "user_id", st.UserID)
				return st.Response, nil
			}
			guardTripped = true
			st.Events = flow.EventOutput{TriggerIntent: flow.DefaultIntent}
			st.clearButton()
			st.LoopStack = 0
			msg = ""
			loopGuardTrips.Inc()
		}

		// Button pre-resolution: an outstanding option list consumes the
		// message without invoking the classifier.
		if st.Button != nil && msg != "" {
			title := msg
			if translated, ok := lookupSynonym(st.Synonyms, msg); ok {
				title = translated
			}
			if trigger, ok := lookupTitle(st.Button, title); ok {
				fired, _ := trigger.Eval(&st.Intent, st.Entities, st.Slots)
				st.Events = fired
				st.clearButton()
				st.LoopStack++
				msg = ""
			}
		}

		// Classification: at most once per turn.
		if msg != "" {
			if err := c.classify(ctx, st, msg); err != nil {
				return nil, err
			}
			msg = ""
		}

		// Effect dispatch, in fixed precedence.
		if st.Events.Action != "" {
			name := st.Events.Action
			action, ok := c.actions.Get(name)
			if !ok {
				slog.Warn("dialog: unknown action, substituting default", "action", name, "user_id", st.UserID)
				action, _ = c.actions.Get(actions.DefaultActionName)
			}
			st.Events = action.Call(&st.Intent, st.Entities, st.Slots)
			st.LoopStack++
			continue
		}

		if len(st.Events.SetSlot) > 0 {
			st.Slots.Apply(st.Events.SetSlot)
			st.Events.SetSlot = nil
		}

		if st.Events.Text != "" {
			out := &MessageOutput{Text: st.Events.Text}
			st.Events.Text = ""
			st.LoopStack = 0
			st.Response = out
			return out, nil
		}

		if st.Events.Button != nil {
			button := st.Events.Button
			st.Events.Button = nil
			st.setButton(button)
			out := &MessageOutput{Text: button.Text, Button: append([]string(nil), button.Titles...)}
			st.LoopStack = 0
			st.Response = out
			return out, nil
		}

		if st.Events.TriggerIntent != "" {
			name := st.Events.TriggerIntent
			st.Events.TriggerIntent = ""
			st.LoopStack++
			st.Intent = flow.Intent{Name: name, Ranking: map[string]float64{}}
			st.Entities = nil
			actionMap, ok := c.flowMap.Action(name)
			if !ok {
				slog.Warn("dialog: no action map for triggered intent", "intent", name, "user_id", st.UserID)
				st.Intent.Name = flow.DefaultIntent
				if actionMap, ok = c.flowMap.Action(flow.DefaultIntent); !ok {
					st.Events = flow.EventOutput{Action: actions.DefaultActionName}
					continue
				}
			}
			st.Events = actionMap.Eval(&st.Intent, st.Entities, st.Slots)
			continue
		}

		if st.Events.RequestSlot != "" || st.Slots.IsSet(flow.RequestSlotName) {
			slot := st.Events.RequestSlot
			st.Events.RequestSlot = ""
			if slot == "" {
				slot = st.Slots[flow.RequestSlotName]
			}
			st.LoopStack++
			requestMap, ok := c.flowMap.Request(slot)
			if !ok {
				slog.Warn("dialog: no request map for slot", "slot", slot, "user_id", st.UserID)
				delete(st.Slots, flow.RequestSlotName)
				st.Events = flow.EventOutput{TriggerIntent: flow.DefaultIntent}
				continue
			}
			st.Events = requestMap.Eval(&st.Intent, st.Entities, st.Slots)
			continue
		}

		// Nothing pending: enter the action map of the current intent.
		st.LoopStack++
		actionMap, ok := c.flowMap.Action(st.Intent.Name)
		if !ok {
			st.Events = flow.EventOutput{Action: actions.DefaultActionName}
			continue
		}
		st.Events = actionMap.Eval(&st.Intent, st.Entities, st.Slots)
	}
}

// classify consults the NLU oracle and installs the result. A classifier
// failure surfaces as the fallback intent; slots are left untouched.
func (c *Controller) classify(ctx context.Context, st *ConversationState, msg string) error {
	started := time.Now()
	result, err := c.classifier.Classify(ctx, msg)
	nluLatency.Observe(time.Since(started).Seconds())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil || result == nil {
		slog.Warn("dialog: classification failed", "user_id", st.UserID, "error", err)
		nluFailures.Inc()
		st.Intent = flow.Intent{Name: flow.DefaultIntent, Ranking: map[string]float64{}, Priority: 0}
		st.Entities = nil
		return nil
	}

	intent := flow.Intent{Name: result.Intent, Ranking: result.Ranking}
	if intent.Ranking == nil {
		intent.Ranking = map[string]float64{}
	}
	for name := range intent.Ranking {
		if !c.flowMap.Domain.HasIntent(name) {
			delete(intent.Ranking, name)
		}
	}
	if priority, ok := c.flowMap.Priority(intent.Name); ok {
		intent.Priority = priority
	} else {
		// Any intent outside the configured action maps is the fallback.
		intent.Name = flow.DefaultIntent
		intent.Priority = 0
	}

	var entities []flow.Entity
	for _, entity := range result.Entities {
		if c.flowMap.Domain.HasEntity(entity.Name) {
			entities = append(entities, entity)
		}
	}

	st.Intent = intent
	st.Entities = entities
	return nil
}

func lookupSynonym(synonyms map[string]string, message string) (string, bool) {
	for synonym, title := range synonyms {
		if strings.EqualFold(synonym, message) {
			return title, true
		}
	}
	return "", false
}

func lookupTitle(button map[string]*flow.Trigger, title string) (*flow.Trigger, bool) {
	for key, trigger := range button {
		if strings.EqualFold(key, title) {
			return trigger, true
		}
	}
	return nil, false
}
