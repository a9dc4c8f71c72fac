package actions

import (
	"log/slog"
	"sort"

	"github.com/pkg/errors"

	"github.com/flowchat-io/flowchat/flow"
)

const (
	// DefaultActionName handles utterances the classifier could not map to a
	// configured intent.
	DefaultActionName = "default"

	defaultPrompt = "Sorry, I don't understand, what do you mean?"

	restartTitle  = "Restart"
	restartIntent = "restart"

	// rankedOptionLimit caps how many intent suggestions the fallback offers.
	rankedOptionLimit = 5
)

// DefaultAction suggests the most likely intents as selectable options when
// classification fails. Only intents present in the curated title map are
// offered; a trailing Restart option is always appended.
type DefaultAction struct {
	domain *flow.Domain
	titles map[string]string // intent name -> friendly title
}

// NewDefaultAction validates the curated title map against the domain. A nil
// map means the built-in titles; an empty map means no suggestions at all.
func NewDefaultAction(d *flow.Domain, titles map[string]string) (*DefaultAction, error) {
	if titles == nil {
		titles = DefaultIntentTitles()
	}
	for intentName, title := range titles {
		if !d.HasIntent(intentName) {
			return nil, errors.Errorf("default action: intent %q is not an available intent", intentName)
		}
		if title == "" {
			return nil, errors.Errorf("default action: intent %q has an empty title", intentName)
		}
	}
	if !d.HasIntent(restartIntent) {
		return nil, errors.Errorf("default action: required intent %q is missing from the domain", restartIntent)
	}
	return &DefaultAction{domain: d, titles: titles}, nil
}

func (a *DefaultAction) Name() string {
	return DefaultActionName
}

func (a *DefaultAction) Call(intent *flow.Intent, entities []flow.Entity, slots flow.Slots) flow.EventOutput {
	type ranked struct {
		intent string
		title  string
		score  float64
	}
	var ranking []ranked
	for intentName, score := range intent.Ranking {
		title, ok := a.titles[intentName]
		if !ok {
			continue
		}
		ranking = append(ranking, ranked{intent: intentName, title: title, score: score})
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].score > ranking[j].score })
	if len(ranking) > rankedOptionLimit {
		ranking = ranking[:rankedOptionLimit]
	}

	options := make([]any, 0, len(ranking)+1)
	for _, r := range ranking {
		options = append(options, map[string]any{
			"title":          r.title,
			"trigger_intent": r.intent,
		})
	}
	options = append(options, map[string]any{
		"title":          restartTitle,
		"trigger_intent": restartIntent,
	})

	event, err := flow.NewButtonEvent(map[string]any{
		"text":   defaultPrompt,
		"button": options,
	}, a.domain)
	if err != nil {
		// Cannot happen for a validated title map; degrade to plain text.
		slog.Error("default action: building fallback button failed", "error", err)
		return flow.EventOutput{Text: defaultPrompt}
	}
	return event.Eval(intent, entities, slots)
}

// DefaultIntentTitles is the curated mapping from intent names to the
// friendly titles offered by the fallback prompt.
func DefaultIntentTitles() map[string]string {
	return map[string]string{
		"WorkTimesBreaches":             "Work time breaches",
		"WorkingTimeBreachDiscipline":   "Work time discipline",
		"HolidaysOff":                   "Holidays",
		"AnnualLeaveApplicationProcess": "Annual leave process",
		"WorkingHours":                  "Working time",
		"WorkingDay":                    "Working day",
		"BreakTime":                     "Break time",
		"Pregnant":                      "Pregnant policies",
		"AttendanceRecord":              "Attendance checking",
		"LaborContract":                 "Labor contract",
		"Recruitment":                   "Recruitment",
		"SickLeave":                     "Sick leave",
		"UnpaidLeave":                   "Unpaid leave",
		"PaidLeaveForFamilyEvent":       "Family events",
		"UnusedAnnualLeave":             "Unused annual leave",
		"RegulatedAnnualLeave":          "Regulated Annual Leave",
	}
}
