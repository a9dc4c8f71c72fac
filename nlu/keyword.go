package nlu

import (
	"context"
	"strings"

	"github.com/flowchat-io/flowchat/flow"
)

// KeywordRule maps substrings of the utterance to an intent, optionally
// extracting entities when their keywords appear.
type KeywordRule struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
	Weight   float64  `yaml:"weight"`
}

// EntityRule extracts an entity when one of its keywords appears verbatim in
// the utterance.
type EntityRule struct {
	Entity   string   `yaml:"entity"`
	Keywords []string `yaml:"keywords"`
}

// KeywordClassifier is a deterministic, offline classifier for demos and
// tests. It scores intents by keyword hits and extracts entities by literal
// match. Matching is case-insensitive.
type KeywordClassifier struct {
	rules    []KeywordRule
	entities []EntityRule
}

func NewKeywordClassifier(rules []KeywordRule, entities []EntityRule) *KeywordClassifier {
	return &KeywordClassifier{rules: rules, entities: entities}
}

// DomainRules derives a minimal rule set from the domain: each intent matches
// its own name with underscores spaced out, each entity matches its name.
// Good enough for demos and the console; production setups configure rules or
// use the LLM classifier.
func DomainRules(d *flow.Domain) ([]KeywordRule, []EntityRule) {
	rules := make([]KeywordRule, 0, len(d.Intents))
	for _, intent := range d.Intents {
		if intent == flow.DefaultIntent {
			continue
		}
		keyword := strings.ReplaceAll(intent, "_", " ")
		rules = append(rules, KeywordRule{Intent: intent, Keywords: []string{keyword}})
	}
	entities := make([]EntityRule, 0, len(d.Entities))
	for _, entity := range d.Entities {
		entities = append(entities, EntityRule{Entity: entity, Keywords: []string{strings.ReplaceAll(entity, "_", " ")}})
	}
	return rules, entities
}

func (c *KeywordClassifier) Classify(_ context.Context, utterance string) (*Result, error) {
	text := strings.ToLower(utterance)

	ranking := make(map[string]float64)
	for _, rule := range c.rules {
		hits := 0
		for _, keyword := range rule.Keywords {
			if strings.Contains(text, strings.ToLower(keyword)) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		weight := rule.Weight
		if weight == 0 {
			weight = 1
		}
		score := weight * float64(hits) / float64(len(rule.Keywords))
		if score > 1 {
			score = 1
		}
		if score > ranking[rule.Intent] {
			ranking[rule.Intent] = score
		}
	}

	best, bestScore := "", 0.0
	for intent, score := range ranking {
		if score > bestScore || (score == bestScore && intent < best) {
			best, bestScore = intent, score
		}
	}

	var entities []flow.Entity
	for _, rule := range c.entities {
		for _, keyword := range rule.Keywords {
			idx := indexFold(utterance, keyword)
			if idx < 0 {
				continue
			}
			entities = append(entities, flow.Entity{
				Name:  rule.Entity,
				Text:  utterance[idx : idx+len(keyword)],
				Start: idx,
				End:   idx + len(keyword),
			})
			break
		}
	}

	return &Result{Intent: best, Ranking: ranking, Entities: entities}, nil
}

// indexFold finds the first case-insensitive occurrence of substr in s,
// comparing windows of substr's byte length against the original string so
// the returned offsets always slice s correctly. Case folds that change byte
// length do not match.
func indexFold(s, substr string) int {
	n := len(substr)
	if n == 0 || n > len(s) {
		return -1
	}
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}
