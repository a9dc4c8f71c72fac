// Package nlu defines the natural-language-understanding oracle consulted by
// the dialogue driver, plus two implementations: a deterministic keyword
// matcher and an OpenAI-compatible LLM classifier.
package nlu

import (
	"context"

	"github.com/flowchat-io/flowchat/flow"
)

// Result is one classification of a user utterance.
type Result struct {
	Intent   string             `json:"intent"`
	Ranking  map[string]float64 `json:"intent_ranking"`
	Entities []flow.Entity      `json:"entities"`
}

// Classifier is the NLU oracle. Classify is called at most once per user
// turn; implementations may be slow (network, model inference) and must
// honor the context.
type Classifier interface {
	Classify(ctx context.Context, utterance string) (*Result, error)
}
