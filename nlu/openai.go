package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/flowchat-io/flowchat/flow"
)

// OpenAIConfig configures the LLM-backed classifier. Any OpenAI-compatible
// endpoint works.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIClassifier classifies utterances with a chat-completion model
// instructed to answer in strict JSON. Results are validated against the
// domain; names the model invents are dropped.
type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	domain  *flow.Domain
	prompt  string
	timeout time.Duration
}

func NewOpenAIClassifier(cfg OpenAIConfig, d *flow.Domain) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("nlu: api key required")
	}
	if cfg.Model == "" {
		return nil, errors.New("nlu: model required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClassifier{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		domain:  d,
		prompt:  buildSystemPrompt(d),
		timeout: timeout,
	}, nil
}

func buildSystemPrompt(d *flow.Domain) string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for a task-oriented dialogue system.\n")
	b.WriteString("Classify the user utterance into exactly one of these intents:\n")
	for _, intent := range d.Intents {
		fmt.Fprintf(&b, "- %s\n", intent)
	}
	if len(d.Entities) > 0 {
		b.WriteString("Extract entities of these types when present:\n")
		for _, entity := range d.Entities {
			fmt.Fprintf(&b, "- %s\n", entity)
		}
	}
	b.WriteString("Answer with a single JSON object of the form:\n")
	b.WriteString(`{"intent": "<name>", "intent_ranking": {"<name>": <confidence 0..1>}, ` +
		`"entities": [{"entity_name": "<type>", "text": "<span>", "start": <int>, "end": <int>}]}` + "\n")
	b.WriteString("Do not output anything else.")
	return b.String()
}

func (c *OpenAIClassifier) Classify(ctx context.Context, utterance string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.prompt},
			{Role: openai.ChatMessageRoleUser, Content: utterance},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "nlu: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("nlu: empty completion")
	}

	var result Result
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, errors.Wrapf(err, "nlu: malformed classifier output %q", content)
	}

	c.sanitize(&result)
	return &result, nil
}

// sanitize drops intents and entities outside the domain.
func (c *OpenAIClassifier) sanitize(result *Result) {
	for name := range result.Ranking {
		if !c.domain.HasIntent(name) {
			delete(result.Ranking, name)
		}
	}
	entities := result.Entities[:0]
	for _, entity := range result.Entities {
		if c.domain.HasEntity(entity.Name) && entity.Text != "" {
			entities = append(entities, entity)
		}
	}
	result.Entities = entities
}
