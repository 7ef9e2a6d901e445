package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/stellarlinkco/reverie/internal/llm"
)

const intentPrompt = `You are a conversational-memory search gate.
Decide whether answering the utterance requires searching past conversation
history beyond the visible recent context.

Rules:
1. Search is needed when the utterance references information absent from
   the recent context: an explicit temporal back-reference ("last week",
   "you remember"), a named past event, or a topic the recent context does
   not cover.
2. Search is not needed for greetings, acknowledgments, or anything
   resolvable within the recent context alone.
3. When search is needed, produce a short retrieval query for it.
4. Return strict JSON object with this exact schema:
{"needs_search":true,"query":"...","reasoning":"..."}

Recent context:
%s

Utterance:
%s`

// SearchIntent is the gate's verdict for one utterance. It is never
// persisted; reasoning is diagnostic only.
type SearchIntent struct {
	NeedsSearch bool   `json:"needs_search"`
	Query       string `json:"query"`
	Reasoning   string `json:"reasoning"`
}

type IntentClassifier interface {
	Classify(ctx context.Context, utterance string, recent []Message) (*SearchIntent, error)
}

type llmIntentClassifier struct {
	client    llm.Client
	model     string
	maxTokens int
}

// NewIntentClassifier builds the LLM-backed gate. It runs on every
// utterance, so calls use low temperature and a small token budget.
func NewIntentClassifier(client llm.Client, model string) IntentClassifier {
	return &llmIntentClassifier{
		client:    client,
		model:     model,
		maxTokens: 200,
	}
}

// Classify never guesses: a generation failure propagates and the caller
// decides whether to retry or skip the search.
func (c *llmIntentClassifier) Classify(ctx context.Context, utterance string, recent []Message) (*SearchIntent, error) {
	content, err := c.client.Complete(ctx, llm.Request{
		Model:       c.model,
		Prompt:      fmt.Sprintf(intentPrompt, formatContext(recent), utterance),
		Temperature: 0.1,
		MaxTokens:   c.maxTokens,
		JSONObject:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("classify search intent: %w", err)
	}

	intent, err := parseSearchIntent(content)
	if err != nil {
		return nil, fmt.Errorf("parse search intent: %w", err)
	}
	return intent, nil
}

func parseSearchIntent(content string) (*SearchIntent, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(content)))
	dec.DisallowUnknownFields()

	var parsed SearchIntent
	if err := dec.Decode(&parsed); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("multiple json values in payload")
		}
		return nil, err
	}
	return &parsed, nil
}

func formatContext(messages []Message) string {
	if len(messages) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
