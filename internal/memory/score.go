package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/stellarlinkco/reverie/internal/llm"
)

const scorePrompt = `You are a memory significance scorer for a character-chat companion.
Rate how worth remembering this exchange is, on four dimensions, each an
integer from 0 to 10.

Dimensions:
- emotional_impact: how emotionally charged the exchange is
- relationship_relevance: how much it shapes the user/character relationship
- personal_significance: how much personal detail about the user it carries
- contextual_importance: how useful it is for understanding later conversation

memory_type must be one of: conversational, emotional, factual, relational.

Return strict JSON object with this exact schema:
{"emotional_impact":0,"relationship_relevance":0,"personal_significance":0,"contextual_importance":0,"memory_type":"conversational"}

Exchange:
%s: %s`

// Scorer produces the initial weight vector for a newly stored message.
type Scorer struct {
	client    llm.Client
	model     string
	maxTokens int
}

func NewScorer(client llm.Client, model string) *Scorer {
	return &Scorer{
		client:    client,
		model:     model,
		maxTokens: 200,
	}
}

func (s *Scorer) Score(ctx context.Context, role, content string) (WeightVector, error) {
	out, err := s.client.Complete(ctx, llm.Request{
		Model:       s.model,
		Prompt:      fmt.Sprintf(scorePrompt, role, content),
		Temperature: 0.1,
		MaxTokens:   s.maxTokens,
		JSONObject:  true,
	})
	if err != nil {
		return WeightVector{}, fmt.Errorf("score memory: %w", err)
	}

	v, err := parseWeightVector(out)
	if err != nil {
		return WeightVector{}, fmt.Errorf("parse memory score: %w", err)
	}
	return v.Clamped(), nil
}

func parseWeightVector(content string) (WeightVector, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(content)))
	dec.DisallowUnknownFields()

	var parsed WeightVector
	if err := dec.Decode(&parsed); err != nil {
		return WeightVector{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return WeightVector{}, fmt.Errorf("multiple json values in payload")
		}
		return WeightVector{}, err
	}
	return parsed, nil
}
