package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/stellarlinkco/reverie/internal/llm"
)

const relevancePrompt = `You are a memory relevance filter.
Given a retrieval query and a numbered list of candidate memories, select
the candidates that are genuinely relevant to the query.

Rules:
1. Select only candidates that would help answer the query.
2. Order selections from most to least relevant.
3. index must be an integer in [0, %d].
4. Return strict JSON object with this exact schema:
{"indices":[0,2]}

Query:
%s

Candidates:
%s`

// RelevanceFilter narrows ranked candidates to the ones actually relevant
// to a retrieval query.
type RelevanceFilter interface {
	SelectRelevant(ctx context.Context, query string, candidates []string) ([]int, error)
}

type llmRelevanceFilter struct {
	client    llm.Client
	model     string
	maxTokens int
}

func NewRelevanceFilter(client llm.Client, model string) RelevanceFilter {
	return &llmRelevanceFilter{
		client:    client,
		model:     model,
		maxTokens: 300,
	}
}

// SelectRelevant returns candidate indices in the model's selection order.
// Indices are returned as-is; the caller bound-checks them, since a model
// may hallucinate an index.
func (f *llmRelevanceFilter) SelectRelevant(ctx context.Context, query string, candidates []string) ([]int, error) {
	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "[%d] %s\n", i, c)
	}

	content, err := f.client.Complete(ctx, llm.Request{
		Model:       f.model,
		Prompt:      fmt.Sprintf(relevancePrompt, len(candidates)-1, query, strings.TrimSpace(sb.String())),
		Temperature: 0.1,
		MaxTokens:   f.maxTokens,
		JSONObject:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("relevance filter: %w", err)
	}

	indices, err := parseRelevanceIndices(content)
	if err != nil {
		return nil, fmt.Errorf("parse relevance indices: %w", err)
	}
	return indices, nil
}

func parseRelevanceIndices(content string) ([]int, error) {
	type payload struct {
		Indices []int `json:"indices"`
	}

	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(content)))
	dec.DisallowUnknownFields()

	var parsed payload
	if err := dec.Decode(&parsed); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("multiple json values in payload")
		}
		return nil, err
	}
	return parsed.Indices, nil
}
