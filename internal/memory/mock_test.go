package memory

import (
	"context"
	"errors"

	"github.com/stellarlinkco/reverie/internal/llm"
)

// fakeLLM scripts Complete responses and records requests.
type fakeLLM struct {
	responses []string
	err       error
	requests  []llm.Request
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("fakeLLM: no scripted response")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

type fakeClassifier struct {
	intent *SearchIntent
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, utterance string, recent []Message) (*SearchIntent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.intent, nil
}

type fakeFilter struct {
	indices []int
	err     error
	calls   int
	query   string
	docs    []string
}

func (f *fakeFilter) SelectRelevant(ctx context.Context, query string, candidates []string) ([]int, error) {
	f.calls++
	f.query = query
	f.docs = candidates
	if f.err != nil {
		return nil, f.err
	}
	return f.indices, nil
}
