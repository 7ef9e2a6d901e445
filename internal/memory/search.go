package memory

import (
	"context"
	"fmt"
)

// Searcher runs the two-stage deep search: an intent gate on the
// utterance, then significance-ranked candidates narrowed by an LLM
// relevance pass.
type Searcher struct {
	engine     *Engine
	classifier IntentClassifier
	filter     RelevanceFilter

	// limit caps how many memories one search may return. Tunable: the
	// right bound is a prompt-size/cost decision.
	limit int
}

func NewSearcher(engine *Engine, classifier IntentClassifier, filter RelevanceFilter, relevanceLimit int) *Searcher {
	if relevanceLimit <= 0 {
		relevanceLimit = 10
	}
	return &Searcher{
		engine:     engine,
		classifier: classifier,
		filter:     filter,
		limit:      relevanceLimit,
	}
}

// Search returns nil when the gate decided no search was needed, an empty
// slice when it searched and nothing cleared the floor, and otherwise at
// most limit memories in the filter's selection order. Callers must
// distinguish "didn't look" from "looked and found nothing".
func (s *Searcher) Search(ctx context.Context, sessionID, utterance string, recentIDs []string, minTotal int) ([]WeightedMessage, error) {
	recent, err := s.engine.MessagesByIDs(sessionID, recentIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve recent context (session %s): %w", sessionID, err)
	}

	intent, err := s.classifier.Classify(ctx, utterance, recent)
	if err != nil {
		return nil, fmt.Errorf("deep search (session %s): %w", sessionID, err)
	}
	if !intent.NeedsSearch {
		return nil, nil
	}

	// No hard cap on candidates fetched; the floor does the pruning.
	candidates, err := s.engine.TopBySignificance(sessionID, recentIDs, minTotal, 0)
	if err != nil {
		return nil, fmt.Errorf("deep search (session %s): %w", sessionID, err)
	}
	if len(candidates) == 0 {
		return []WeightedMessage{}, nil
	}

	query := intent.Query
	if query == "" {
		query = utterance
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Message.Content
	}

	indices, err := s.filter.SelectRelevant(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("deep search (session %s): %w", sessionID, err)
	}

	selected := make([]WeightedMessage, 0, s.limit)
	for _, idx := range indices {
		// A hallucinated index is dropped, not an error.
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		selected = append(selected, candidates[idx])
		if len(selected) == s.limit {
			break
		}
	}
	return selected, nil
}
